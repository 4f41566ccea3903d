package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

const statsDateLayout = "2006-01-02"

// StatsQueryParams mirrors the query string accepted by the stats endpoint.
type StatsQueryParams struct {
	Kind           string `form:"kind"`
	OrganizationID string `form:"organization_id"`
	From           string `form:"from"`
	To             string `form:"to"`
}

// ToQuery parses dates as RFC3339 or YYYY-MM-DD. Blank values are left for the service to default.
func (p StatsQueryParams) ToQuery() (models.StatsQuery, error) {
	query := models.StatsQuery{
		Kind:           models.CheckInKind(strings.ToLower(strings.TrimSpace(p.Kind))),
		OrganizationID: strings.TrimSpace(p.OrganizationID),
	}
	fields := map[string]string{}
	var ok bool
	if query.From, ok = parseStatsDate(p.From); !ok {
		fields["from"] = "must be RFC3339 or YYYY-MM-DD"
	}
	if query.To, ok = parseStatsDate(p.To); !ok {
		fields["to"] = "must be RFC3339 or YYYY-MM-DD"
	}
	if len(fields) > 0 {
		return query, appErrors.WithFields(appErrors.ErrValidation, "invalid stats query", fields)
	}
	return query, nil
}

func parseStatsDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(statsDateLayout, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
