package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/models"
	"github.com/noah-isme/maap-api/pkg/requestinfo"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit entries stamped with the caller's request metadata.
type auditTrail struct {
	store  auditLogger
	source string
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.store == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: "system",
		UserAgent: a.source,
	}
	if actor != "" {
		entry.UserID = &actor
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if info, ok := requestinfo.FromContext(ctx); ok {
		if info.IPAddress != "" {
			entry.IPAddress = info.IPAddress
		}
		if info.UserAgent != "" {
			entry.UserAgent = info.UserAgent
		}
	}
	entry.OldValues = a.encode(oldValues)
	entry.NewValues = a.encode(newValues)
	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func (a auditTrail) encode(value interface{}) []byte {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		a.logger.Warn("failed to encode audit payload", zap.Error(err))
		return nil
	}
	return raw
}
