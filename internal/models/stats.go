package models

import "time"

// Feedback is a huddle feedback entry consumed by stats rollups.
type Feedback struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	TeammateID     string    `db:"teammate_id" json:"teammate_id"`
	GiverID        string    `db:"giver_id" json:"giver_id"`
	Rating         int       `db:"rating" json:"rating"`
	ConflictStyle  string    `db:"conflict_style" json:"conflict_style"`
	SubmittedAt    time.Time `db:"submitted_at" json:"submitted_at"`
}

// FeedbackFilter scopes feedback queries for stats.
type FeedbackFilter struct {
	OrganizationID string
	From           time.Time
	To             time.Time
}

// StatsQuery selects the record set a stats summary is computed over.
type StatsQuery struct {
	Kind           CheckInKind
	OrganizationID string
	From           time.Time
	To             time.Time
}

// FeedbackStats rolls up feedback entries.
type FeedbackStats struct {
	TotalFeedback             int            `json:"total_feedback"`
	AverageRating             float64        `json:"average_rating"`
	RatingDistribution        map[int]int    `json:"rating_distribution"`
	ConflictStyleDistribution map[string]int `json:"conflict_style_distribution"`
}

// ParticipantStat is one teammate's activity in the range.
type ParticipantStat struct {
	TeammateID    string `json:"teammate_id"`
	CheckInCount  int    `json:"check_in_count"`
	FeedbackCount int    `json:"feedback_count"`
}

// ParticipationStats measures how many expected teammates took part.
type ParticipationStats struct {
	ExpectedParticipants int               `json:"expected_participants"`
	ActiveParticipants   int               `json:"active_participants"`
	ParticipationRate    float64           `json:"participation_rate"`
	Participants         []ParticipantStat `json:"participants"`
}

// RatingStats rolls up official ratings of finalized check-ins.
type RatingStats struct {
	TotalFinalized     int            `json:"total_finalized"`
	AverageRating      float64        `json:"average_rating"`
	RatingDistribution map[string]int `json:"rating_distribution"`
	AgreementRate      float64        `json:"agreement_rate"`
}

// WeeklyStat is one ISO week's activity.
type WeeklyStat struct {
	WeekStart      time.Time `json:"week_start"`
	FinalizedCount int       `json:"finalized_count"`
	FeedbackCount  int       `json:"feedback_count"`
	AverageRating  float64   `json:"average_rating"`
}

// TeamMemberStat is one teammate's finalized results in the range.
type TeamMemberStat struct {
	TeammateID        string  `json:"teammate_id"`
	FinalizedCheckIns int     `json:"finalized_check_ins"`
	AverageRating     float64 `json:"average_rating"`
	FeedbackReceived  int     `json:"feedback_received"`
}

// TeamStats rolls up results per teammate.
type TeamStats struct {
	Members       []TeamMemberStat `json:"members"`
	TeamAverage   float64          `json:"team_average"`
	TopPerformers []string         `json:"top_performers"`
}

// StatsSummary bundles every rollup for one query.
type StatsSummary struct {
	Query         StatsQuery         `json:"query"`
	Feedback      FeedbackStats      `json:"feedback"`
	Participation ParticipationStats `json:"participation"`
	Ratings       RatingStats        `json:"ratings"`
	Weekly        []WeeklyStat       `json:"weekly"`
	Team          TeamStats          `json:"team"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
