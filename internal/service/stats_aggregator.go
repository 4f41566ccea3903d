package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/maap-api/internal/models"
)

const topPerformerLimit = 3

// StatsInput is the record set a StatsAggregator rolls up.
type StatsInput struct {
	Kind      models.CheckInKind
	From      time.Time
	To        time.Time
	CheckIns  []models.CheckIn
	Feedback  []models.Feedback
	Teammates []string
}

// StatsAggregator computes read-only rollups over finalized check-ins and feedback.
// Each rollup is computed once and reused. Empty input yields zero values.
type StatsAggregator struct {
	input StatsInput

	feedbackOnce      sync.Once
	feedback          models.FeedbackStats
	participationOnce sync.Once
	participation     models.ParticipationStats
	ratingOnce        sync.Once
	rating            models.RatingStats
	weeklyOnce        sync.Once
	weekly            []models.WeeklyStat
	teamOnce          sync.Once
	team              models.TeamStats
}

// NewStatsAggregator keeps only finalized check-ins of input.Kind completed within [From, To).
func NewStatsAggregator(input StatsInput) *StatsAggregator {
	finalized := make([]models.CheckIn, 0, len(input.CheckIns))
	for _, ci := range input.CheckIns {
		if ci.Official == nil || (input.Kind != "" && ci.Kind != input.Kind) {
			continue
		}
		if !inRange(ci.Official.CompletedAt, input.From, input.To) {
			continue
		}
		finalized = append(finalized, ci)
	}
	feedback := make([]models.Feedback, 0, len(input.Feedback))
	for _, f := range input.Feedback {
		if inRange(f.SubmittedAt, input.From, input.To) {
			feedback = append(feedback, f)
		}
	}
	input.CheckIns = finalized
	input.Feedback = feedback
	return &StatsAggregator{input: input}
}

// FeedbackStats tallies feedback ratings and conflict styles.
func (a *StatsAggregator) FeedbackStats() models.FeedbackStats {
	a.feedbackOnce.Do(func() {
		stats := models.FeedbackStats{
			RatingDistribution:        map[int]int{},
			ConflictStyleDistribution: map[string]int{},
		}
		var total float64
		for _, f := range a.input.Feedback {
			stats.TotalFeedback++
			total += float64(f.Rating)
			stats.RatingDistribution[f.Rating]++
			if f.ConflictStyle != "" {
				stats.ConflictStyleDistribution[f.ConflictStyle]++
			}
		}
		stats.AverageRating = average(total, stats.TotalFeedback)
		a.feedback = stats
	})
	return a.feedback
}

// ParticipationStats reports how many expected teammates had a finalized check-in or gave feedback.
// Activity by teammates outside the roster is listed per participant but excluded from the rate.
func (a *StatsAggregator) ParticipationStats() models.ParticipationStats {
	a.participationOnce.Do(func() {
		byTeammate := map[string]*models.ParticipantStat{}
		order := make([]string, 0, len(a.input.Teammates))
		get := func(id string) *models.ParticipantStat {
			if p, ok := byTeammate[id]; ok {
				return p
			}
			p := &models.ParticipantStat{TeammateID: id}
			byTeammate[id] = p
			order = append(order, id)
			return p
		}
		expected := make(map[string]bool, len(a.input.Teammates))
		for _, id := range a.input.Teammates {
			expected[id] = true
			get(id)
		}
		for _, ci := range a.input.CheckIns {
			get(ci.TeammateID).CheckInCount++
		}
		for _, f := range a.input.Feedback {
			get(f.GiverID).FeedbackCount++
		}

		stats := models.ParticipationStats{
			ExpectedParticipants: len(expected),
			Participants:         make([]models.ParticipantStat, 0, len(order)),
		}
		sort.Strings(order)
		for _, id := range order {
			p := byTeammate[id]
			// teammates off the roster are listed but never counted toward the rate
			if expected[id] && (p.CheckInCount > 0 || p.FeedbackCount > 0) {
				stats.ActiveParticipants++
			}
			stats.Participants = append(stats.Participants, *p)
		}
		if stats.ExpectedParticipants > 0 {
			stats.ParticipationRate = round1(float64(stats.ActiveParticipants) * 100 / float64(stats.ExpectedParticipants))
		}
		a.participation = stats
	})
	return a.participation
}

// RatingStats rolls up official ratings and how often both sides agreed.
func (a *StatsAggregator) RatingStats() models.RatingStats {
	a.ratingOnce.Do(func() {
		stats := models.RatingStats{RatingDistribution: map[string]int{}}
		var total float64
		var scored, agreed int
		for _, ci := range a.input.CheckIns {
			stats.TotalFinalized++
			stats.RatingDistribution[ci.Official.Rating]++
			if score, ok := models.RatingScale(ci.Kind, ci.Official.Rating); ok {
				total += score
				scored++
			}
			if ci.Employee.Rating != "" && ci.Employee.Rating == ci.Manager.Rating {
				agreed++
			}
		}
		stats.AverageRating = average(total, scored)
		if stats.TotalFinalized > 0 {
			stats.AgreementRate = round1(float64(agreed) * 100 / float64(stats.TotalFinalized))
		}
		a.rating = stats
	})
	return a.rating
}

// WeeklyStats buckets activity by ISO week, oldest first.
func (a *StatsAggregator) WeeklyStats() []models.WeeklyStat {
	a.weeklyOnce.Do(func() {
		type bucket struct {
			stat   models.WeeklyStat
			total  float64
			scored int
		}
		buckets := map[time.Time]*bucket{}
		get := func(t time.Time) *bucket {
			start := weekStart(t)
			b, ok := buckets[start]
			if !ok {
				b = &bucket{stat: models.WeeklyStat{WeekStart: start}}
				buckets[start] = b
			}
			return b
		}
		for _, ci := range a.input.CheckIns {
			b := get(ci.Official.CompletedAt)
			b.stat.FinalizedCount++
			if score, ok := models.RatingScale(ci.Kind, ci.Official.Rating); ok {
				b.total += score
				b.scored++
			}
		}
		for _, f := range a.input.Feedback {
			get(f.SubmittedAt).stat.FeedbackCount++
		}

		weeks := make([]models.WeeklyStat, 0, len(buckets))
		for _, b := range buckets {
			b.stat.AverageRating = average(b.total, b.scored)
			weeks = append(weeks, b.stat)
		}
		sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekStart.Before(weeks[j].WeekStart) })
		a.weekly = weeks
	})
	return a.weekly
}

// TeamStats reports per-teammate results and the top performers by average rating.
func (a *StatsAggregator) TeamStats() models.TeamStats {
	a.teamOnce.Do(func() {
		type member struct {
			stat   models.TeamMemberStat
			total  float64
			scored int
		}
		members := map[string]*member{}
		get := func(id string) *member {
			m, ok := members[id]
			if !ok {
				m = &member{stat: models.TeamMemberStat{TeammateID: id}}
				members[id] = m
			}
			return m
		}
		expected := make(map[string]bool, len(a.input.Teammates))
		for _, id := range a.input.Teammates {
			expected[id] = true
			get(id)
		}
		var teamTotal float64
		var teamScored int
		for _, ci := range a.input.CheckIns {
			m := get(ci.TeammateID)
			m.stat.FinalizedCheckIns++
			if score, ok := models.RatingScale(ci.Kind, ci.Official.Rating); ok {
				m.total += score
				m.scored++
				teamTotal += score
				teamScored++
			}
		}
		for _, f := range a.input.Feedback {
			get(f.TeammateID).stat.FeedbackReceived++
		}

		stats := models.TeamStats{
			Members:       make([]models.TeamMemberStat, 0, len(members)),
			TeamAverage:   average(teamTotal, teamScored),
			TopPerformers: []string{},
		}
		ranked := make([]models.TeamMemberStat, 0, len(members))
		for _, m := range members {
			m.stat.AverageRating = average(m.total, m.scored)
			stats.Members = append(stats.Members, m.stat)
			if m.scored > 0 {
				ranked = append(ranked, m.stat)
			}
		}
		sort.Slice(stats.Members, func(i, j int) bool { return stats.Members[i].TeammateID < stats.Members[j].TeammateID })
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].AverageRating != ranked[j].AverageRating {
				return ranked[i].AverageRating > ranked[j].AverageRating
			}
			return ranked[i].TeammateID < ranked[j].TeammateID
		})
		for i := 0; i < len(ranked) && i < topPerformerLimit; i++ {
			stats.TopPerformers = append(stats.TopPerformers, ranked[i].TeammateID)
		}
		a.team = stats
	})
	return a.team
}

// Summary bundles every rollup.
func (a *StatsAggregator) Summary(query models.StatsQuery, generatedAt time.Time) models.StatsSummary {
	return models.StatsSummary{
		Query:         query,
		Feedback:      a.FeedbackStats(),
		Participation: a.ParticipationStats(),
		Ratings:       a.RatingStats(),
		Weekly:        a.WeeklyStats(),
		Team:          a.TeamStats(),
		GeneratedAt:   generatedAt,
	}
}

func average(total float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return round1(total / float64(count))
}

func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

// weekStart returns Monday 00:00 UTC of t's ISO week.
func weekStart(t time.Time) time.Time {
	day := truncateToDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// inRange treats zero bounds as open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
