package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/internal/models"
)

// Monday 2026-03-02.
var statsWeek = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func finalizedCheckIn(teammate, employee, manager, official string, at time.Time) models.CheckIn {
	return models.CheckIn{
		ID:         teammate + "-" + at.Format("0102"),
		Kind:       models.CheckInKindAssignment,
		TeammateID: teammate,
		ItemID:     "asg-1",
		Employee:   models.SideAssessment{Rating: employee, Completion: &models.Completion{At: at, By: teammate}},
		Manager:    models.SideAssessment{Rating: manager, Completion: &models.Completion{At: at, By: "mgr-1"}},
		Official:   &models.OfficialAssessment{Rating: official, CompletedAt: at, CompletedBy: "mgr-1"},
	}
}

func TestStatsAggregatorEmptyInputYieldsZeros(t *testing.T) {
	agg := NewStatsAggregator(StatsInput{Kind: models.CheckInKindAssignment})

	summary := agg.Summary(models.StatsQuery{Kind: models.CheckInKindAssignment}, statsWeek)
	assert.Zero(t, summary.Feedback.TotalFeedback)
	assert.Zero(t, summary.Feedback.AverageRating)
	assert.Empty(t, summary.Feedback.RatingDistribution)
	assert.Zero(t, summary.Participation.ParticipationRate)
	assert.Empty(t, summary.Participation.Participants)
	assert.Zero(t, summary.Ratings.TotalFinalized)
	assert.Zero(t, summary.Ratings.AverageRating)
	assert.Zero(t, summary.Ratings.AgreementRate)
	assert.NotNil(t, summary.Weekly)
	assert.Empty(t, summary.Weekly)
	assert.Zero(t, summary.Team.TeamAverage)
	assert.Empty(t, summary.Team.TopPerformers)
}

func TestStatsAggregatorFiltersToFinalizedInRange(t *testing.T) {
	open := finalizedCheckIn("tm-1", "meeting", "meeting", "meeting", statsWeek)
	open.Official = nil
	position := finalizedCheckIn("tm-1", "1", "1", "1", statsWeek)
	position.Kind = models.CheckInKindPosition

	agg := NewStatsAggregator(StatsInput{
		Kind: models.CheckInKindAssignment,
		From: statsWeek,
		To:   statsWeek.AddDate(0, 0, 7),
		CheckIns: []models.CheckIn{
			open,
			position,
			finalizedCheckIn("tm-1", "meeting", "meeting", "meeting", statsWeek.AddDate(0, 0, 7)),
			finalizedCheckIn("tm-1", "meeting", "exceeding", "exceeding", statsWeek.Add(time.Hour)),
		},
	})

	ratings := agg.RatingStats()
	assert.Equal(t, 1, ratings.TotalFinalized)
	assert.Equal(t, map[string]int{"exceeding": 1}, ratings.RatingDistribution)
}

func TestStatsAggregatorRatingsAndAgreement(t *testing.T) {
	agg := NewStatsAggregator(StatsInput{
		Kind: models.CheckInKindAssignment,
		CheckIns: []models.CheckIn{
			finalizedCheckIn("tm-1", "meeting", "meeting", "meeting", statsWeek),
			finalizedCheckIn("tm-2", "meeting", "exceeding", "exceeding", statsWeek),
			finalizedCheckIn("tm-3", "working_to_meet", "meeting", "working_to_meet", statsWeek),
		},
	})

	ratings := agg.RatingStats()
	assert.Equal(t, 3, ratings.TotalFinalized)
	assert.Equal(t, 2.0, ratings.AverageRating)
	assert.Equal(t, 33.3, ratings.AgreementRate)
	assert.Equal(t, ratings, agg.RatingStats())
}

func TestStatsAggregatorFeedbackAndParticipation(t *testing.T) {
	agg := NewStatsAggregator(StatsInput{
		Kind:      models.CheckInKindAssignment,
		Teammates: []string{"tm-1", "tm-2", "tm-3"},
		CheckIns: []models.CheckIn{
			finalizedCheckIn("tm-1", "meeting", "meeting", "meeting", statsWeek),
		},
		Feedback: []models.Feedback{
			{ID: "fb-1", TeammateID: "tm-1", GiverID: "tm-2", Rating: 4, ConflictStyle: "collaborating", SubmittedAt: statsWeek},
			{ID: "fb-2", TeammateID: "tm-2", GiverID: "tm-2", Rating: 5, SubmittedAt: statsWeek},
			{ID: "fb-3", TeammateID: "tm-2", GiverID: "tm-1", Rating: 4, ConflictStyle: "collaborating", SubmittedAt: statsWeek},
		},
	})

	fb := agg.FeedbackStats()
	assert.Equal(t, 3, fb.TotalFeedback)
	assert.Equal(t, 4.3, fb.AverageRating)
	assert.Equal(t, map[int]int{4: 2, 5: 1}, fb.RatingDistribution)
	assert.Equal(t, map[string]int{"collaborating": 2}, fb.ConflictStyleDistribution)

	participation := agg.ParticipationStats()
	assert.Equal(t, 3, participation.ExpectedParticipants)
	assert.Equal(t, 2, participation.ActiveParticipants)
	assert.Equal(t, 66.7, participation.ParticipationRate)
	require.Len(t, participation.Participants, 3)
	assert.Equal(t, models.ParticipantStat{TeammateID: "tm-2", FeedbackCount: 2}, participation.Participants[1])
}

func TestStatsAggregatorParticipationCountsRosterOnly(t *testing.T) {
	agg := NewStatsAggregator(StatsInput{
		Kind:      models.CheckInKindAssignment,
		Teammates: []string{"tm-1", "tm-2"},
		CheckIns: []models.CheckIn{
			finalizedCheckIn("tm-9", "meeting", "meeting", "meeting", statsWeek),
		},
		Feedback: []models.Feedback{
			{ID: "fb-1", TeammateID: "tm-2", GiverID: "tm-1", Rating: 4, SubmittedAt: statsWeek},
			{ID: "fb-2", TeammateID: "tm-1", GiverID: "outsider", Rating: 3, SubmittedAt: statsWeek},
		},
	})

	participation := agg.ParticipationStats()
	assert.Equal(t, 2, participation.ExpectedParticipants)
	assert.Equal(t, 1, participation.ActiveParticipants)
	assert.Equal(t, 50.0, participation.ParticipationRate)
	ids := make([]string, 0, len(participation.Participants))
	for _, p := range participation.Participants {
		ids = append(ids, p.TeammateID)
	}
	assert.Equal(t, []string{"outsider", "tm-1", "tm-2", "tm-9"}, ids)
}

func TestStatsAggregatorWeeklyBuckets(t *testing.T) {
	sunday := statsWeek.AddDate(0, 0, 6).Add(23 * time.Hour)
	nextMonday := statsWeek.AddDate(0, 0, 7)
	agg := NewStatsAggregator(StatsInput{
		Kind: models.CheckInKindAssignment,
		CheckIns: []models.CheckIn{
			finalizedCheckIn("tm-1", "meeting", "meeting", "exceeding", nextMonday),
			finalizedCheckIn("tm-1", "meeting", "meeting", "meeting", statsWeek.Add(9*time.Hour)),
			finalizedCheckIn("tm-2", "meeting", "meeting", "working_to_meet", sunday),
		},
		Feedback: []models.Feedback{{ID: "fb-1", Rating: 3, SubmittedAt: nextMonday}},
	})

	weeks := agg.WeeklyStats()
	require.Len(t, weeks, 2)
	assert.Equal(t, models.WeeklyStat{WeekStart: statsWeek, FinalizedCount: 2, AverageRating: 1.5}, weeks[0])
	assert.Equal(t, models.WeeklyStat{WeekStart: nextMonday, FinalizedCount: 1, FeedbackCount: 1, AverageRating: 3}, weeks[1])
}

func TestStatsAggregatorTeamTopPerformers(t *testing.T) {
	agg := NewStatsAggregator(StatsInput{
		Kind:      models.CheckInKindAssignment,
		Teammates: []string{"tm-1", "tm-2", "tm-3", "tm-4", "tm-5"},
		CheckIns: []models.CheckIn{
			finalizedCheckIn("tm-1", "", "", "meeting", statsWeek),
			finalizedCheckIn("tm-2", "", "", "exceeding", statsWeek),
			finalizedCheckIn("tm-3", "", "", "exceeding", statsWeek),
			finalizedCheckIn("tm-4", "", "", "working_to_meet", statsWeek),
		},
	})

	team := agg.TeamStats()
	assert.Equal(t, []string{"tm-2", "tm-3", "tm-1"}, team.TopPerformers)
	assert.Equal(t, 2.3, team.TeamAverage)
	require.Len(t, team.Members, 5)
	assert.Equal(t, models.TeamMemberStat{TeammateID: "tm-5"}, team.Members[4])
}

func TestStatsAggregatorPositionScale(t *testing.T) {
	negative := finalizedCheckIn("tm-1", "-1", "-1", "-3", statsWeek)
	negative.Kind = models.CheckInKindPosition
	positive := finalizedCheckIn("tm-2", "2", "2", "2", statsWeek)
	positive.Kind = models.CheckInKindPosition

	agg := NewStatsAggregator(StatsInput{Kind: models.CheckInKindPosition, CheckIns: []models.CheckIn{negative, positive}})
	ratings := agg.RatingStats()
	assert.Equal(t, -0.5, ratings.AverageRating)
	assert.Equal(t, 100.0, ratings.AgreementRate)
}
