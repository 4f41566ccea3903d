package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
	"github.com/noah-isme/maap-api/pkg/jobs"
)

type memCacheRepo struct {
	mu       sync.Mutex
	entries  map[string][]byte
	patterns []string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: map[string][]byte{}}
}

func (r *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	for key := range r.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.entries, key)
		}
	}
	return nil
}

func (r *memCacheRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type countingCheckIns struct {
	memCheckIns
	calls int
}

func (c *countingCheckIns) ListFinalized(ctx context.Context, filter models.FinalizedCheckInFilter) ([]models.CheckIn, error) {
	c.calls++
	return c.memCheckIns.ListFinalized(ctx, filter)
}

func seedStatsWorld() *memWorld {
	world := newMemWorld()
	world.employment["tm-1"] = models.EmploymentTenure{ID: "emp-1", TeammateID: "tm-1", OrganizationID: "org-1"}
	world.employment["tm-2"] = models.EmploymentTenure{ID: "emp-2", TeammateID: "tm-2", OrganizationID: "org-1"}
	ci := finalizedCheckIn("tm-1", "meeting", "meeting", "exceeding", statsWeek.Add(-48*time.Hour))
	world.checkIns[ci.ID] = &ci
	world.feedback = append(world.feedback, models.Feedback{ID: "fb-1", OrganizationID: "org-1", TeammateID: "tm-1", GiverID: "tm-2", Rating: 5, SubmittedAt: statsWeek.Add(-24 * time.Hour)})
	return world
}

func newStatsServiceFixture(world *memWorld, repo CacheRepository) (*StatsService, *countingCheckIns) {
	checkIns := &countingCheckIns{memCheckIns: memCheckIns{world}}
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, repo != nil)
	svc := NewStatsService(checkIns, memFeedback{world}, memEmployment{world}, cache, NewMetricsService(), nil)
	svc.now = fixedClock(statsWeek.Add(10 * time.Hour))
	return svc, checkIns
}

func TestStatsServiceSummaryDefaultsAndCaches(t *testing.T) {
	repo := newMemCacheRepo()
	svc, checkIns := newStatsServiceFixture(seedStatsWorld(), repo)
	ctx := context.Background()

	summary, cached, err := svc.Summary(ctx, models.StatsQuery{OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, models.CheckInKindAssignment, summary.Query.Kind)
	assert.Equal(t, statsWeek.AddDate(0, 0, 1), summary.Query.To)
	assert.Equal(t, statsWeek.AddDate(0, 0, -29), summary.Query.From)
	assert.Equal(t, 1, summary.Ratings.TotalFinalized)
	assert.Equal(t, 3.0, summary.Ratings.AverageRating)
	assert.Equal(t, 1, summary.Feedback.TotalFeedback)
	assert.Equal(t, 100.0, summary.Participation.ParticipationRate)
	assert.Equal(t, 1, repo.size())

	again, cached, err := svc.Summary(ctx, models.StatsQuery{OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, summary.Ratings, again.Ratings)
	assert.Equal(t, 1, checkIns.calls)
}

func TestStatsServiceWithoutCacheAlwaysComputes(t *testing.T) {
	svc, checkIns := newStatsServiceFixture(seedStatsWorld(), nil)

	for i := 0; i < 2; i++ {
		_, cached, err := svc.Summary(context.Background(), models.StatsQuery{OrganizationID: "org-1"})
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, 2, checkIns.calls)
}

func TestStatsServiceRejectsBadQueries(t *testing.T) {
	svc, _ := newStatsServiceFixture(seedStatsWorld(), nil)
	cases := []struct {
		name  string
		query models.StatsQuery
		field string
	}{
		{name: "organization", query: models.StatsQuery{}, field: "organization_id"},
		{name: "kind", query: models.StatsQuery{OrganizationID: "org-1", Kind: "huddle"}, field: "kind"},
		{name: "inverted", query: models.StatsQuery{OrganizationID: "org-1", From: statsWeek, To: statsWeek.AddDate(0, 0, -1)}, field: "from"},
		{name: "too wide", query: models.StatsQuery{OrganizationID: "org-1", From: statsWeek.AddDate(-2, 0, 0), To: statsWeek}, field: "to"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Summary(context.Background(), tc.query)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Fields, tc.field)
		})
	}
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *stubQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestQueuedStatsInvalidatorEnqueuesAndPurges(t *testing.T) {
	repo := newMemCacheRepo()
	svc, checkIns := newStatsServiceFixture(seedStatsWorld(), repo)
	ctx := context.Background()
	_, _, err := svc.Summary(ctx, models.StatsQuery{OrganizationID: "org-1"})
	require.NoError(t, err)

	queue := &stubQueue{}
	invalidator := NewQueuedStatsInvalidator(queue, svc.cache, nil)
	invalidator.InvalidateStats(ctx, "check_in_finalized")
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeStatsInvalidate, queue.jobs[0].Type)
	assert.Equal(t, 1, repo.size())

	require.NoError(t, invalidator.HandleJob(ctx, queue.jobs[0]))
	assert.Zero(t, repo.size())
	assert.Equal(t, []string{"summary*"}, repo.patterns)

	_, cached, err := svc.Summary(ctx, models.StatsQuery{OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, checkIns.calls)

	assert.Error(t, invalidator.HandleJob(ctx, jobs.Job{Type: "other"}))
}

func TestQueuedStatsInvalidatorFallsBackInline(t *testing.T) {
	repo := newMemCacheRepo()
	svc, _ := newStatsServiceFixture(seedStatsWorld(), repo)
	ctx := context.Background()
	_, _, err := svc.Summary(ctx, models.StatsQuery{OrganizationID: "org-1"})
	require.NoError(t, err)

	invalidator := NewQueuedStatsInvalidator(&stubQueue{err: errors.New("queue full")}, svc.cache, nil)
	invalidator.InvalidateStats(ctx, "snapshot_executed")
	assert.Zero(t, repo.size())
}
