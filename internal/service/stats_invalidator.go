package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/pkg/jobs"
)

// JobTypeStatsInvalidate drops cached stats summaries after lifecycle writes.
const JobTypeStatsInvalidate = "stats.invalidate"

// StatsInvalidator is notified whenever finalized records or live tenures change.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context, reason string)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// QueuedStatsInvalidator defers invalidation to the background job queue,
// falling back to an inline delete when the queue refuses the job.
type QueuedStatsInvalidator struct {
	queue  jobEnqueuer
	cache  *CacheService
	logger *zap.Logger
}

// NewQueuedStatsInvalidator constructs the invalidator. queue may be nil.
func NewQueuedStatsInvalidator(queue jobEnqueuer, cache *CacheService, logger *zap.Logger) *QueuedStatsInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedStatsInvalidator{queue: queue, cache: cache, logger: logger}
}

// InvalidateStats schedules removal of every cached summary.
func (i *QueuedStatsInvalidator) InvalidateStats(ctx context.Context, reason string) {
	if i == nil || !i.cache.Enabled() {
		return
	}
	if i.queue != nil {
		err := i.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeStatsInvalidate, Payload: reason})
		if err == nil {
			return
		}
		i.logger.Warn("stats invalidation not queued, running inline", zap.String("reason", reason), zap.Error(err))
	}
	if err := i.purge(ctx); err != nil {
		i.logger.Warn("stats invalidation failed", zap.String("reason", reason), zap.Error(err))
	}
}

// HandleJob is the jobs.Handler for JobTypeStatsInvalidate.
func (i *QueuedStatsInvalidator) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeStatsInvalidate {
		return fmt.Errorf("unexpected job type %q", job.Type)
	}
	return i.purge(ctx)
}

func (i *QueuedStatsInvalidator) purge(ctx context.Context) error {
	return i.cache.Invalidate(ctx, statsSummaryKeyPrefix+"*")
}
