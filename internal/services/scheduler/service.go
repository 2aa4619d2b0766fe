// Package scheduler drives per-tenant cadence: a recurring tick finds due
// schedules and enqueues an evaluation job followed by a dispatch job for
// each. The tick itself never blocks on downstream work.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

// Service owns the outreach tick.
type Service struct {
	repos repository.RepositoryManager
	queue job.Queue
	tick  time.Duration
}

// New creates a scheduler ticking at the given interval.
func New(repos repository.RepositoryManager, queue job.Queue, tick time.Duration) *Service {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Service{repos: repos, queue: queue, tick: tick}
}

// Start runs the tick loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		logger.Base().Info("scheduler started", zap.Duration("tick", s.tick))
		for {
			select {
			case <-ctx.Done():
				logger.Base().Info("scheduler stopped")
				return
			case now := <-ticker.C:
				if _, err := s.Tick(ctx, now.UTC()); err != nil {
					logger.Base().Warn("scheduler tick failed", zap.Error(err))
				}
			}
		}
	}()
}

// Tick enqueues work for every schedule due at now and returns how many
// tenants fired. last_sent advances with a conditional write before the
// enqueue, so two racing schedulers fire a tenant at most once, and it
// advances even if the downstream jobs later fail: a broken tenant must not
// retry outreach in a tight loop.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repos.Schedule().DueSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to load due schedules: %w", err)
	}

	fired := 0
	for _, schedule := range due {
		won, err := s.repos.Schedule().MarkSent(ctx, schedule.TenantID, schedule.LastSent, now)
		if err != nil {
			logger.Base().Warn("failed to advance schedule",
				zap.String("tenant_id", schedule.TenantID),
				zap.Error(err),
			)
			continue
		}
		if !won {
			// Another scheduler instance got there first.
			continue
		}

		// Evaluate before dispatch so the dispatcher sees fresh statuses.
		s.queue.Enqueue(job.Job{Kind: job.KindEvaluateTenant, TenantID: schedule.TenantID})
		s.queue.Enqueue(job.Job{Kind: job.KindDispatchTenant, TenantID: schedule.TenantID})
		fired++

		logger.Base().Info("schedule fired",
			zap.String("tenant_id", schedule.TenantID),
			zap.String("frequency", string(schedule.Frequency)),
		)
	}
	return fired, nil
}
