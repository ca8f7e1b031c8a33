package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/logger"
)

const (
	defaultSweepGraceWindow = 2 * time.Minute
	defaultSweepBatchSize   = 500
)

// staleJobStore finds QUEUED jobs whose pointer may have been lost.
type staleJobStore interface {
	FindQueuedStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]models.DispatchJob, error)
}

// SweeperParams collects the sweeper dependencies.
type SweeperParams struct {
	Store       staleJobStore
	Notifier    pointerNotifier
	Logger      *logger.Logger
	GraceWindow time.Duration
	BatchSize   int
}

// Sweeper re-announces QUEUED jobs whose scheduled time passed without a
// worker picking them up. It backstops the best-effort post-commit publish:
// duplicates it creates are absorbed by the conditional claim, so sweeping is
// always safe.
type Sweeper struct {
	store    staleJobStore
	notifier pointerNotifier
	logg     *logger.Logger
	grace    time.Duration
	batch    int
	now      func() time.Time
}

// NewSweeper validates dependencies and builds a sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Store == nil {
		return nil, errors.New("job store is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	grace := params.GraceWindow
	if grace <= 0 {
		grace = defaultSweepGraceWindow
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}

	return &Sweeper{
		store:    params.Store,
		notifier: params.Notifier,
		logg:     params.Logger,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
	}, nil
}

// Sweep republishes one batch of stale pointers and reports how many were
// announced. The grace window keeps freshly committed jobs out of the sweep so
// the normal post-commit publish gets its chance first.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.grace)

	jobs, err := s.store.FindQueuedStaleJobs(ctx, cutoff, s.batch)
	if err != nil {
		return 0, fmt.Errorf("finding stale jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	pointers := make([]JobPointer, 0, len(jobs))
	for i := range jobs {
		pointers = append(pointers, JobPointer{
			JobID:          jobs[i].ID,
			DispatchPoolID: jobs[i].DispatchPoolID,
			MessageGroup:   jobs[i].MessageGroup,
		})
	}

	published := s.notifier.NotifyAll(ctx, pointers)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stale":     len(jobs),
		"published": published,
	})
	s.logg.Info(logCtx, "stale queued jobs re-announced")
	return published, nil
}
