package cron

import (
	"context"
	"fmt"

	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
)

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DispatchSweepJobParams configure the stale-pointer reconciliation job.
type DispatchSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
	Metrics *metrics.DispatchMetrics
}

// NewDispatchSweepJob wraps the dispatch sweeper as a cron job.
func NewDispatchSweepJob(params DispatchSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &dispatchSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
	}, nil
}

type dispatchSweepJob struct {
	logg    *logger.Logger
	sweeper sweeper
	metrics *metrics.DispatchMetrics
}

func (j *dispatchSweepJob) Name() string { return "dispatch-sweep" }

func (j *dispatchSweepJob) Run(ctx context.Context) error {
	recovered, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("dispatch sweep: %w", err)
	}
	j.metrics.AddStaleRecovered(recovered)
	if recovered > 0 {
		j.logg.Info(j.logg.WithField(ctx, "recovered", recovered), "stale dispatch jobs recovered")
	}
	return nil
}
