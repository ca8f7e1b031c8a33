package cron

import (
	"context"
	"fmt"

	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
)

type jobCounter interface {
	CountJobsByStatus(ctx context.Context, status enums.DispatchStatus) (int64, error)
}

// QueuedJobsGaugeJobParams configure the backlog gauge job.
type QueuedJobsGaugeJobParams struct {
	Logger  *logger.Logger
	Counter jobCounter
	Metrics *metrics.DispatchMetrics
}

// NewQueuedJobsGaugeJob reports the QUEUED backlog size to the metrics gauge.
func NewQueuedJobsGaugeJob(params QueuedJobsGaugeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("job counter required")
	}
	return &queuedJobsGaugeJob{
		logg:    params.Logger,
		counter: params.Counter,
		metrics: params.Metrics,
	}, nil
}

type queuedJobsGaugeJob struct {
	logg    *logger.Logger
	counter jobCounter
	metrics *metrics.DispatchMetrics
}

func (j *queuedJobsGaugeJob) Name() string { return "queued-jobs-gauge" }

func (j *queuedJobsGaugeJob) Run(ctx context.Context) error {
	count, err := j.counter.CountJobsByStatus(ctx, enums.DispatchQueued)
	if err != nil {
		return fmt.Errorf("count queued jobs: %w", err)
	}
	j.metrics.SetQueuedJobs(count)
	return nil
}
