package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/logger"
)

type fakeSweeper struct {
	recovered int
	err       error
	calls     int
}

func (f *fakeSweeper) Sweep(ctx context.Context) (int, error) {
	f.calls++
	return f.recovered, f.err
}

func TestDispatchSweepJobRunsSweeper(t *testing.T) {
	sweeper := &fakeSweeper{recovered: 3}
	job, err := NewDispatchSweepJob(DispatchSweepJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewDispatchSweepJob: %v", err)
	}
	if job.Name() != "dispatch-sweep" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep, got %d", sweeper.calls)
	}
}

func TestDispatchSweepJobPropagatesError(t *testing.T) {
	job, err := NewDispatchSweepJob(DispatchSweepJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: &fakeSweeper{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewDispatchSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeJobCounter struct {
	count int64
	err   error
	last  enums.DispatchStatus
}

func (f *fakeJobCounter) CountJobsByStatus(ctx context.Context, status enums.DispatchStatus) (int64, error) {
	f.last = status
	return f.count, f.err
}

func TestQueuedJobsGaugeJobCountsQueued(t *testing.T) {
	counter := &fakeJobCounter{count: 42}
	job, err := NewQueuedJobsGaugeJob(QueuedJobsGaugeJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Counter: counter,
	})
	if err != nil {
		t.Fatalf("NewQueuedJobsGaugeJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counter.last != enums.DispatchQueued {
		t.Fatalf("expected QUEUED count, got %s", counter.last)
	}
}
