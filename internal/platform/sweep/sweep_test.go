package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) (int, error) {
	j.runs.Add(1)
	return 1, j.err
}

func TestRunner_RunsImmediatelyOnStart(t *testing.T) {
	job := &countingJob{name: "expiry"}
	r := NewRunner(time.Hour, zerolog.Nop(), job)
	r.Start(context.Background())
	defer r.Stop()

	deadline := time.After(2 * time.Second)
	for job.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job did not run after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunner_RunsOnInterval(t *testing.T) {
	job := &countingJob{name: "expiry"}
	r := NewRunner(20*time.Millisecond, zerolog.Nop(), job)
	r.Start(context.Background())
	defer r.Stop()

	deadline := time.After(2 * time.Second)
	for job.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", job.runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunner_FailedJobDoesNotStopOthers(t *testing.T) {
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	healthy := &countingJob{name: "healthy"}
	r := NewRunner(time.Hour, zerolog.Nop(), failing, healthy)
	r.Start(context.Background())
	defer r.Stop()

	deadline := time.After(2 * time.Second)
	for healthy.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("healthy job did not run after failing job errored")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunner_StopHaltsLoop(t *testing.T) {
	job := &countingJob{name: "expiry"}
	r := NewRunner(10*time.Millisecond, zerolog.Nop(), job)
	r.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	after := job.runs.Load()
	time.Sleep(50 * time.Millisecond)
	if job.runs.Load() != after {
		t.Error("job kept running after Stop")
	}
}
