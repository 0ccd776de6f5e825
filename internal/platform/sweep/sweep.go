// Package sweep runs periodic background maintenance jobs: expiring
// out-of-date units and releasing stale reservations.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a named maintenance task. Run returns the number of rows it
// affected so the runner can log meaningful output.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

// Runner executes registered jobs on a fixed interval until stopped.
type Runner struct {
	interval time.Duration
	jobs     []Job
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(interval time.Duration, logger zerolog.Logger, jobs ...Job) *Runner {
	return &Runner{interval: interval, jobs: jobs, logger: logger}
}

// Start launches the background loop. Each job runs once immediately so a
// restarted server catches up without waiting a full interval.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runAll(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runAll(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight run to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) runAll(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		n, err := job.Run(ctx)
		if err != nil {
			r.logger.Error().Err(err).Str("sweep", job.Name()).Msg("sweep failed")
			continue
		}
		if n > 0 {
			r.logger.Info().Str("sweep", job.Name()).Int("affected", n).Msg("sweep completed")
		}
	}
}
