// Package jobs contains background maintenance jobs. The retention sweeper
// soft-deletes entity changes older than the configured maximum age. Action
// records are deliberately outside its reach: they are permanent.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/caseflow/caseflow/internal/safego"
	"github.com/caseflow/caseflow/internal/telemetry"
)

// ChangeExpirer is the repository surface the retention job sweeps through.
type ChangeExpirer interface {
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically expires entity changes past their retention age.
type RetentionJob struct {
	changes  ChangeExpirer
	maxAge   time.Duration
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewRetentionJob creates a retention job. maxAge is how long entity changes
// are kept; interval is how often the sweep runs.
func NewRetentionJob(changes ChangeExpirer, maxAge, interval time.Duration) *RetentionJob {
	return &RetentionJob{
		changes:  changes,
		maxAge:   maxAge,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (j *RetentionJob) Start() {
	safego.Go(func() {
		defer close(j.done)

		j.sweep()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.sweep()
			case <-j.stop:
				return
			}
		}
	})
}

// Stop halts the sweep loop and waits for any in-flight sweep to finish.
func (j *RetentionJob) Stop() {
	close(j.stop)
	<-j.done
}

func (j *RetentionJob) sweep() {
	cutoff := time.Now().Add(-j.maxAge)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := j.changes.ExpireOlderThan(ctx, cutoff)
	telemetry.RetentionSweepsTotal.Inc()
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}

	telemetry.RetentionRecordsExpiredTotal.Add(float64(expired))
	if expired > 0 {
		slog.Info("retention sweep expired changes", "count", expired, "cutoff", cutoff)
	}
}
