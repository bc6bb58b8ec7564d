// Package maintenance runs the periodic heartbeat, timeout, retry and GC
// sweep described in §4.G. Step ordering within one tick is load-bearing:
// detecting timeouts before scheduling retries guarantees a timed-out task
// gets exactly one retry decision per sweep.
package maintenance

import (
	"context"
	"time"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/platform/metrics"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
)

// Runner ticks Store.UpdateActiveTime and Store.HandleTimeouts on a fixed
// interval until stopped.
type Runner struct {
	store repository.Store
	log   logger.Logger
	metrics *metrics.Metrics

	activeUpdateInterval time.Duration
	expireSeconds        *int64

	runningIDs func() []int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config carries the Runner's tunables.
type Config struct {
	ActiveUpdateInterval time.Duration
	ExpireSeconds        *int64
	// RunningIDs returns the locally-running task ids to heartbeat; supplied
	// by the Executor's Running() method.
	RunningIDs func() []int64
}

// New creates a maintenance Runner bound to a Store.
func New(store repository.Store, log logger.Logger, m *metrics.Metrics, cfg Config) *Runner {
	if cfg.ActiveUpdateInterval <= 0 {
		cfg.ActiveUpdateInterval = 5 * time.Second
	}
	if cfg.RunningIDs == nil {
		cfg.RunningIDs = func() []int64 { return nil }
	}
	return &Runner{
		store:                store,
		log:                  log,
		metrics:              m,
		activeUpdateInterval: cfg.ActiveUpdateInterval,
		expireSeconds:        cfg.ExpireSeconds,
		runningIDs:           cfg.RunningIDs,
		stopCh:               make(chan struct{}),
		doneCh:               make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. Blocks the calling
// goroutine; callers typically invoke it via `go runner.Start(ctx)`.
func (r *Runner) Start(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.activeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Stop signals the sweep loop to exit and waits for it to finish its
// current tick.
func (r *Runner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()

	// Step 1: heartbeat.
	if ids := r.runningIDs(); len(ids) > 0 {
		if err := r.store.UpdateActiveTime(ctx, ids); err != nil {
			r.log.Error("maintenance: heartbeat update failed", "error", err)
		}
	}

	// Steps 2-7: timeout sweep, retry scheduling/exhaustion, cascade, GC —
	// delegated to the Store since they require the same transactional
	// guarantees as claim/updateStatus and operate over rows this process
	// may not itself be running (other workers' tasks included).
	activeIntervalMS := r.activeUpdateInterval.Milliseconds()
	result, err := r.store.HandleTimeouts(ctx, activeIntervalMS, r.expireSeconds)
	if err != nil {
		r.log.Error("maintenance: sweep failed", "error", err)
		return
	}

	r.log.Debug("maintenance sweep complete",
		"total_timeouts", result.TotalTimeouts,
		"heartbeat_timeouts", result.HeartbeatTimeouts,
		"retries_scheduled", result.RetriesScheduled,
		"retries_exhausted", result.RetriesExhausted,
		"parents_cascaded", result.ParentsCascaded,
		"gced", result.GCed,
	)

	if r.metrics != nil {
		r.metrics.MaintenanceSweepDuration.Observe(time.Since(start).Seconds())
		r.metrics.MaintenanceSweepTotal.WithLabelValues("total_timeout").Add(float64(result.TotalTimeouts))
		r.metrics.MaintenanceSweepTotal.WithLabelValues("heartbeat_timeout").Add(float64(result.HeartbeatTimeouts))
		r.metrics.MaintenanceSweepTotal.WithLabelValues("retry_scheduled").Add(float64(result.RetriesScheduled))
		r.metrics.MaintenanceSweepTotal.WithLabelValues("retry_exhausted").Add(float64(result.RetriesExhausted))
		r.metrics.MaintenanceSweepTotal.WithLabelValues("parent_cascaded").Add(float64(result.ParentsCascaded))
		r.metrics.MaintenanceSweepTotal.WithLabelValues("gc").Add(float64(result.GCed))
	}
}
