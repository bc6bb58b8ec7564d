// Package dispatcher polls the Store for claimable tasks and hands them to
// the Executor, enforcing global and per-type concurrency (§4.F).
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/platform/metrics"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
	"github.com/taskflow-engine/taskflow/internal/taskengine/executor"
	"github.com/taskflow-engine/taskflow/internal/taskengine/registry"
)

// WakeSignal lets submit/spawn callers wake a sleeping dispatcher
// immediately rather than waiting out the poll interval. The in-process
// implementation is a buffered channel; a Redis-backed implementation can
// satisfy the same interface to wake dispatchers across processes.
type WakeSignal interface {
	Post()
	Wait(ctx context.Context, timeout time.Duration)
}

// chanWakeSignal is the default single-process wake signal: a
// capacity-1 buffered channel behaves like a counting semaphore with an
// upper bound of one pending wake, which is all a poll loop needs.
type chanWakeSignal struct {
	ch chan struct{}
}

// NewWakeSignal creates the default in-process wake signal.
func NewWakeSignal() WakeSignal {
	return &chanWakeSignal{ch: make(chan struct{}, 1)}
}

func (s *chanWakeSignal) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *chanWakeSignal) Wait(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Dispatcher is the single poll loop per manager instance.
type Dispatcher struct {
	store    repository.Store
	registry *registry.Registry
	exec     *executor.Executor
	log      logger.Logger
	metrics  *metrics.Metrics

	workerID        string
	maxConcurrent   int
	pollInterval    time.Duration
	wake            WakeSignal

	sem chan struct{}

	pauseMu sync.RWMutex
	paused  bool
	pauseCh chan struct{} // closed while not paused, replaced on pause

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// Config carries the Dispatcher's tunables, sourced from platform config's
// TaskEngineConfig.
type Config struct {
	WorkerID           string
	MaxConcurrentTasks int
	PollInterval       time.Duration

	// Wake overrides the default in-process wake signal. Leave nil for a
	// single-process deployment; pass a Redis-backed implementation to let
	// submit/spawn callers on other processes wake this dispatcher too.
	Wake WakeSignal
}

// New creates a Dispatcher bound to a Store, Registry and Executor.
func New(store repository.Store, reg *registry.Registry, exec *executor.Executor, log logger.Logger, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Wake == nil {
		cfg.Wake = NewWakeSignal()
	}

	d := &Dispatcher{
		store:         store,
		registry:      reg,
		exec:          exec,
		log:           log,
		metrics:       m,
		workerID:      cfg.WorkerID,
		maxConcurrent: cfg.MaxConcurrentTasks,
		pollInterval:  cfg.PollInterval,
		wake:          cfg.Wake,
		sem:           make(chan struct{}, cfg.MaxConcurrentTasks),
		pauseCh:       make(chan struct{}),
		stopCh:        make(chan struct{}),
	}
	close(d.pauseCh) // not paused initially
	return d
}

// Wake posts to the dispatcher's wake signal, used by submit/spawn callers
// so new work is picked up immediately instead of waiting for the next
// poll tick.
func (d *Dispatcher) Wake() {
	d.wake.Post()
}

// Pause holds the dispatcher between acquiring a concurrency slot and
// claiming work: in-flight tasks keep running, but no new ones start.
func (d *Dispatcher) Pause() {
	d.pauseMu.Lock()
	defer d.pauseMu.Unlock()
	if d.paused {
		return
	}
	d.paused = true
	d.pauseCh = make(chan struct{})
}

// Resume clears the pause gate.
func (d *Dispatcher) Resume() {
	d.pauseMu.Lock()
	defer d.pauseMu.Unlock()
	if !d.paused {
		return
	}
	d.paused = false
	close(d.pauseCh)
}

func (d *Dispatcher) pauseGate() chan struct{} {
	d.pauseMu.RLock()
	defer d.pauseMu.RUnlock()
	return d.pauseCh
}

// Start runs the poll loop until Stop is called. It blocks the calling
// goroutine; callers typically invoke it via `go dispatcher.Start(ctx)`.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		// acquire global semaphore (suspension point)
		select {
		case d.sem <- struct{}{}:
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}

		// wait(pause_event) (suspension point)
		select {
		case <-d.pauseGate():
		case <-d.stopCh:
			<-d.sem
			return
		case <-ctx.Done():
			<-d.sem
			return
		}

		eligible := d.registry.EligibleNames()
		if len(eligible) == 0 {
			<-d.sem
			d.wake.Wait(ctx, d.pollInterval)
			continue
		}

		claimStart := time.Now()
		task, err := d.store.Claim(ctx, eligible, d.workerID)
		if d.metrics != nil {
			d.metrics.TaskClaimDuration.Observe(time.Since(claimStart).Seconds())
		}
		if err != nil {
			d.log.Error("claim failed", "error", err)
			<-d.sem
			d.wake.Wait(ctx, d.pollInterval)
			continue
		}
		if task == nil {
			<-d.sem
			d.wake.Wait(ctx, d.pollInterval)
			continue
		}

		if d.metrics != nil {
			d.metrics.TasksClaimedTotal.WithLabelValues(task.Name).Inc()
			d.metrics.TasksRunning.WithLabelValues(task.Name).Inc()
		}

		d.wg.Add(1)
		go d.runOne(ctx, task)
	}
}

// runOne executes a single claimed task and releases its concurrency slot
// when done.
func (d *Dispatcher) runOne(ctx context.Context, task *model.Task) {
	defer d.wg.Done()
	defer func() { <-d.sem }()
	if d.metrics != nil {
		defer d.metrics.TasksRunning.WithLabelValues(task.Name).Dec()
	}

	d.exec.Run(ctx, task)
}

// Stop signals the poll loop to exit and waits for in-flight executions to
// drain.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}
