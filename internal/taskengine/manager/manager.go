// Package manager is the public façade described in §4.H: handler
// registration, submission, pause/resume, and read APIs, wired to a
// lifecycle state machine of init -> running -> stopped.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/platform/metrics"
	"github.com/taskflow-engine/taskflow/internal/taskengine/cron"
	"github.com/taskflow-engine/taskflow/internal/taskengine/dispatcher"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
	"github.com/taskflow-engine/taskflow/internal/taskengine/executor"
	"github.com/taskflow-engine/taskflow/internal/taskengine/maintenance"
	"github.com/taskflow-engine/taskflow/internal/taskengine/registry"
	"github.com/taskflow-engine/taskflow/internal/taskengine/validation"
)

// State is the manager's lifecycle state.
type State string

const (
	StateInit    State = "init"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Config carries everything the manager needs beyond the Store.
type Config struct {
	WorkerID             string
	MaxConcurrentTasks   int
	PollInterval         time.Duration
	ActiveUpdateInterval time.Duration
	ExpireSeconds        *int64

	// Wake, when set, overrides the dispatcher's default in-process wake
	// signal — e.g. a Redis-backed implementation shared across processes.
	Wake dispatcher.WakeSignal
}

// Manager is the embedded-library entry point: register handlers while in
// init state, start() to begin dispatching and maintenance, stop() to
// drain and shut down.
type Manager struct {
	store      repository.Store
	registry   *registry.Registry
	validator  *validation.PayloadValidator
	log        logger.Logger
	metrics    *metrics.Metrics

	dispatcher  *dispatcher.Dispatcher
	executor    *executor.Executor
	maintenance *maintenance.Runner

	cfg Config

	mu    sync.RWMutex
	state State
}

// New creates a manager in init state.
func New(store repository.Store, log logger.Logger, m *metrics.Metrics, cfg Config) *Manager {
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}

	reg := registry.New()
	exec := executor.New(store, reg, log)

	return &Manager{
		store:     store,
		registry:  reg,
		validator: validation.New(),
		log:       log,
		metrics:   m,
		executor:  exec,
		cfg:       cfg,
		state:     StateInit,
	}
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) requireState(want State) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != want {
		return fmt.Errorf("%w: operation requires state %q, manager is %q", model.ErrInvalidState, want, m.state)
	}
	return nil
}

// HandlerOptions configures a Use() registration beyond the bare handler.
type HandlerOptions struct {
	Description   string
	ParamSchema   json.RawMessage
	OutputSchema  json.RawMessage
	Priority      int
	MaxRetries    int
	RetryInterval int64
	TimeoutSecs   int64
	MaxConcurrent *int
}

// Use registers a handler under name. Only valid in init state.
func (m *Manager) Use(name string, handler registry.Handler, opts HandlerOptions) error {
	if err := m.requireState(StateInit); err != nil {
		return err
	}

	if len(opts.ParamSchema) > 0 {
		if err := m.validator.Register(name, opts.ParamSchema); err != nil {
			return err
		}
	}

	defaults := registry.Defaults{
		Priority:      opts.Priority,
		MaxRetries:    opts.MaxRetries,
		RetryInterval: opts.RetryInterval,
		TimeoutSecs:   opts.TimeoutSecs,
	}
	meta := registry.Metadata{
		Description:  opts.Description,
		ParamSchema:  opts.ParamSchema,
		OutputSchema: opts.OutputSchema,
	}

	return m.registry.Use(name, handler, defaults, meta, opts.MaxConcurrent)
}

// UseMany registers a bulk mapping of name -> handler, each with default
// options. Callers needing per-handler options should call Use repeatedly.
func (m *Manager) UseMany(handlers map[string]registry.Handler) error {
	for name, h := range handlers {
		if err := m.Use(name, h, HandlerOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// Start transitions init -> running, locking the registry and launching
// the dispatcher and maintenance loops. stopped -> running is forbidden.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return model.ErrCannotRestart
	}
	if m.state == StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateRunning
	m.mu.Unlock()

	m.registry.Lock()

	m.dispatcher = dispatcher.New(m.store, m.registry, m.executor, m.log, m.metrics, dispatcher.Config{
		WorkerID:           m.cfg.WorkerID,
		MaxConcurrentTasks: m.cfg.MaxConcurrentTasks,
		PollInterval:       m.cfg.PollInterval,
		Wake:               m.cfg.Wake,
	})
	m.maintenance = maintenance.New(m.store, m.log, m.metrics, maintenance.Config{
		ActiveUpdateInterval: m.cfg.ActiveUpdateInterval,
		ExpireSeconds:        m.cfg.ExpireSeconds,
		RunningIDs:           m.executor.Running,
	})

	go m.dispatcher.Start(ctx)
	go m.maintenance.Start(ctx)

	return nil
}

// Stop transitions running -> stopped: it stops the dispatcher (draining
// in-flight executions), cancels the maintenance timer, and closes the
// Store.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopped
	m.mu.Unlock()

	if m.dispatcher != nil {
		m.dispatcher.Stop()
	}
	if m.maintenance != nil {
		m.maintenance.Stop()
	}

	return m.store.Close()
}

// SubmitOptions carries the options enumerated in §6 for submitAsync.
type SubmitOptions struct {
	Delay         time.Duration
	Priority      *int
	Tag           *string
	MaxRetries    *int
	RetryInterval *int64
	TimeoutSecs   *int64
}

// SubmitAsync registers a one-shot task and wakes the dispatcher.
func (m *Manager) SubmitAsync(ctx context.Context, name string, payload interface{}, opts SubmitOptions) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling payload: %v", model.ErrInvalidTaskPayload, err)
	}
	if err := m.validator.Validate(name, payloadJSON); err != nil {
		return 0, err
	}

	entry, _ := m.registry.Get(name)
	priority, maxRetries, retryInterval, timeoutSecs := applyDefaults(entry, opts.Priority, opts.MaxRetries, opts.RetryInterval, opts.TimeoutSecs)

	next := time.Now().Add(opts.Delay)
	task := &model.Task{
		Name:           name,
		Type:           model.TypeAsync,
		Payload:        payloadJSON,
		Priority:       priority,
		Tag:            opts.Tag,
		NextRunTime:    &next,
		TimeoutSeconds: timeoutSecs,
		MaxRetries:     maxRetries,
		RetryInterval:  retryInterval,
	}

	ids, err := m.store.Insert(ctx, []*model.Task{task}, model.InsertOptions{})
	if err != nil {
		return 0, err
	}

	if m.dispatcher != nil {
		m.dispatcher.Wake()
	}

	return ids[0], nil
}

// SubmitCron registers a recurring task, parsing the cron expression at
// submission time.
func (m *Manager) SubmitCron(ctx context.Context, name, cronExpr string, payload interface{}, opts SubmitOptions) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling payload: %v", model.ErrInvalidTaskPayload, err)
	}
	if err := m.validator.Validate(name, payloadJSON); err != nil {
		return 0, err
	}

	next, err := cron.NextAfter(cronExpr, time.Now())
	if err != nil {
		return 0, err
	}

	entry, _ := m.registry.Get(name)
	priority, maxRetries, retryInterval, timeoutSecs := applyDefaults(entry, opts.Priority, opts.MaxRetries, opts.RetryInterval, opts.TimeoutSecs)

	expr := cronExpr
	task := &model.Task{
		Name:           name,
		Type:           model.TypeCron,
		Payload:        payloadJSON,
		Priority:       priority,
		Tag:            opts.Tag,
		NextRunTime:    &next,
		TimeoutSeconds: timeoutSecs,
		MaxRetries:     maxRetries,
		RetryInterval:  retryInterval,
		CronExpr:       &expr,
	}

	ids, err := m.store.Insert(ctx, []*model.Task{task}, model.InsertOptions{})
	if err != nil {
		return 0, err
	}

	if m.dispatcher != nil {
		m.dispatcher.Wake()
	}

	return ids[0], nil
}

func applyDefaults(entry *registry.Entry, priority, maxRetries *int, retryInterval, timeoutSecs *int64) (int, int, int64, int64) {
	var d registry.Defaults
	if entry != nil {
		d = entry.Defaults
	}
	spec := model.Spec{Priority: priority, MaxRetries: maxRetries, RetryInterval: retryInterval, TimeoutSecs: timeoutSecs}
	return spec.ApplyDefaults(d.Priority, d.MaxRetries, d.RetryInterval, d.TimeoutSecs)
}

// Resume implements resume(id): pending tasks are unaffected semantically,
// paused tasks return to pending with retry_count reset.
func (m *Manager) Resume(ctx context.Context, id int64) error {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == model.StatusPending {
		return nil
	}

	now := time.Now()
	zero := 0
	err = m.store.UpdateStatus(ctx, id, model.StatusPending, model.StatusUpdate{
		RetryCount:  &zero,
		NextRunTime: &now,
	})
	if err == nil && m.dispatcher != nil {
		m.dispatcher.Wake()
	}
	return err
}

// Pause pauses a single task.
func (m *Manager) Pause(ctx context.Context, id int64) error {
	return m.store.UpdateStatus(ctx, id, model.StatusPaused, model.StatusUpdate{})
}

// PauseAll pauses every currently pending or running task.
func (m *Manager) PauseAll(ctx context.Context) error {
	for _, st := range []model.Status{model.StatusPending, model.StatusRunning} {
		tasks, err := m.store.GetByStatus(ctx, st)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := m.store.UpdateStatus(ctx, t.ID, model.StatusPaused, model.StatusUpdate{}); err != nil {
				m.log.Error("pauseAll: failed to pause task", "task_id", t.ID, "error", err)
			}
		}
	}
	return nil
}

// ResumeAll resumes every paused task.
func (m *Manager) ResumeAll(ctx context.Context) error {
	tasks, err := m.store.GetByStatus(ctx, model.StatusPaused)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := m.Resume(ctx, t.ID); err != nil {
			m.log.Error("resumeAll: failed to resume task", "task_id", t.ID, "error", err)
		}
	}
	return nil
}

// Get returns a task by id.
func (m *Manager) Get(ctx context.Context, id int64) (*model.Task, error) { return m.store.Get(ctx, id) }

// GetByName returns all tasks registered under name.
func (m *Manager) GetByName(ctx context.Context, name string) ([]*model.Task, error) {
	return m.store.GetByName(ctx, name)
}

// GetByStatus returns all tasks in a given status.
func (m *Manager) GetByStatus(ctx context.Context, status model.Status) ([]*model.Task, error) {
	return m.store.GetByStatus(ctx, status)
}

// GetByTag returns all tasks with a given tag.
func (m *Manager) GetByTag(ctx context.Context, tag string) ([]*model.Task, error) {
	return m.store.GetByTag(ctx, tag)
}

// GetStatsByTag returns aggregated counts grouped by (tag, name, status).
func (m *Manager) GetStatsByTag(ctx context.Context, tag *string, status *model.Status) ([]model.StatsRow, error) {
	return m.store.GetStatsByTag(ctx, tag, status)
}

// GetTasks returns tasks matching filters, newest-first.
func (m *Manager) GetTasks(ctx context.Context, filters model.Filters) ([]*model.Task, error) {
	return m.store.GetTasks(ctx, filters)
}

// GetChildren returns the direct children of a parent task.
func (m *Manager) GetChildren(ctx context.Context, parentID int64) ([]*model.Task, error) {
	return m.store.GetChildren(ctx, parentID)
}

// GetTaskInfo is an alias of Get kept for API-surface parity with the
// read APIs enumerated in §4.H.
func (m *Manager) GetTaskInfo(ctx context.Context, id int64) (*model.Task, error) { return m.Get(ctx, id) }

// DeleteTasks performs a bulk admin delete.
func (m *Manager) DeleteTasks(ctx context.Context, filters model.Filters) (int64, error) {
	return m.store.Delete(ctx, filters)
}
