// Package executor runs a single claimed task under its registered
// handler, interprets the handler's return value, and writes the outcome
// back through the Store (§4.E).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-engine/taskflow/internal/taskengine/cron"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
	"github.com/taskflow-engine/taskflow/internal/taskengine/registry"
	"github.com/taskflow-engine/taskflow/internal/platform/logger"
)

var tracer = otel.Tracer("taskengine/executor")

// Executor runs claimed tasks. One Executor instance is shared by every
// concurrently spawned invocation; state per invocation lives in run().
type Executor struct {
	store    repository.Store
	registry *registry.Registry
	log      logger.Logger

	mu      sync.Mutex
	running map[int64]struct{}
}

// New creates an Executor bound to a Store and handler Registry.
func New(store repository.Store, reg *registry.Registry, log logger.Logger) *Executor {
	return &Executor{
		store:    store,
		registry: reg,
		log:      log,
		running:  make(map[int64]struct{}),
	}
}

// Running reports the ids currently executing; the manager hands it to the
// maintenance runner as the set of tasks to heartbeat.
func (e *Executor) Running() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

// Run executes task to completion (including writing the outcome via the
// Store) and always releases the registry's running_count and this
// Executor's local running set, regardless of outcome (§4.E step 6).
func (e *Executor) Run(ctx context.Context, task *model.Task) {
	e.mu.Lock()
	e.running[task.ID] = struct{}{}
	e.mu.Unlock()

	e.registry.Begin(task.Name)

	defer func() {
		e.registry.End(task.Name)
		e.mu.Lock()
		delete(e.running, task.ID)
		e.mu.Unlock()
	}()

	e.run(ctx, task)
}

func (e *Executor) run(ctx context.Context, task *model.Task) {
	spanCtx, span := tracer.Start(ctx, fmt.Sprintf("taskengine.execute.%s", task.Name),
		trace.WithAttributes(
			attribute.Int64("task.id", task.ID),
			attribute.String("task.name", task.Name),
			attribute.Int64("task.stage", int64(task.Stage)),
			attribute.Int("task.retry_count", task.RetryCount),
		),
	)
	defer span.End()

	entry, ok := e.registry.Get(task.Name)
	if !ok {
		e.log.Error("no handler registered for claimed task", "task_id", task.ID, "name", task.Name)
		_ = e.store.UpdateStatus(spanCtx, task.ID, model.StatusFailed, model.StatusUpdate{
			Error: strPtr(fmt.Sprintf("no handler registered for task name %q", task.Name)),
		})
		return
	}

	timeout := task.TimeoutSeconds
	if timeout == 0 {
		timeout = entry.Defaults.TimeoutSecs
	}

	// task.DecodeResult() gives handlers the accumulated child outcome log
	// for stage > 0; the executor doesn't need it itself, so handlers call
	// task.DecodeResult() directly rather than having it threaded through here.

	spawnFn := registry.Spawn

	result, handlerErr := e.invoke(spanCtx, entry, task, spawnFn, timeout)

	if handlerErr != nil {
		e.onError(spanCtx, task, handlerErr, span)
		return
	}

	if spawned, isSpawn := result.(*registry.SpawnResult); isSpawn {
		e.onSpawn(spanCtx, task, spawned, span)
		return
	}

	e.onComplete(spanCtx, task, result, span)
}

// invoke runs entry.Handler with a panic guard; cooperative cancellation
// is via handlerCtx's deadline rather than a polled callback.
func (e *Executor) invoke(ctx context.Context, entry *registry.Entry, task *model.Task, spawn registry.SpawnFunc, timeoutSeconds int64) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handlerCtx := ctx
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	return entry.Handler(handlerCtx, task, spawn)
}

func (e *Executor) onSpawn(ctx context.Context, task *model.Task, spawned *registry.SpawnResult, span trace.Span) {
	span.SetAttributes(attribute.Int("task.children", len(spawned.Children)))

	rootID := task.RootID
	if rootID == nil {
		rootID = &task.ID
	}
	parentID := task.ID

	children := make([]*model.Task, 0, len(spawned.Children))
	for _, c := range spawned.Children {
		priority := task.Priority
		if c.Priority != nil {
			priority = *c.Priority
		}
		maxRetries := task.MaxRetries
		if c.MaxRetries != nil {
			maxRetries = *c.MaxRetries
		}
		retryInterval := task.RetryInterval
		if c.RetryInterval != nil {
			retryInterval = *c.RetryInterval
		}
		timeoutSecs := task.TimeoutSeconds
		if c.TimeoutSecs != nil {
			timeoutSecs = *c.TimeoutSecs
		}

		children = append(children, &model.Task{
			Name:           c.Name,
			Type:           model.TypeAsync,
			Payload:        c.Payload,
			Priority:       priority,
			MaxRetries:     maxRetries,
			RetryInterval:  retryInterval,
			TimeoutSeconds: timeoutSecs,
		})
	}

	_, err := e.store.Insert(ctx, children, model.InsertOptions{
		RootID:   rootID,
		ParentID: &parentID,
		Context:  spawned.Context,
	})
	if err != nil {
		e.log.Error("failed to insert spawned children", "task_id", task.ID, "error", err)
		span.RecordError(err)
	}
}

func (e *Executor) onComplete(ctx context.Context, task *model.Task, result interface{}, span trace.Span) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		e.onError(ctx, task, fmt.Errorf("marshaling handler result: %w", err), span)
		return
	}
	raw := string(resultJSON)

	if task.Type == model.TypeCron {
		next, err := cron.NextAfter(*task.CronExpr, time.Now())
		if err != nil {
			e.log.Error("failed to compute next cron fire time", "task_id", task.ID, "error", err)
			next = time.Now().Add(time.Minute)
		}
		if err := e.store.UpdateStatus(ctx, task.ID, model.StatusPending, model.StatusUpdate{
			Result:      &raw,
			NextRunTime: &next,
		}); err != nil {
			e.log.Error("failed to mark cron task pending", "task_id", task.ID, "error", err)
			span.RecordError(err)
		}
		return
	}

	if err := e.store.UpdateStatus(ctx, task.ID, model.StatusCompleted, model.StatusUpdate{
		Result:   &raw,
		ParentID: task.ParentID,
	}); err != nil {
		e.log.Error("failed to mark task completed", "task_id", task.ID, "error", err)
		span.RecordError(err)
	}
}

func (e *Executor) onError(ctx context.Context, task *model.Task, handlerErr error, span trace.Span) {
	span.RecordError(handlerErr)

	status := model.StatusFailed
	if strings.Contains(strings.ToLower(handlerErr.Error()), "timeout") {
		status = model.StatusTimeout
	}

	errStr := handlerErr.Error()
	if err := e.store.UpdateStatus(ctx, task.ID, status, model.StatusUpdate{
		Error: &errStr,
	}); err != nil {
		e.log.Error("failed to mark task errored", "task_id", task.ID, "target_status", status, "error", err)
	}
}

func strPtr(s string) *string { return &s }
