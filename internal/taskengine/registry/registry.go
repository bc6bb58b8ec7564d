// Package registry is the in-memory handler map described in §4.D: it may
// only be mutated while the owning manager is in its init state, and it
// tracks the live running_count the Dispatcher uses to enforce per-type
// concurrency caps.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

// ChildSpec is what a handler's spawn() call accepts per child: a name and
// payload plus the same submission options §6 exposes to top-level
// producers.
type ChildSpec struct {
	Name          string
	Payload       json.RawMessage
	Priority      *int
	MaxRetries    *int
	RetryInterval *int64
	TimeoutSecs   *int64
}

// SpawnResult is the sentinel value a spawn() call returns; the Executor
// inspects the handler's return value for this concrete type to decide
// between fan-out and plain completion (§4.E, §9 "handler sentinel").
type SpawnResult struct {
	Children []ChildSpec
	Context  []byte
}

// SpawnFunc is supplied to every handler invocation.
type SpawnFunc func(children []ChildSpec, context ...[]byte) *SpawnResult

// Spawn builds a SpawnResult; it's the only way handlers fan out.
func Spawn(children []ChildSpec, context ...[]byte) *SpawnResult {
	result := &SpawnResult{Children: children}
	if len(context) > 0 {
		result.Context = context[0]
	}
	return result
}

// Handler is a task handler function: given the claimed task and a spawn
// callback, it returns either a JSON-serializable leaf result or the
// sentinel from calling spawn.
type Handler func(ctx context.Context, task *model.Task, spawn SpawnFunc) (interface{}, error)

// Metadata is optional documentation and schema information for a
// registered handler.
type Metadata struct {
	Description  string
	ParamSchema  json.RawMessage
	OutputSchema json.RawMessage
}

// Defaults are the per-type submission defaults a registration may
// override; unset fields fall back to the package-wide default constants.
type Defaults struct {
	Priority      int
	MaxRetries    int
	RetryInterval int64
	TimeoutSecs   int64
}

// Entry is one registered handler and its associated bookkeeping.
type Entry struct {
	Handler         Handler
	Metadata        Metadata
	Defaults        Defaults
	MaxConcurrent   *int // nil means uncapped
	runningCount    int32
}

// RunningCount returns the live count of in-flight invocations for this
// entry, read by the Dispatcher to decide eligibility.
func (e *Entry) RunningCount() int {
	return int(atomic.LoadInt32(&e.runningCount))
}

func (e *Entry) incr() { atomic.AddInt32(&e.runningCount, 1) }
func (e *Entry) decr() { atomic.AddInt32(&e.runningCount, -1) }

// Registry is the in-memory name -> Entry map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	locked  bool
}

// New creates an empty, unlocked registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Use registers a handler under name. Returns ErrInvalidState if the
// registry has already been locked by Lock().
func (r *Registry) Use(name string, handler Handler, defaults Defaults, meta Metadata, maxConcurrent *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return fmt.Errorf("%w: cannot register handler %q after start", model.ErrInvalidState, name)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler for %q is nil", model.ErrInvalidTask, name)
	}

	if defaults.TimeoutSecs == 0 {
		defaults.TimeoutSecs = model.DefaultTimeoutSeconds
	}
	if defaults.MaxRetries == 0 {
		defaults.MaxRetries = model.DefaultMaxRetries
	}

	r.entries[name] = &Entry{
		Handler:       handler,
		Metadata:      meta,
		Defaults:      defaults,
		MaxConcurrent: maxConcurrent,
	}
	return nil
}

// Lock freezes the registry against further mutation. Called once by the
// manager's start().
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

// Get returns the entry for name, if registered.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns every registered task name, used by the Dispatcher to
// build its claim candidate set.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// EligibleNames returns the subset of registered names whose running_count
// is below their max_concurrent_tasks cap (or all names, for uncapped
// entries) — exactly the set the Dispatcher loop passes to Store.Claim.
func (r *Registry) EligibleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.MaxConcurrent == nil || e.RunningCount() < *e.MaxConcurrent {
			names = append(names, name)
		}
	}
	return names
}

// Begin increments the running count for name; call before dispatching a
// handler invocation.
func (r *Registry) Begin(name string) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		e.incr()
	}
}

// End decrements the running count for name; always deferred by the
// Executor regardless of outcome (§4.E step 6).
func (r *Registry) End(name string) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		e.decr()
	}
}
