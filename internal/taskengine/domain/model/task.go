package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default registry-level values applied when a submission omits them.
const (
	DefaultTimeoutSeconds      int64 = 60
	DefaultMaxRetries          int   = 3
	DefaultRetryIntervalSecond int64 = 0
)

// Task is a row in the task store. Fields mirror the storage schema
// directly; the Store is the sole authority for the invariants that bind
// them (claim protocol, child accounting, transition matrix) — Task itself
// is a data carrier, not a state machine.
type Task struct {
	ID   int64
	Name string
	Type Type

	Status   Status
	Priority int

	Payload json.RawMessage
	Tag     *string

	CreatedAt      time.Time
	NextRunTime    *time.Time
	LastActiveTime *time.Time
	StartTime      *time.Time

	TimeoutSeconds int64
	RetryCount     int
	MaxRetries     int
	RetryInterval  int64 // seconds

	CronExpr *string

	RootID   *int64
	ParentID *int64

	TotalChildren     int
	CompletedChildren int
	Stage             uint32

	WorkerID *string

	// Result holds either the handler's raw JSON return value (leaf/root
	// tasks, or stage==0) or the raw newline-delimited child outcome log
	// (§3.3) — callers decode it with DecodeResult.
	Result *string
	Error  *string
	// Context is an opaque blob the handler stashes across workflow stages.
	Context []byte
}

// DecodeResult interprets Result according to §4.A's read-side rule: JSON
// when the task is completed or has never been re-entered (stage == 0),
// otherwise the newline child-outcome log.
func (t *Task) DecodeResult() (raw json.RawMessage, log []ChildOutcome, err error) {
	if t.Result == nil {
		return nil, nil, nil
	}

	if t.Status == StatusCompleted || t.Stage == 0 {
		return json.RawMessage(*t.Result), nil, nil
	}

	log, err = DecodeResultLog(*t.Result)
	return nil, log, err
}

// IsChildOf reports whether t is a direct child of parentID.
func (t *Task) IsChildOf(parentID int64) bool {
	return t.ParentID != nil && *t.ParentID == parentID
}

// Spec is the submission-time shape of a task: what a producer or a
// handler's spawn() call supplies. The Store and Executor fill in
// registry/parent-inherited defaults for anything left zero.
type Spec struct {
	Name     string
	Type     Type
	Payload  json.RawMessage
	Tag      *string
	Priority *int

	MaxRetries    *int
	RetryInterval *int64
	TimeoutSecs   *int64

	CronExpr *string

	// NextRunTime, when nil, is computed by the caller (submitAsync adds
	// Delay to now; submitCron asks the cron evaluator).
	NextRunTime *time.Time
}

// Validate checks the fields required at submission time, independent of
// registry lookups (name-exists is checked by the registry, not here).
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidTask, s.Type)
	}
	if s.Type == TypeCron && (s.CronExpr == nil || *s.CronExpr == "") {
		return fmt.Errorf("%w: cron task requires cron_expr", ErrInvalidTask)
	}
	if s.Type == TypeAsync && s.CronExpr != nil {
		return fmt.Errorf("%w: async task must not carry cron_expr", ErrInvalidTask)
	}
	return nil
}

// ApplyDefaults fills unset optional fields from registry-provided
// defaults. Used for top-level submissions; spawned children take their
// unset fields from the parent task in the Executor instead.
func (s *Spec) ApplyDefaults(defaultPriority int, defaultMaxRetries int, defaultRetryInterval, defaultTimeout int64) (priority int, maxRetries int, retryInterval, timeoutSecs int64) {
	priority = defaultPriority
	if s.Priority != nil {
		priority = *s.Priority
	}
	maxRetries = defaultMaxRetries
	if s.MaxRetries != nil {
		maxRetries = *s.MaxRetries
	}
	retryInterval = defaultRetryInterval
	if s.RetryInterval != nil {
		retryInterval = *s.RetryInterval
	}
	timeoutSecs = defaultTimeout
	if s.TimeoutSecs != nil {
		timeoutSecs = *s.TimeoutSecs
	}
	return
}

// InsertOptions carries the parent-linkage arguments to Store.Insert.
type InsertOptions struct {
	RootID   *int64
	ParentID *int64
	Context  []byte
}

// StatusUpdate carries the optional fields accepted by Store.UpdateStatus.
type StatusUpdate struct {
	Result      *string
	Error       *string
	NextRunTime *time.Time
	RetryCount  *int
	ParentID    *int64
}

// StatsRow is one row of Store.GetStatsByTag's aggregated output.
type StatsRow struct {
	Tag    string
	Name   string
	Status Status
	Count  int64
}

// Filters narrows GetTasks/Delete to a subset of the store.
type Filters struct {
	Tag    *string
	Name   *string
	Status *Status
}
