package model

import "errors"

// Sentinel errors for the error kinds enumerated by the error-handling
// design: validation errors surface synchronously to the submitter,
// execution-time errors never leave the Executor, and store errors are
// either terminal (NotFound) or transient (StoreUnavailable).
var (
	ErrInvalidTask           = errors.New("taskengine: invalid task")
	ErrInvalidState          = errors.New("taskengine: invalid manager state")
	ErrInvalidTransition     = errors.New("taskengine: invalid status transition")
	ErrInvalidWorkerID       = errors.New("taskengine: invalid worker id")
	ErrInvalidCronExpression = errors.New("taskengine: invalid cron expression")
	ErrInvalidStatus         = errors.New("taskengine: invalid status")
	ErrInvalidTaskPayload    = errors.New("taskengine: invalid task payload")
	ErrParentNotRunning      = errors.New("taskengine: parent task is not running")
	ErrNotFound              = errors.New("taskengine: task not found")
	ErrStoreUnavailable      = errors.New("taskengine: store unavailable")
	ErrCannotRestart         = errors.New("taskengine: manager cannot restart once stopped")
)
