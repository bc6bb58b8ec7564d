// Package resilient wraps a Store with circuit-breaker protection on the
// composite calls most exposed to a struggling database connection pool
// (claim, insert, status update, the maintenance sweep), translating an
// open-circuit rejection into model.ErrStoreUnavailable — the transient
// error kind §7 says callers may retry.
package resilient

import (
	"context"
	"errors"

	"github.com/taskflow-engine/taskflow/internal/platform/resilience"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
)

// Store decorates a repository.Store with a circuit breaker.
type Store struct {
	inner repository.Store
	cb    *resilience.CircuitBreaker
}

// New wraps inner with a circuit breaker using cfg, defaulting to
// resilience.DefaultCircuitBreakerConfig("taskstore") when cfg is nil.
func New(inner repository.Store, cfg *resilience.CircuitBreakerConfig) *Store {
	c := resilience.DefaultCircuitBreakerConfig("taskstore")
	if cfg != nil {
		c = *cfg
	}
	return &Store{inner: inner, cb: resilience.NewCircuitBreaker(c)}
}

func (s *Store) guard(fn func() error) error {
	err := s.cb.Execute(context.Background(), fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return model.ErrStoreUnavailable
	}
	return err
}

// Insert implements repository.Store.
func (s *Store) Insert(ctx context.Context, tasks []*model.Task, opts model.InsertOptions) ([]int64, error) {
	var ids []int64
	err := s.guard(func() error {
		var err error
		ids, err = s.inner.Insert(ctx, tasks, opts)
		return err
	})
	return ids, err
}

// Claim implements repository.Store.
func (s *Store) Claim(ctx context.Context, names []string, workerID string) (*model.Task, error) {
	var task *model.Task
	err := s.guard(func() error {
		var err error
		task, err = s.inner.Claim(ctx, names, workerID)
		return err
	})
	return task, err
}

// UpdateStatus implements repository.Store.
func (s *Store) UpdateStatus(ctx context.Context, id int64, newStatus model.Status, opts model.StatusUpdate) error {
	return s.guard(func() error {
		return s.inner.UpdateStatus(ctx, id, newStatus, opts)
	})
}

// UpdateActiveTime implements repository.Store.
func (s *Store) UpdateActiveTime(ctx context.Context, ids []int64) error {
	return s.guard(func() error {
		return s.inner.UpdateActiveTime(ctx, ids)
	})
}

// HandleTimeouts implements repository.Store.
func (s *Store) HandleTimeouts(ctx context.Context, activeIntervalMS int64, expireSeconds *int64) (repository.SweepResult, error) {
	var result repository.SweepResult
	err := s.guard(func() error {
		var err error
		result, err = s.inner.HandleTimeouts(ctx, activeIntervalMS, expireSeconds)
		return err
	})
	return result, err
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id int64) (*model.Task, error) { return s.inner.Get(ctx, id) }

// GetByName implements repository.Store.
func (s *Store) GetByName(ctx context.Context, name string) ([]*model.Task, error) {
	return s.inner.GetByName(ctx, name)
}

// GetByStatus implements repository.Store.
func (s *Store) GetByStatus(ctx context.Context, status model.Status) ([]*model.Task, error) {
	return s.inner.GetByStatus(ctx, status)
}

// GetByTag implements repository.Store.
func (s *Store) GetByTag(ctx context.Context, tag string) ([]*model.Task, error) {
	return s.inner.GetByTag(ctx, tag)
}

// GetChildren implements repository.Store.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]*model.Task, error) {
	return s.inner.GetChildren(ctx, parentID)
}

// GetRunning implements repository.Store.
func (s *Store) GetRunning(ctx context.Context) ([]*model.Task, error) { return s.inner.GetRunning(ctx) }

// GetStatsByTag implements repository.Store.
func (s *Store) GetStatsByTag(ctx context.Context, tag *string, status *model.Status) ([]model.StatsRow, error) {
	return s.inner.GetStatsByTag(ctx, tag, status)
}

// GetTasks implements repository.Store.
func (s *Store) GetTasks(ctx context.Context, filters model.Filters) ([]*model.Task, error) {
	return s.inner.GetTasks(ctx, filters)
}

// Delete implements repository.Store.
func (s *Store) Delete(ctx context.Context, filters model.Filters) (int64, error) {
	return s.inner.Delete(ctx, filters)
}

// Close implements repository.Store.
func (s *Store) Close() error { return s.inner.Close() }
