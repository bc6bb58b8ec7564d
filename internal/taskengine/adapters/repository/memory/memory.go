// Package memory implements the Store interface over a single in-process
// map keyed by id and guarded by one exclusive lock per composite call. It
// keeps no secondary indices: every lookup by status, name, tag, parent_id,
// next_run_time or worker_id, every claim and every sweep scans the whole map.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
)

// Store is an in-memory, single-process implementation of repository.Store.
// All composite operations hold mu for their entire duration; there is no
// finer-grained locking because the invariants in §3.2 span multiple rows
// (parent/child accounting) and a single mutex is simplest to reason about
// at this data volume.
type Store struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*model.Task
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{tasks: make(map[int64]*model.Task)}
}

func cloneTask(t *model.Task) *model.Task {
	c := *t
	return &c
}

// Insert implements repository.Store.
func (s *Store) Insert(ctx context.Context, tasks []*model.Task, opts model.InsertOptions) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tasks) == 0 {
		return nil, nil
	}

	var parent *model.Task
	if opts.ParentID != nil {
		p, ok := s.tasks[*opts.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %d", model.ErrNotFound, *opts.ParentID)
		}
		if p.Status != model.StatusRunning {
			return nil, fmt.Errorf("%w: parent %d is %s", model.ErrParentNotRunning, p.ID, p.Status)
		}
		parent = p
	}

	now := time.Now()
	ids := make([]int64, 0, len(tasks))

	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: task name is required", model.ErrInvalidTask)
		}
		if parent != nil {
			t.Type = model.TypeAsync
		}
		if !t.Type.Valid() {
			return nil, fmt.Errorf("%w: unsupported type %q", model.ErrInvalidTask, t.Type)
		}

		s.nextID++
		t.ID = s.nextID
		t.CreatedAt = now
		if t.Status == "" {
			t.Status = model.StatusPending
		}
		if t.NextRunTime == nil {
			nrt := now
			t.NextRunTime = &nrt
		}
		if t.TimeoutSeconds == 0 {
			t.TimeoutSeconds = model.DefaultTimeoutSeconds
		}
		if t.MaxRetries == 0 {
			t.MaxRetries = model.DefaultMaxRetries
		}

		if opts.RootID != nil {
			t.RootID = opts.RootID
		} else if t.RootID == nil {
			id := t.ID
			t.RootID = &id
		}
		if opts.ParentID != nil {
			t.ParentID = opts.ParentID
		}

		s.tasks[t.ID] = t
		ids = append(ids, t.ID)
	}

	if parent != nil {
		parent.TotalChildren += len(tasks)
		parent.Status = model.StatusSuspended
		if opts.Context != nil {
			parent.Context = opts.Context
		}
		parent.Result = nil
	}

	return ids, nil
}

// Claim implements repository.Store. It scans all pending, eligible rows
// and picks the best one under the tie-break order; since the whole store
// is held under one exclusive lock for the call, there is no compare-and-set
// race to retry here (unlike a connection-pooled backend).
func (s *Store) Claim(ctx context.Context, names []string, workerID string) (*model.Task, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if workerID == "" {
		return nil, model.ErrInvalidWorkerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}

	now := time.Now()
	var best *model.Task

	for _, t := range s.tasks {
		if t.Status != model.StatusPending {
			continue
		}
		if _, ok := nameSet[t.Name]; !ok {
			continue
		}
		if t.NextRunTime == nil || t.NextRunTime.After(now) {
			continue
		}
		if best == nil || better(t, best) {
			best = t
		}
	}

	if best == nil {
		return nil, nil
	}

	best.Status = model.StatusRunning
	best.LastActiveTime = &now
	best.StartTime = &now
	best.WorkerID = &workerID

	return cloneTask(best), nil
}

// better reports whether a is preferred over b under the claim order:
// priority DESC, next_run_time ASC, id ASC.
func better(a, b *model.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.NextRunTime.Equal(*b.NextRunTime) {
		return a.NextRunTime.Before(*b.NextRunTime)
	}
	return a.ID < b.ID
}

// UpdateStatus implements repository.Store.
func (s *Store) UpdateStatus(ctx context.Context, id int64, newStatus model.Status, opts model.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrNotFound, id)
	}

	if !model.CanTransition(t.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, t.Status, newStatus)
	}

	now := time.Now()
	t.Status = newStatus
	t.LastActiveTime = &now

	if opts.Result != nil {
		t.Result = opts.Result
	}
	if opts.Error != nil {
		t.Error = opts.Error
	}
	if opts.NextRunTime != nil {
		t.NextRunTime = opts.NextRunTime
	}
	if opts.RetryCount != nil {
		t.RetryCount = *opts.RetryCount
	}

	parentID := opts.ParentID
	if parentID == nil {
		parentID = t.ParentID
	}

	if newStatus == model.StatusCompleted && parentID != nil {
		if err := s.completeChild(*parentID, id, t.Result, now); err != nil {
			return err
		}
	}

	return nil
}

// completeChild appends the child's success line to the parent's result
// log, increments completed_children, and wakes the parent if that reaches
// total_children (§4.A updateStatus / §3.2 invariant 4).
func (s *Store) completeChild(parentID, childID int64, childResult *string, now time.Time) error {
	parent, ok := s.tasks[parentID]
	if !ok {
		return nil // parent already GC'd or never tracked; not fatal for the child update
	}

	resultJSON := "null"
	if childResult != nil {
		resultJSON = *childResult
	}

	existing := ""
	if parent.Result != nil {
		existing = *parent.Result
	}
	updated := model.AppendSuccess(existing, childID, resultJSON)
	parent.Result = &updated
	parent.CompletedChildren++

	if parent.CompletedChildren >= parent.TotalChildren && parent.Status == model.StatusSuspended {
		parent.Status = model.StatusPending
		parent.Stage++
		parent.LastActiveTime = &now
		if parent.NextRunTime == nil || parent.NextRunTime.After(now) {
			nrt := now
			parent.NextRunTime = &nrt
		}
	}

	return nil
}

// UpdateActiveTime implements repository.Store.
func (s *Store) UpdateActiveTime(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok && t.Status == model.StatusRunning {
			t.LastActiveTime = &now
		}
	}
	return nil
}

// HandleTimeouts implements the full maintenance sweep described in §4.G.
// Steps run in the documented order within the single exclusive lock held
// for the whole call, which is this adapter's equivalent of "each in its
// own transaction."
func (s *Store) HandleTimeouts(ctx context.Context, activeIntervalMS int64, expireSeconds *int64) (repository.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result repository.SweepResult
	now := time.Now()
	heartbeatLostThreshold := time.Duration(5*activeIntervalMS) * time.Millisecond

	// Step 2: total-timeout detection.
	for _, t := range s.tasks {
		if t.Status != model.StatusRunning || t.StartTime == nil {
			continue
		}
		if t.StartTime.Add(time.Duration(t.TimeoutSeconds) * time.Second).Before(now) {
			t.Status = model.StatusTimeout
			errMsg := "Task exceeded total timeout limit"
			t.Error = &errMsg
			t.LastActiveTime = &now
			result.TotalTimeouts++
		}
	}

	// Step 3: heartbeat-lost detection, on rows still running after step 2.
	for _, t := range s.tasks {
		if t.Status != model.StatusRunning || t.LastActiveTime == nil {
			continue
		}
		if t.LastActiveTime.Add(heartbeatLostThreshold).Before(now) {
			t.Status = model.StatusTimeout
			errMsg := "Task heartbeat lost — worker may be dead"
			t.Error = &errMsg
			t.LastActiveTime = &now
			result.HeartbeatTimeouts++
		}
	}

	// Step 4: retry scheduling.
	var justPermanentlyFailed []*model.Task
	for _, t := range s.tasks {
		if t.Status != model.StatusTimeout && t.Status != model.StatusFailed {
			continue
		}
		if t.LastActiveTime == nil {
			continue
		}
		retryDue := t.LastActiveTime.Add(time.Duration(t.RetryInterval) * time.Second).Before(now)

		if t.RetryCount < t.MaxRetries {
			if !retryDue {
				continue
			}
			t.Status = model.StatusPending
			t.Stage = 0
			t.Result = nil
			t.Context = nil
			t.RetryCount++
			t.LastActiveTime = &now
			nrt := now.Add(time.Duration(t.RetryInterval) * time.Second)
			t.NextRunTime = &nrt
			result.RetriesScheduled++
			continue
		}

		// Step 5: retry exhaustion.
		if t.Type == model.TypeCron {
			t.Status = model.StatusPaused
		} else {
			t.Status = model.StatusPermanentlyFailed
			justPermanentlyFailed = append(justPermanentlyFailed, t)
		}
		result.RetriesExhausted++
	}

	// Step 6: parent propagation of permanent failure.
	for _, child := range justPermanentlyFailed {
		if child.ParentID == nil {
			continue
		}
		parent, ok := s.tasks[*child.ParentID]
		if !ok || parent.Status != model.StatusSuspended {
			continue
		}

		errJSON := "null"
		if child.Error != nil {
			errJSON = fmt.Sprintf("%q", *child.Error)
		}
		existing := ""
		if parent.Result != nil {
			existing = *parent.Result
		}
		updated := model.AppendFailure(existing, child.ID, errJSON)
		parent.Result = &updated
		parent.CompletedChildren++

		if parent.CompletedChildren >= parent.TotalChildren {
			parent.Status = model.StatusPending
			parent.Stage++
			parent.LastActiveTime = &now
			nrt := now
			parent.NextRunTime = &nrt
		}
		result.ParentsCascaded++
	}

	// Step 7: expiry GC.
	if expireSeconds != nil {
		cutoff := now.Add(-time.Duration(*expireSeconds) * time.Second)
		for id, t := range s.tasks {
			if !t.Status.IsTerminal() {
				continue
			}
			if t.LastActiveTime == nil || t.LastActiveTime.After(cutoff) {
				continue
			}
			delete(s.tasks, id)
			result.GCed++
		}
	}

	return result, nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", model.ErrNotFound, id)
	}
	return cloneTask(t), nil
}

// GetByName implements repository.Store.
func (s *Store) GetByName(ctx context.Context, name string) ([]*model.Task, error) {
	return s.filter(func(t *model.Task) bool { return t.Name == name }), nil
}

// GetByStatus implements repository.Store.
func (s *Store) GetByStatus(ctx context.Context, status model.Status) ([]*model.Task, error) {
	return s.filter(func(t *model.Task) bool { return t.Status == status }), nil
}

// GetByTag implements repository.Store.
func (s *Store) GetByTag(ctx context.Context, tag string) ([]*model.Task, error) {
	return s.filter(func(t *model.Task) bool { return t.Tag != nil && *t.Tag == tag }), nil
}

// GetChildren implements repository.Store.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]*model.Task, error) {
	return s.filter(func(t *model.Task) bool { return t.IsChildOf(parentID) }), nil
}

// GetRunning implements repository.Store.
func (s *Store) GetRunning(ctx context.Context) ([]*model.Task, error) {
	return s.GetByStatus(ctx, model.StatusRunning)
}

func (s *Store) filter(pred func(*model.Task) bool) []*model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*model.Task, 0)
	for _, t := range s.tasks {
		if pred(t) {
			matches = append(matches, cloneTask(t))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches
}

// GetStatsByTag implements repository.Store.
func (s *Store) GetStatsByTag(ctx context.Context, tag *string, status *model.Status) ([]model.StatsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		tag    string
		name   string
		status model.Status
	}
	counts := make(map[key]int64)

	for _, t := range s.tasks {
		if tag != nil && (t.Tag == nil || *t.Tag != *tag) {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		taskTag := ""
		if t.Tag != nil {
			taskTag = *t.Tag
		}
		counts[key{taskTag, t.Name, t.Status}]++
	}

	rows := make([]model.StatsRow, 0, len(counts))
	for k, c := range counts {
		rows = append(rows, model.StatsRow{Tag: k.tag, Name: k.name, Status: k.status, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tag != rows[j].Tag {
			return rows[i].Tag < rows[j].Tag
		}
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Status < rows[j].Status
	})
	return rows, nil
}

// GetTasks implements repository.Store.
func (s *Store) GetTasks(ctx context.Context, filters model.Filters) ([]*model.Task, error) {
	return s.filter(func(t *model.Task) bool {
		if filters.Tag != nil && (t.Tag == nil || *t.Tag != *filters.Tag) {
			return false
		}
		if filters.Name != nil && t.Name != *filters.Name {
			return false
		}
		if filters.Status != nil && t.Status != *filters.Status {
			return false
		}
		return true
	}), nil
}

// Delete implements repository.Store.
func (s *Store) Delete(ctx context.Context, filters model.Filters) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, t := range s.tasks {
		if filters.Tag != nil && (t.Tag == nil || *t.Tag != *filters.Tag) {
			continue
		}
		if filters.Name != nil && t.Name != *filters.Name {
			continue
		}
		if filters.Status != nil && t.Status != *filters.Status {
			continue
		}
		delete(s.tasks, id)
		count++
	}
	return count, nil
}

// Close implements repository.Store. The in-memory store owns no external
// resources.
func (s *Store) Close() error { return nil }
