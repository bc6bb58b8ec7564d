package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

func newPendingTask(name string, priority int) *model.Task {
	return &model.Task{
		Name:     name,
		Type:     model.TypeAsync,
		Priority: priority,
	}
}

func TestInsertAssignsIDsAndDefaults(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	task, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, model.DefaultTimeoutSeconds, task.TimeoutSeconds)
	assert.Equal(t, model.DefaultMaxRetries, task.MaxRetries)
	assert.NotNil(t, task.RootID)
	assert.Equal(t, task.ID, *task.RootID)
}

func TestInsertRejectsEmptyName(t *testing.T) {
	s := New()
	_, err := s.Insert(context.Background(), []*model.Task{{Type: model.TypeAsync}}, model.InsertOptions{})
	assert.ErrorIs(t, err, model.ErrInvalidTask)
}

func TestClaimOrdersByPriorityThenTimeThenID(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{
		newPendingTask("job", 1),
		newPendingTask("job", 5),
		newPendingTask("job", 5),
	}, model.InsertOptions{})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	claimed, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, ids[1], claimed.ID, "highest priority, earliest id wins tie-break")
	assert.Equal(t, model.StatusRunning, claimed.Status)
	assert.NotNil(t, claimed.WorkerID)
	assert.Equal(t, "worker-1", *claimed.WorkerID)
}

func TestClaimReturnsNilWhenNoneEligible(t *testing.T) {
	s := New()
	claimed, err := s.Claim(context.Background(), []string{"nothing"}, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimRejectsEmptyWorkerID(t *testing.T) {
	s := New()
	_, err := s.Insert(context.Background(), []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)

	_, err = s.Claim(context.Background(), []string{"job"}, "")
	assert.ErrorIs(t, err, model.ErrInvalidWorkerID)
}

func TestClaimSkipsFutureNextRunTime(t *testing.T) {
	s := New()
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	task := newPendingTask("job", 0)
	task.NextRunTime = &future
	_, err := s.Insert(ctx, []*model.Task{task}, model.InsertOptions{})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestParentSuspendsOnChildInsertAndWakesOnCompletion(t *testing.T) {
	s := New()
	ctx := context.Background()

	parentIDs, err := s.Insert(ctx, []*model.Task{newPendingTask("parent", 0)}, model.InsertOptions{})
	require.NoError(t, err)
	parentID := parentIDs[0]

	_, err = s.Claim(ctx, []string{"parent"}, "worker-1")
	require.NoError(t, err)

	childIDs, err := s.Insert(ctx, []*model.Task{
		newPendingTask("child", 0),
		newPendingTask("child", 0),
	}, model.InsertOptions{ParentID: &parentID})
	require.NoError(t, err)
	require.Len(t, childIDs, 2)

	parent, err := s.Get(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, parent.Status)
	assert.Equal(t, 2, parent.TotalChildren)

	for _, child := range childIDs {
		claimed, err := s.Claim(ctx, []string{"child"}, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		result := "1"
		err = s.UpdateStatus(ctx, claimed.ID, model.StatusCompleted, model.StatusUpdate{
			Result:   &result,
			ParentID: &parentID,
		})
		require.NoError(t, err)
	}

	parent, err = s.Get(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, parent.Status, "parent should wake once all children complete")
	assert.Equal(t, uint32(1), parent.Stage)
	assert.Equal(t, 2, parent.CompletedChildren)

	require.NotNil(t, parent.Result)
	outcomes, err := model.DecodeResultLog(*parent.Result)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
}

func TestInsertRejectsChildOfNonRunningParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	parentIDs, err := s.Insert(ctx, []*model.Task{newPendingTask("parent", 0)}, model.InsertOptions{})
	require.NoError(t, err)
	parentID := parentIDs[0]

	_, err = s.Insert(ctx, []*model.Task{newPendingTask("child", 0)}, model.InsertOptions{ParentID: &parentID})
	assert.ErrorIs(t, err, model.ErrParentNotRunning)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, ids[0], model.StatusCompleted, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := New()
	err := s.UpdateStatus(context.Background(), 999, model.StatusRunning, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHandleTimeoutsTotalTimeout(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)

	// force the task to look long-running and past its timeout
	s.mu.Lock()
	stored := s.tasks[claimed.ID]
	past := time.Now().Add(-time.Hour)
	stored.StartTime = &past
	stored.LastActiveTime = &past
	stored.TimeoutSeconds = 1
	s.mu.Unlock()

	result, err := s.HandleTimeouts(ctx, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTimeouts)

	task, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimeout, task.Status)
}

func TestHandleTimeoutsRetryThenExhaustion(t *testing.T) {
	s := New()
	ctx := context.Background()

	task := newPendingTask("job", 0)
	task.MaxRetries = 1
	ids, err := s.Insert(ctx, []*model.Task{task}, model.InsertOptions{})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)

	s.mu.Lock()
	stored := s.tasks[claimed.ID]
	past := time.Now().Add(-time.Hour)
	stored.StartTime = &past
	stored.LastActiveTime = &past
	stored.TimeoutSeconds = 1
	s.mu.Unlock()

	result, err := s.HandleTimeouts(ctx, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTimeouts)

	// The timeout step stamps last_active_time with the sweep's own now, so
	// the retry is not due until a later sweep.
	s.mu.Lock()
	s.tasks[claimed.ID].LastActiveTime = &past
	s.mu.Unlock()

	result, err = s.HandleTimeouts(ctx, 1000, nil)
	require.NoError(t, err)

	// MaxRetries is 1, so retry_count(0) < MaxRetries(1): one retry is scheduled
	// before the task is allowed to exhaust.
	task2, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, task2.Status)
	assert.Equal(t, 1, task2.RetryCount)
	assert.Equal(t, 1, result.RetriesScheduled)

	claimed2, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed2)

	s.mu.Lock()
	stored2 := s.tasks[claimed2.ID]
	stored2.StartTime = &past
	stored2.LastActiveTime = &past
	stored2.TimeoutSeconds = 1
	s.mu.Unlock()

	result2, err := s.HandleTimeouts(ctx, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result2.TotalTimeouts)

	// retry_count(1) is no longer < MaxRetries(1): this timeout exhausts it.
	task3, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPermanentlyFailed, task3.Status)
	assert.Equal(t, 1, result2.RetriesExhausted)
}

func TestHandleTimeoutsCascadesPermanentFailureToParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	parentIDs, err := s.Insert(ctx, []*model.Task{newPendingTask("parent", 0)}, model.InsertOptions{})
	require.NoError(t, err)
	parentID := parentIDs[0]

	_, err = s.Claim(ctx, []string{"parent"}, "worker-1")
	require.NoError(t, err)

	child := newPendingTask("child", 0)
	childIDs, err := s.Insert(ctx, []*model.Task{child}, model.InsertOptions{ParentID: &parentID})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, []string{"child"}, "worker-1")
	require.NoError(t, err)

	s.mu.Lock()
	stored := s.tasks[claimed.ID]
	past := time.Now().Add(-time.Hour)
	stored.StartTime = &past
	stored.LastActiveTime = &past
	stored.TimeoutSeconds = 1
	// Insert() normalizes a zero MaxRetries up to the default, so force it
	// back down here to exhaust on the first sweep instead of retrying.
	stored.MaxRetries = 0
	s.mu.Unlock()

	result, err := s.HandleTimeouts(ctx, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ParentsCascaded)

	parent, err := s.Get(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, parent.Status)
	assert.Equal(t, 1, parent.CompletedChildren)

	childTask, err := s.Get(ctx, childIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPermanentlyFailed, childTask.Status)
}

func TestHandleTimeoutsExpiryGC(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)

	result := "1"
	err = s.UpdateStatus(ctx, claimed.ID, model.StatusCompleted, model.StatusUpdate{Result: &result})
	require.NoError(t, err)

	s.mu.Lock()
	stored := s.tasks[claimed.ID]
	past := time.Now().Add(-time.Hour)
	stored.LastActiveTime = &past
	s.mu.Unlock()

	expireSeconds := int64(1)
	sweep, err := s.HandleTimeouts(ctx, 1000, &expireSeconds)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.GCed)

	_, err = s.Get(ctx, ids[0])
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateActiveTimeOnlyTouchesRunning(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.Insert(ctx, []*model.Task{newPendingTask("job", 0)}, model.InsertOptions{})
	require.NoError(t, err)

	err = s.UpdateActiveTime(ctx, ids)
	require.NoError(t, err)

	task, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, task.LastActiveTime, "pending task heartbeat should not be touched")
}

func TestGetByTagAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	tag := "batch-1"
	task := newPendingTask("job", 0)
	task.Tag = &tag
	_, err := s.Insert(ctx, []*model.Task{task}, model.InsertOptions{})
	require.NoError(t, err)

	tagged, err := s.GetByTag(ctx, tag)
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	count, err := s.Delete(ctx, model.Filters{Tag: &tag})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	tagged, err = s.GetByTag(ctx, tag)
	require.NoError(t, err)
	assert.Empty(t, tagged)
}

func TestGetStatsByTag(t *testing.T) {
	s := New()
	ctx := context.Background()

	tag := "batch"
	t1 := newPendingTask("job", 0)
	t1.Tag = &tag
	t2 := newPendingTask("job", 0)
	t2.Tag = &tag

	_, err := s.Insert(ctx, []*model.Task{t1, t2}, model.InsertOptions{})
	require.NoError(t, err)

	rows, err := s.GetStatsByTag(ctx, &tag, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, model.StatusPending, rows[0].Status)
}
