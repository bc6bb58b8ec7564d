package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/memory"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/registry"
)

type testLogger struct{}

func (testLogger) Debug(msg string, fields ...interface{}) {}
func (testLogger) Info(msg string, fields ...interface{})  {}
func (testLogger) Warn(msg string, fields ...interface{})  {}
func (testLogger) Error(msg string, fields ...interface{}) {}
func (testLogger) Fatal(msg string, fields ...interface{}) {}
func (l testLogger) WithFields(fields map[string]interface{}) logger.Logger { return l }
func (l testLogger) WithContext(ctx context.Context) logger.Logger          { return l }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := memory.New()
	return New(store, testLogger{}, nil, Config{
		WorkerID:             "worker-1",
		MaxConcurrentTasks:   4,
		PollInterval:         10 * time.Millisecond,
		ActiveUpdateInterval: time.Minute,
	})
}

func TestManagerStartsInInitState(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, StateInit, m.State())
}

func TestUseRejectedAfterStart(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	err := m.Use("late", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{})
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestStartThenStopThenStartFails(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.State())

	err := m.Start(ctx)
	assert.ErrorIs(t, err, model.ErrCannotRestart)
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, StateRunning, m.State())
}

func TestSubmitAsyncValidatesPayload(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("charge", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{
		ParamSchema: []byte(`{"type":"object","required":["amount"],"properties":{"amount":{"type":"number"}}}`),
	}))

	_, err := m.SubmitAsync(context.Background(), "charge", map[string]string{"nope": "x"}, SubmitOptions{})
	assert.Error(t, err)

	id, err := m.SubmitAsync(context.Background(), "charge", map[string]int{"amount": 5}, SubmitOptions{})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestSubmitAsyncAppliesHandlerDefaults(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{Priority: 7, MaxRetries: 2, RetryInterval: 30, TimeoutSecs: 60}))

	id, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)

	task, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, task.Priority)
	assert.Equal(t, 2, task.MaxRetries)
	assert.Equal(t, int64(30), task.RetryInterval)
	assert.Equal(t, int64(60), task.TimeoutSeconds)
}

func TestSubmitAsyncOptionsOverrideHandlerDefaults(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{Priority: 1}))

	priority := 9
	id, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{Priority: &priority})
	require.NoError(t, err)

	task, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 9, task.Priority)
}

func TestSubmitCronRejectsInvalidExpr(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	_, err := m.SubmitCron(context.Background(), "job", "not a cron expr", nil, SubmitOptions{})
	assert.Error(t, err)
}

func TestSubmitCronSchedulesNextRun(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	id, err := m.SubmitCron(context.Background(), "job", "0 0 * * *", nil, SubmitOptions{})
	require.NoError(t, err)

	task, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TypeCron, task.Type)
	require.NotNil(t, task.CronExpr)
	assert.Equal(t, "0 0 * * *", *task.CronExpr)
	require.NotNil(t, task.NextRunTime)
	assert.True(t, task.NextRunTime.After(time.Now()))
}

func TestPauseAndResume(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	id, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Pause(context.Background(), id))
	task, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, task.Status)

	require.NoError(t, m.Resume(context.Background(), id))
	task, err = m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, 0, task.RetryCount)
}

func TestPauseAllAndResumeAll(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	id1, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)
	id2, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, m.PauseAll(context.Background()))
	paused, err := m.GetByStatus(context.Background(), model.StatusPaused)
	require.NoError(t, err)
	assert.Len(t, paused, 2)

	require.NoError(t, m.ResumeAll(context.Background()))
	for _, id := range []int64{id1, id2} {
		task, err := m.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, task.Status)
	}
}

func TestGetByNameAndByTagAndGetTasks(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	tag := "batch-1"
	_, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{Tag: &tag})
	require.NoError(t, err)

	byName, err := m.GetByName(context.Background(), "job")
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	byTag, err := m.GetByTag(context.Background(), tag)
	require.NoError(t, err)
	assert.Len(t, byTag, 1)

	filtered, err := m.GetTasks(context.Background(), model.Filters{Name: stringPtr("job")})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestGetTaskInfoAliasesGet(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	id, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)

	a, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	b, err := m.GetTaskInfo(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestDeleteTasks(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, HandlerOptions{}))

	_, err := m.SubmitAsync(context.Background(), "job", nil, SubmitOptions{})
	require.NoError(t, err)

	n, err := m.DeleteTasks(context.Background(), model.Filters{Name: stringPtr("job")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tasks, err := m.GetByName(context.Background(), "job")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRequireStateWrapsErrInvalidState(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	err := m.requireState(StateInit)
	assert.True(t, errors.Is(err, model.ErrInvalidState))
}

func stringPtr(s string) *string { return &s }
