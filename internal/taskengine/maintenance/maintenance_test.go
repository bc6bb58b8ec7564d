package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/memory"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

type testLogger struct{}

func (testLogger) Debug(msg string, fields ...interface{}) {}
func (testLogger) Info(msg string, fields ...interface{})  {}
func (testLogger) Warn(msg string, fields ...interface{})  {}
func (testLogger) Error(msg string, fields ...interface{}) {}
func (testLogger) Fatal(msg string, fields ...interface{}) {}
func (l testLogger) WithFields(fields map[string]interface{}) logger.Logger { return l }
func (l testLogger) WithContext(ctx context.Context) logger.Logger          { return l }

func TestTickHeartbeatsRunningTasks(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.Insert(ctx, []*model.Task{{Name: "job", Type: model.TypeAsync}}, model.InsertOptions{})
	require.NoError(t, err)
	claimed, err := store.Claim(ctx, []string{"job"}, "worker-1")
	require.NoError(t, err)

	runner := New(store, testLogger{}, nil, Config{
		ActiveUpdateInterval: time.Minute,
		RunningIDs:           func() []int64 { return []int64{claimed.ID} },
	})

	runner.tick(ctx)

	updated, err := store.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastActiveTime)
}

func TestStartStopDrains(t *testing.T) {
	store := memory.New()
	runner := New(store, testLogger{}, nil, Config{ActiveUpdateInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	runner.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestDefaultsAppliedWhenUnset(t *testing.T) {
	store := memory.New()
	runner := New(store, testLogger{}, nil, Config{})
	assert.Equal(t, 5*time.Second, runner.activeUpdateInterval)
	assert.NotNil(t, runner.runningIDs)
	assert.Empty(t, runner.runningIDs())
}
