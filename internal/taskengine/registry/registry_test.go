package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

func noopHandler(ctx context.Context, task *model.Task, spawn SpawnFunc) (interface{}, error) {
	return nil, nil
}

func TestRegistryUseAndGet(t *testing.T) {
	r := New()
	err := r.Use("job", noopHandler, Defaults{}, Metadata{Description: "a job"}, nil)
	require.NoError(t, err)

	entry, ok := r.Get("job")
	require.True(t, ok)
	assert.Equal(t, "a job", entry.Metadata.Description)
	assert.Equal(t, model.DefaultTimeoutSeconds, entry.Defaults.TimeoutSecs)
	assert.Equal(t, model.DefaultMaxRetries, entry.Defaults.MaxRetries)
}

func TestRegistryUseNilHandler(t *testing.T) {
	r := New()
	err := r.Use("job", nil, Defaults{}, Metadata{}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTask)
}

func TestRegistryLockedRejectsUse(t *testing.T) {
	r := New()
	r.Lock()
	err := r.Use("job", noopHandler, Defaults{}, Metadata{}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestRegistryEligibleNamesRespectsCap(t *testing.T) {
	r := New()
	cap1 := 1
	require.NoError(t, r.Use("capped", noopHandler, Defaults{}, Metadata{}, &cap1))
	require.NoError(t, r.Use("uncapped", noopHandler, Defaults{}, Metadata{}, nil))

	names := r.EligibleNames()
	assert.ElementsMatch(t, []string{"capped", "uncapped"}, names)

	r.Begin("capped")
	names = r.EligibleNames()
	assert.ElementsMatch(t, []string{"uncapped"}, names)

	r.End("capped")
	names = r.EligibleNames()
	assert.ElementsMatch(t, []string{"capped", "uncapped"}, names)
}

func TestRegistryNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Use("a", noopHandler, Defaults{}, Metadata{}, nil))
	require.NoError(t, r.Use("b", noopHandler, Defaults{}, Metadata{}, nil))
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestSpawnBuildsSentinel(t *testing.T) {
	children := []ChildSpec{{Name: "child"}}
	result := Spawn(children, []byte("ctx"))
	assert.Equal(t, children, result.Children)
	assert.Equal(t, []byte("ctx"), result.Context)
}
