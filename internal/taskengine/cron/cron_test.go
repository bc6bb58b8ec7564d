package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

func TestParseStandardFiveField(t *testing.T) {
	sched, err := Parse("0 0 * * *")
	require.NoError(t, err)
	assert.NotNil(t, sched)
}

func TestParseSecondsSixField(t *testing.T) {
	sched, err := Parse("*/5 * * * * *")
	require.NoError(t, err)
	assert.NotNil(t, sched)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not a cron expression")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidCronExpression)
}

func TestNextAfterDaily(t *testing.T) {
	from := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 0 * * *", from)
	require.NoError(t, err)

	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, next)
}

func TestNextAfterIsStrictlyAfter(t *testing.T) {
	from := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 0 * * *", from)
	require.NoError(t, err)
	assert.True(t, next.After(from))
}
