package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecValidate(t *testing.T) {
	cronExpr := "* * * * *"

	cases := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"missing name", Spec{Type: TypeAsync}, true},
		{"invalid type", Spec{Name: "x", Type: "bogus"}, true},
		{"cron without expr", Spec{Name: "x", Type: TypeCron}, true},
		{"async with cron expr", Spec{Name: "x", Type: TypeAsync, CronExpr: &cronExpr}, true},
		{"valid async", Spec{Name: "x", Type: TypeAsync}, false},
		{"valid cron", Spec{Name: "x", Type: TypeCron, CronExpr: &cronExpr}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.spec.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSpecApplyDefaults(t *testing.T) {
	priority := 5
	s := Spec{Name: "x", Type: TypeAsync, Priority: &priority}

	gotPriority, gotRetries, gotInterval, gotTimeout := s.ApplyDefaults(0, DefaultMaxRetries, DefaultRetryIntervalSecond, DefaultTimeoutSeconds)
	assert.Equal(t, 5, gotPriority)
	assert.Equal(t, DefaultMaxRetries, gotRetries)
	assert.Equal(t, DefaultRetryIntervalSecond, gotInterval)
	assert.Equal(t, DefaultTimeoutSeconds, gotTimeout)
}

func TestDecodeResultCompleted(t *testing.T) {
	raw := `{"value":1}`
	task := &Task{Status: StatusCompleted, Result: &raw}

	decoded, log, err := task.DecodeResult()
	require.NoError(t, err)
	assert.Nil(t, log)
	assert.JSONEq(t, raw, string(decoded))
}

func TestDecodeResultChildLog(t *testing.T) {
	log := AppendSuccess("", 1, `1`)
	task := &Task{Status: StatusSuspended, Stage: 1, Result: &log}

	decoded, outcomes, err := task.DecodeResult()
	require.NoError(t, err)
	assert.Nil(t, decoded)
	require.Len(t, outcomes, 1)
	assert.Equal(t, int64(1), outcomes[0].ChildID)
}

func TestDecodeResultNil(t *testing.T) {
	task := &Task{Status: StatusPending}
	decoded, log, err := task.DecodeResult()
	require.NoError(t, err)
	assert.Nil(t, decoded)
	assert.Nil(t, log)
}

func TestIsChildOf(t *testing.T) {
	var parentID int64 = 7
	task := &Task{ParentID: &parentID}
	assert.True(t, task.IsChildOf(7))
	assert.False(t, task.IsChildOf(8))

	orphan := &Task{}
	assert.False(t, orphan.IsChildOf(7))
}

func TestTaskPayloadRoundtrip(t *testing.T) {
	payload := json.RawMessage(`{"a":1}`)
	task := &Task{Payload: payload}
	assert.JSONEq(t, `{"a":1}`, string(task.Payload))
}
