package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"amount": {"type": "number"}
	},
	"required": ["amount"]
}`

func TestValidatorNoSchemaAlwaysPasses(t *testing.T) {
	v := New()
	err := v.Validate("unregistered", json.RawMessage(`{"anything":true}`))
	assert.NoError(t, err)
	assert.False(t, v.HasSchema("unregistered"))
}

func TestValidatorRegisterAndValidate(t *testing.T) {
	v := New()
	require.NoError(t, v.Register("charge", json.RawMessage(testSchema)))
	assert.True(t, v.HasSchema("charge"))

	err := v.Validate("charge", json.RawMessage(`{"amount": 10}`))
	assert.NoError(t, err)

	err = v.Validate("charge", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, model.ErrInvalidTaskPayload)
}

func TestValidatorRejectsMalformedSchema(t *testing.T) {
	v := New()
	err := v.Register("bad", json.RawMessage(`{"type": "not-a-real-type"`))
	assert.Error(t, err)
}

func TestValidatorRejectsNonJSONPayload(t *testing.T) {
	v := New()
	require.NoError(t, v.Register("charge", json.RawMessage(testSchema)))

	err := v.Validate("charge", json.RawMessage(`not json`))
	assert.ErrorIs(t, err, model.ErrInvalidTaskPayload)
}

func TestRegisterEmptySchemaIsNoop(t *testing.T) {
	v := New()
	require.NoError(t, v.Register("anything", nil))
	assert.False(t, v.HasSchema("anything"))
}
