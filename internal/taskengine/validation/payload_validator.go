// Package validation provides optional JSON-Schema payload validation at
// task submission and registration time, per §4.C.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

// PayloadValidator compiles and caches one JSON-Schema per registered task
// name and validates submitted payloads against it.
type PayloadValidator struct {
	compiler *jsonschema.Compiler
	schemas  map[string]*jsonschema.Schema
}

// New creates an empty validator.
func New() *PayloadValidator {
	return &PayloadValidator{
		compiler: jsonschema.NewCompiler(),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register compiles and stores the schema for a task name. Called only
// while the manager is in init state, mirroring the handler registry's
// own init-only mutation rule (§4.D). A malformed schema is rejected here
// rather than deferred to the first submission.
func (v *PayloadValidator) Register(name string, rawSchema json.RawMessage) error {
	if len(rawSchema) == 0 {
		return nil
	}

	schema, err := v.compiler.Compile(rawSchema)
	if err != nil {
		return fmt.Errorf("compiling schema for task %q: %w", name, err)
	}
	v.schemas[name] = schema
	return nil
}

// Validate checks payload against the schema registered for name, if any.
// Tasks with no registered schema always pass.
func (v *PayloadValidator) Validate(name string, payload json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}

	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("%w: payload is not valid JSON: %v", model.ErrInvalidTaskPayload, err)
	}

	result := schema.Validate(decoded)
	if !result.IsValid() {
		return fmt.Errorf("%w: %v", model.ErrInvalidTaskPayload, result.ToList())
	}
	return nil
}

// HasSchema reports whether a schema is registered for name.
func (v *PayloadValidator) HasSchema(name string) bool {
	_, ok := v.schemas[name]
	return ok
}
