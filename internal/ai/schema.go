package ai

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// validateAgainstSchema checks a raw remote response against the requested
// schema. Violations are never coerced; the caller gets a SchemaError with
// the raw response attached.
func validateAgainstSchema(schema *jsonschema.Schema, raw json.RawMessage) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &SchemaError{Raw: raw, Detail: "response is not valid JSON: " + err.Error()}
	}
	if err := resolved.Validate(instance); err != nil {
		return &SchemaError{Raw: raw, Detail: err.Error()}
	}
	return nil
}

// sentimentSchema constrains sentiment responses to a bounded score.
func sentimentSchema() *jsonschema.Schema {
	lo, hi := -1.0, 1.0
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"score"},
		Properties: map[string]*jsonschema.Schema{
			"score": {Type: "number", Minimum: &lo, Maximum: &hi},
		},
	}
}

// classifySchema constrains classification responses to a single label
// field. Membership in the caller's category set is enforced by the
// annotation pipeline, not here.
func classifySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"label"},
		Properties: map[string]*jsonschema.Schema{
			"label": {Type: "string"},
		},
	}
}
