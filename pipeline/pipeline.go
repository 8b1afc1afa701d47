// Package pipeline holds the data model shared by the engine, runner and
// plugins: pipelines, their serialized steps, and the per-pipeline execution
// context that steps read and mutate as they run.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Pipeline is a named, ordered sequence of steps attached to a project and
// triggered by an event name.
type Pipeline struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"project_id"`
	EventName string           `json:"event_name"`
	Channel   string           `json:"channel"`
	Steps     []SerializedStep `json:"steps"`
}

// SerializedStep is a single plugin invocation within a pipeline, as stored
// on disk or in the database. On the wire it is a flat JSON object whose
// "step" key names the exact operation a plugin must register to handle it
// (e.g. "telegram.send", "templates.load"); every other key is opaque
// plugin-defined payload, kept serialized in Params until the owning plugin
// decodes it.
type SerializedStep struct {
	FullyQualifiedStepType string
	Params                 json.RawMessage
}

// UnmarshalJSON decodes the flat wire shape: the "step" discriminator is
// split off and the remaining keys are re-serialized into Params.
func (s *SerializedStep) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rawStep, ok := fields["step"]
	if !ok {
		return errors.New("pipeline: step object is missing its \"step\" discriminator")
	}
	if err := json.Unmarshal(rawStep, &s.FullyQualifiedStepType); err != nil {
		return fmt.Errorf("pipeline: decoding step discriminator: %w", err)
	}
	delete(fields, "step")
	params, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	s.Params = params
	return nil
}

// MarshalJSON re-flattens the step into its wire shape. A payload key named
// "step" would collide with the discriminator, so it is rejected rather
// than silently overwritten.
func (s SerializedStep) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(s.Params) > 0 {
		if err := json.Unmarshal(s.Params, &fields); err != nil {
			return nil, fmt.Errorf("pipeline: step params must be a JSON object: %w", err)
		}
	}
	if _, exists := fields["step"]; exists {
		return nil, errors.New("pipeline: step params may not contain a \"step\" key")
	}
	rawStep, err := json.Marshal(s.FullyQualifiedStepType)
	if err != nil {
		return nil, err
	}
	fields["step"] = rawStep
	return json.Marshal(fields)
}
