// Package engine interprets a pipeline's steps against a registry of
// plugins, dispatching each step to the plugin that registered its exact
// fully qualified step type.
package engine

import (
	"context"

	"github.com/notifico/dispatcher/pipeline"
)

// StepOutput tells the runner whether the pipeline should keep executing
// its remaining steps or stop here without that being an error. A plugin
// returns StepInterrupt deliberately, e.g. a condition step whose predicate
// didn't match.
type StepOutput int

const (
	// StepContinue means run the next step.
	StepContinue StepOutput = iota
	// StepInterrupt means stop running this pipeline, successfully.
	StepInterrupt
)

func (o StepOutput) String() string {
	if o == StepInterrupt {
		return "interrupt"
	}
	return "continue"
}

// Plugin executes one or more step types. A plugin's Steps lists the exact
// fully qualified step types it handles; the registry dispatches on an
// exact match only, never a prefix.
type Plugin interface {
	// Steps returns the fully qualified step types this plugin handles,
	// e.g. {"telegram.send"} or {"templates.load"}.
	Steps() []string

	// ExecuteStep runs one step of a pipeline against the given context.
	// The context is mutated in place; the returned EngineError, if any,
	// should be built with NewError so its Kind is preserved.
	ExecuteStep(ctx context.Context, pctx *pipeline.Context, step pipeline.SerializedStep) (StepOutput, error)
}

// RequireContact is the shared precondition every channel transport plugin
// checks before it can send anything: a recipient must have been supplied
// on the request at all, and that recipient must have a contact for the
// pipeline's channel. The two failure modes are distinct (RecipientNotSet
// vs. ContactNotSet) so callers can tell "nobody to send to" apart from
// "this recipient doesn't use this channel".
func RequireContact(pctx *pipeline.Context, stepType string) error {
	if pctx.Recipient.ID == "" {
		return NewError(ErrRecipientNotSet, stepType, nil)
	}
	if pctx.Contact.Address == "" {
		return NewError(ErrContactNotSet, stepType, nil)
	}
	return nil
}
