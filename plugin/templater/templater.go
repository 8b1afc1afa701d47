// Package templater implements the templates.load step: it renders every
// requested template against the pipeline's event context and appends one
// message per template to the pipeline context for a transport plugin to
// send.
package templater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

const stepLoad = "templates.load"

// Plugin renders templates via a TemplateSource and appends the rendered
// parts to the pipeline context as messages.
type Plugin struct {
	templates interfaces.TemplateSource
}

// New builds a templater Plugin backed by templates.
func New(templates interfaces.TemplateSource) *Plugin {
	return &Plugin{templates: templates}
}

// Steps implements engine.Plugin.
func (p *Plugin) Steps() []string { return []string{stepLoad} }

// selector names one template to load, either by its human-readable name or
// its stable ID. Exactly one of the two is expected to be set; Name takes
// precedence if both are present.
type selector struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (s selector) key() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

type loadParams struct {
	Templates []selector `json:"templates"`
}

// ExecuteStep implements engine.Plugin.
func (p *Plugin) ExecuteStep(ctx context.Context, pctx *pipeline.Context, step pipeline.SerializedStep) (engine.StepOutput, error) {
	var params loadParams
	if err := json.Unmarshal(step.Params, &params); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidStep, step.FullyQualifiedStepType, err)
	}
	if len(params.Templates) == 0 {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidStep, step.FullyQualifiedStepType, fmt.Errorf("templates is required"))
	}

	for _, sel := range params.Templates {
		key := sel.key()
		if key == "" {
			return engine.StepContinue, engine.NewError(engine.ErrInvalidStep, step.FullyQualifiedStepType, fmt.Errorf("each template selector needs a name or an id"))
		}

		messageID := pipeline.NewMessageID()
		vars, err := renderVars(pctx, messageID)
		if err != nil {
			return engine.StepContinue, engine.NewError(engine.ErrInvalidStep, step.FullyQualifiedStepType, err)
		}

		rendered, err := p.templates.Render(ctx, pctx.ProjectID, pctx.Channel, key, vars)
		if err != nil {
			if errors.Is(err, interfaces.ErrTemplateNotFound) {
				return engine.StepContinue, engine.NewError(engine.ErrTemplateNotFound, step.FullyQualifiedStepType, err)
			}
			return engine.StepContinue, engine.NewError(engine.ErrTemplateRender, step.FullyQualifiedStepType, err)
		}

		pctx.AppendMessage(messageID, rendered)
	}

	return engine.StepContinue, nil
}

// renderVars builds the variable set one template render sees: the raw
// event context plus a reserved "_" namespace carrying identifiers the
// template author can interpolate into the rendered content (e.g. an
// unsubscribe link keyed on the notification ID).
func renderVars(pctx *pipeline.Context, messageID uuid.UUID) (map[string]any, error) {
	vars := map[string]any{}
	if len(pctx.EventContext) > 0 {
		if err := json.Unmarshal(pctx.EventContext, &vars); err != nil {
			return nil, fmt.Errorf("decoding event context: %w", err)
		}
	}

	vars["_"] = map[string]any{
		"notification_id": pctx.NotificationID.String(),
		"message_id":       messageID.String(),
		"recipient_id":     pctx.Recipient.ID,
		"channel":          pctx.Channel,
	}
	return vars, nil
}
