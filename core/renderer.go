package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// TemplateVariables are the only names a custom body template may reference.
var TemplateVariables = []string{
	"feature_id",
	"feature_name",
	"enabled",
	"active",
	"project",
	"tenant",
	"change_kind",
	"timestamp",
	"event_id",
	"deleted",
	"conditions",
}

// Renderer turns a change event into the outbound body for one hook.
type Renderer struct {
	Evaluator ActivationEvaluator
	Templates TemplateEngine
}

func NewRenderer(evaluator ActivationEvaluator, templates TemplateEngine) *Renderer {
	return &Renderer{Evaluator: evaluator, Templates: templates}
}

// Render produces the payload. Failures of the activation evaluator are
// returned as plain errors; template problems are RenderErrors.
func (r *Renderer) Render(ctx context.Context, event ChangeEvent, hook Webhook) (RenderedPayload, error) {
	activation, err := r.activationFor(ctx, event, hook)
	if err != nil {
		return RenderedPayload{}, err
	}
	vars := templateVars(event, activation)

	if strings.TrimSpace(hook.BodyTemplate) == "" {
		body, err := json.Marshal(vars)
		if err != nil {
			return RenderedPayload{}, RenderError(err, hook.ID, "core: encode default payload")
		}
		return RenderedPayload{Body: body, ContentType: ContentTypeJSON}, nil
	}

	if r == nil || r.Templates == nil {
		return RenderedPayload{}, RenderError(nil, hook.ID, "core: webhook has a body template but no template engine is configured")
	}
	body, err := r.Templates.Render(hook.BodyTemplate, vars)
	if err != nil {
		if IsRenderError(err) {
			return RenderedPayload{}, err
		}
		return RenderedPayload{}, RenderError(err, hook.ID, "core: render body template")
	}
	contentType := ContentTypeText
	if json.Valid(body) {
		contentType = ContentTypeJSON
	}
	return RenderedPayload{Body: body, ContentType: contentType}, nil
}

func (r *Renderer) activationFor(ctx context.Context, event ChangeEvent, hook Webhook) (*Activation, error) {
	if event.Deleted || event.Kind == ChangeKindDeleted || !hook.NeedsReevaluation() {
		return event.Activation, nil
	}
	if r == nil || r.Evaluator == nil {
		return nil, fmt.Errorf("core: webhook %s needs re-evaluation but no activation evaluator is configured", hook.ID)
	}
	activation, err := r.Evaluator.Evaluate(ctx, EvaluationRequest{
		TenantID:  event.TenantID,
		ProjectID: event.ProjectID,
		FeatureID: event.FeatureID,
		Context:   strings.TrimSpace(hook.Context),
		User:      strings.TrimSpace(hook.User),
	})
	if err != nil {
		return nil, fmt.Errorf("core: evaluate feature %s for webhook %s: %w", event.FeatureID, hook.ID, err)
	}
	return &activation, nil
}

func templateVars(event ChangeEvent, activation *Activation) map[string]any {
	deleted := event.Deleted || event.Kind == ChangeKindDeleted
	vars := map[string]any{
		"feature_id":   event.FeatureID,
		"feature_name": event.FeatureName,
		"project":      event.ProjectID,
		"tenant":       event.TenantID,
		"change_kind":  string(event.Kind),
		"timestamp":    event.OccurredAt.UTC().Format(time.RFC3339Nano),
		"event_id":     event.EventID(),
		"deleted":      deleted,
		"enabled":      nil,
		"active":       nil,
		"conditions":   nil,
	}
	if activation != nil && !deleted {
		vars["enabled"] = activation.Enabled
		vars["active"] = activation.Active
		if len(activation.Conditions) > 0 {
			vars["conditions"] = activation.Conditions
		}
	}
	return vars
}
