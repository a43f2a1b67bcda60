package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestRenderer_DefaultPayload(t *testing.T) {
	renderer := NewRenderer(nil, nil)
	payload, err := renderer.Render(context.Background(), enablingEvent("F1", "P1", true), testHook("h1", []string{"F1"}, nil))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if payload.ContentType != ContentTypeJSON {
		t.Fatalf("expected json content type, got %q", payload.ContentType)
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(payload.Body, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["feature_id"] != "F1" || decoded["enabled"] != true || decoded["project"] != "P1" {
		t.Fatalf("unexpected default payload %v", decoded)
	}
}

func TestRenderer_DeletedEventOmitsActivation(t *testing.T) {
	event := enablingEvent("F1", "P1", true)
	event.Kind = ChangeKindDeleted
	event.Deleted = true
	payload, err := NewRenderer(nil, nil).Render(context.Background(), event, testHook("h1", []string{"F1"}, nil))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	decoded := map[string]any{}
	_ = json.Unmarshal(payload.Body, &decoded)
	if decoded["deleted"] != true || decoded["enabled"] != nil {
		t.Fatalf("unexpected deleted payload %v", decoded)
	}
}

func TestRenderer_TemplateContentType(t *testing.T) {
	hook := testHook("h1", []string{"F1"}, nil)
	renderer := NewRenderer(nil, replaceEngine{})

	hook.BodyTemplate = `{"text":"{{feature_name}} is {{enabled}}"}`
	payload, err := renderer.Render(context.Background(), enablingEvent("F1", "P1", true), hook)
	if err != nil {
		t.Fatalf("render json template: %v", err)
	}
	if payload.ContentType != ContentTypeJSON || string(payload.Body) != `{"text":"name-F1 is true"}` {
		t.Fatalf("unexpected payload %q (%s)", payload.Body, payload.ContentType)
	}

	hook.BodyTemplate = `feature {{feature_id}} changed`
	payload, err = renderer.Render(context.Background(), enablingEvent("F1", "P1", true), hook)
	if err != nil {
		t.Fatalf("render text template: %v", err)
	}
	if payload.ContentType != ContentTypeText {
		t.Fatalf("expected text content type, got %q", payload.ContentType)
	}
}

func TestRenderer_UndefinedVariableIsRenderError(t *testing.T) {
	hook := testHook("h1", []string{"F1"}, nil)
	hook.BodyTemplate = `{{nope}}`
	_, err := NewRenderer(nil, replaceEngine{}).Render(context.Background(), enablingEvent("F1", "P1", true), hook)
	if !IsRenderError(err) {
		t.Fatalf("expected render error, got %v", err)
	}
}

func TestRenderer_ReevaluatesForHookContext(t *testing.T) {
	evaluator := &stubEvaluator{result: Activation{Enabled: true, Active: false}}
	hook := testHook("h1", []string{"F1"}, nil)
	hook.Context = "prod/eu"
	hook.User = "alice"

	payload, err := NewRenderer(evaluator, nil).Render(context.Background(), enablingEvent("F1", "P1", true), hook)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(evaluator.requests) != 1 || evaluator.requests[0].Context != "prod/eu" || evaluator.requests[0].User != "alice" {
		t.Fatalf("unexpected evaluation requests %#v", evaluator.requests)
	}
	decoded := map[string]any{}
	_ = json.Unmarshal(payload.Body, &decoded)
	if decoded["active"] != false {
		t.Fatalf("expected re-evaluated activation, got %v", decoded)
	}
}

func TestRenderer_EvaluatorFailureIsNotRenderError(t *testing.T) {
	evaluator := &stubEvaluator{err: errors.New("engine unavailable")}
	hook := testHook("h1", []string{"F1"}, nil)
	hook.User = "alice"
	_, err := NewRenderer(evaluator, nil).Render(context.Background(), enablingEvent("F1", "P1", true), hook)
	if err == nil || IsRenderError(err) {
		t.Fatalf("expected plain evaluation error, got %v", err)
	}
}
