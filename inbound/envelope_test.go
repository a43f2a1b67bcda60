package inbound

import (
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featurehooks/core"
)

func TestDecodeChangeEvent_MapsEnvelope(t *testing.T) {
	event, err := DecodeChangeEvent([]byte(`{
		"id": " evt-1 ",
		"feature_id": "f1",
		"feature_name": "checkout-v2",
		"project": "shop",
		"tenant": "acme",
		"kind": "ENABLING_CHANGED",
		"occurred_at": "2026-03-01T10:00:00+02:00",
		"activation": {"enabled": true, "conditions": {"percentage": 20}}
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.ID != "evt-1" || event.FeatureID != "f1" || event.ProjectID != "shop" || event.TenantID != "acme" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Kind != core.ChangeKindEnablingChanged {
		t.Fatalf("expected kind to be normalized, got %q", event.Kind)
	}
	if !event.OccurredAt.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) || event.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected occurred_at in UTC, got %v", event.OccurredAt)
	}
	if event.Activation == nil || !event.Activation.Enabled || !event.Activation.Active {
		t.Fatalf("expected active to default to enabled, got %+v", event.Activation)
	}
	if event.Activation.Conditions["percentage"] != float64(20) {
		t.Fatalf("expected conditions to pass through, got %+v", event.Activation.Conditions)
	}
}

func TestDecodeChangeEvent_ExplicitActiveWins(t *testing.T) {
	event, err := DecodeChangeEvent([]byte(`{"id":"evt-1","feature_id":"f1","kind":"created","activation":{"enabled":true,"active":false}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Activation.Active {
		t.Fatalf("expected explicit active=false to be kept")
	}
}

func TestDecodeChangeEvent_RejectsInvalidPayloads(t *testing.T) {
	cases := map[string]string{
		"malformed":       `{"feature_id":`,
		"missing feature": `{"kind":"created"}`,
		"unknown kind":    `{"feature_id":"f1","kind":"renamed"}`,
		"no identity":     `{"feature_id":"f1","kind":"created"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeChangeEvent([]byte(payload))
			if err == nil {
				t.Fatalf("expected decode error")
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryBadInput {
				t.Fatalf("expected bad_input category, got %q", rich.Category)
			}
			if rich.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
			}
			if statusFor(err) != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", statusFor(err))
			}
		})
	}
}

func TestEncodeEnvelope_DecodesBack(t *testing.T) {
	payload, err := encodeEnvelope(Envelope{FeatureID: "f1", Kind: "deleted", Deleted: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	event, err := DecodeChangeEvent(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Kind != core.ChangeKindDeleted || !event.Deleted {
		t.Fatalf("unexpected event: %+v", event)
	}
}
