package inbound

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featurehooks/core"
)

// Envelope is the JSON wire form of a change event.
type Envelope struct {
	ID          string              `json:"id,omitempty"`
	FeatureID   string              `json:"feature_id"`
	FeatureName string              `json:"feature_name,omitempty"`
	ProjectID   string              `json:"project,omitempty"`
	TenantID    string              `json:"tenant,omitempty"`
	Kind        string              `json:"kind"`
	OccurredAt  *time.Time          `json:"occurred_at,omitempty"`
	Activation  *ActivationEnvelope `json:"activation,omitempty"`
	Deleted     bool                `json:"deleted,omitempty"`
}

type ActivationEnvelope struct {
	Enabled    bool           `json:"enabled"`
	Active     *bool          `json:"active,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// DecodeChangeEvent parses and validates one envelope.
func DecodeChangeEvent(payload []byte) (core.ChangeEvent, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return core.ChangeEvent{}, inboundWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: malformed change event",
			http.StatusBadRequest,
			core.ServiceErrorBadInput,
			nil,
		)
	}
	return envelope.ChangeEvent()
}

func (e Envelope) ChangeEvent() (core.ChangeEvent, error) {
	event := core.ChangeEvent{
		ID:          strings.TrimSpace(e.ID),
		FeatureID:   strings.TrimSpace(e.FeatureID),
		FeatureName: strings.TrimSpace(e.FeatureName),
		ProjectID:   strings.TrimSpace(e.ProjectID),
		TenantID:    strings.TrimSpace(e.TenantID),
		Kind:        core.ChangeKind(strings.ToLower(strings.TrimSpace(e.Kind))),
		Deleted:     e.Deleted,
	}
	if event.FeatureID == "" {
		return core.ChangeEvent{}, inboundBadInput("inbound: feature_id is required", nil)
	}
	if !event.Kind.Valid() {
		return core.ChangeEvent{}, inboundBadInput(
			"inbound: unknown change kind",
			map[string]any{"kind": e.Kind},
		)
	}
	if e.OccurredAt != nil {
		event.OccurredAt = e.OccurredAt.UTC()
	}
	if event.ID == "" && event.OccurredAt.IsZero() {
		return core.ChangeEvent{}, inboundBadInput("inbound: occurred_at is required when id is absent", nil)
	}
	if e.Activation != nil {
		active := e.Activation.Enabled
		if e.Activation.Active != nil {
			active = *e.Activation.Active
		}
		event.Activation = &core.Activation{
			Enabled:    e.Activation.Enabled,
			Active:     active,
			Conditions: e.Activation.Conditions,
		}
	}
	return event, nil
}

func encodeEnvelope(envelope Envelope) ([]byte, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("inbound: encode change event: %w", err)
	}
	return payload, nil
}
