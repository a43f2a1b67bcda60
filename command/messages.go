package command

import (
	"strings"

	"github.com/goliatone/go-featurehooks/core"
)

const (
	TypeIngestChangeEvent = "featurehooks.command.change_event.ingest"
	TypeUpsertWebhook     = "featurehooks.command.webhook.upsert"
	TypeDeleteWebhook     = "featurehooks.command.webhook.delete"
	TypeRequeueDelivery   = "featurehooks.command.delivery.requeue"
	TypeDispatchPending   = "featurehooks.command.delivery.dispatch_pending"
)

type IngestChangeEventMessage struct {
	Event core.ChangeEvent
}

func (IngestChangeEventMessage) Type() string { return TypeIngestChangeEvent }

func (m IngestChangeEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.FeatureID) == "" {
		return commandValidationError("feature_id", "feature id is required")
	}
	if !m.Event.Kind.Valid() {
		return commandValidationError("kind", "unknown change kind "+string(m.Event.Kind))
	}
	return nil
}

type UpsertWebhookMessage struct {
	Input core.UpsertWebhookInput
}

func (UpsertWebhookMessage) Type() string { return TypeUpsertWebhook }

func (m UpsertWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Input.Webhook.URL) == "" {
		return commandValidationError("url", "webhook url is required")
	}
	return nil
}

type DeleteWebhookMessage struct {
	Input core.DeleteWebhookInput
}

func (DeleteWebhookMessage) Type() string { return TypeDeleteWebhook }

func (m DeleteWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Input.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type RequeueDeliveryMessage struct {
	DeliveryID string
}

func (RequeueDeliveryMessage) Type() string { return TypeRequeueDelivery }

func (m RequeueDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return commandValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

// DispatchPendingMessage runs one claim-and-deliver pass.
type DispatchPendingMessage struct {
	EventID string
}

func (DispatchPendingMessage) Type() string { return TypeDispatchPending }

func (DispatchPendingMessage) Validate() error { return nil }
