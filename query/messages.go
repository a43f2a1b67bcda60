package query

import (
	"strings"

	"github.com/goliatone/go-featurehooks/core"
)

const (
	TypeDeliveryStats  = "featurehooks.query.delivery.stats"
	TypeListDeliveries = "featurehooks.query.delivery.list"
	TypeGetDelivery    = "featurehooks.query.delivery.get"
	TypeGetWebhook     = "featurehooks.query.webhook.get"
	TypeListWebhooks   = "featurehooks.query.webhook.list"
)

// DeliveryStatsMessage aggregates every hook when WebhookID is empty.
type DeliveryStatsMessage struct {
	WebhookID string
}

func (DeliveryStatsMessage) Type() string { return TypeDeliveryStats }

func (DeliveryStatsMessage) Validate() error { return nil }

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type GetWebhookMessage struct {
	Principal string
	WebhookID string
}

func (GetWebhookMessage) Type() string { return TypeGetWebhook }

func (m GetWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return queryValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type ListWebhooksMessage struct {
	Principal string
	TenantID  string
}

func (ListWebhooksMessage) Type() string { return TypeListWebhooks }

func (ListWebhooksMessage) Validate() error { return nil }
