package query

import (
	"context"

	"github.com/goliatone/go-featurehooks/core"
)

type DeliveryReader interface {
	DeliveryStats(ctx context.Context, webhookID string) (core.DeliveryStats, error)
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error)
	GetDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error)
}

type WebhookReader interface {
	GetWebhook(ctx context.Context, principal string, id string) (core.Webhook, error)
	ListWebhooks(ctx context.Context, principal string, tenantID string) ([]core.Webhook, error)
}

type DeliveryStatsQuery struct {
	reader DeliveryReader
}

func NewDeliveryStatsQuery(reader DeliveryReader) *DeliveryStatsQuery {
	return &DeliveryStatsQuery{reader: reader}
}

func (q *DeliveryStatsQuery) Query(ctx context.Context, msg DeliveryStatsMessage) (core.DeliveryStats, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryStats{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.DeliveryStats(ctx, msg.WebhookID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) (core.DeliveryPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryPage{}, queryDependencyError("query: delivery reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.DeliveryPage{}, err
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryAttempt{}, queryDependencyError("query: delivery reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.DeliveryAttempt{}, err
	}
	return q.reader.GetDelivery(ctx, msg.DeliveryID)
}

type GetWebhookQuery struct {
	reader WebhookReader
}

func NewGetWebhookQuery(reader WebhookReader) *GetWebhookQuery {
	return &GetWebhookQuery{reader: reader}
}

func (q *GetWebhookQuery) Query(ctx context.Context, msg GetWebhookMessage) (core.Webhook, error) {
	if q == nil || q.reader == nil {
		return core.Webhook{}, queryDependencyError("query: webhook reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Webhook{}, err
	}
	return q.reader.GetWebhook(ctx, msg.Principal, msg.WebhookID)
}

type ListWebhooksQuery struct {
	reader WebhookReader
}

func NewListWebhooksQuery(reader WebhookReader) *ListWebhooksQuery {
	return &ListWebhooksQuery{reader: reader}
}

func (q *ListWebhooksQuery) Query(ctx context.Context, msg ListWebhooksMessage) ([]core.Webhook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.ListWebhooks(ctx, msg.Principal, msg.TenantID)
}
