package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-featurehooks/core"
)

var (
	_ gocmd.Querier[DeliveryStatsMessage, core.DeliveryStats] = (*DeliveryStatsQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryAttempt] = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[GetWebhookMessage, core.Webhook]          = (*GetWebhookQuery)(nil)
	_ gocmd.Querier[ListWebhooksMessage, []core.Webhook]      = (*ListWebhooksQuery)(nil)
)
