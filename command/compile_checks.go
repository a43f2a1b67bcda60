package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestChangeEventMessage] = (*IngestChangeEventCommand)(nil)
	_ gocmd.Commander[UpsertWebhookMessage]     = (*UpsertWebhookCommand)(nil)
	_ gocmd.Commander[DeleteWebhookMessage]     = (*DeleteWebhookCommand)(nil)
	_ gocmd.Commander[RequeueDeliveryMessage]   = (*RequeueDeliveryCommand)(nil)
	_ gocmd.Commander[DispatchPendingMessage]   = (*DispatchPendingCommand)(nil)
)
