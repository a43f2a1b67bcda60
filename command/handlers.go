package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-featurehooks/core"
)

type MutatingService interface {
	HandleChangeEvent(ctx context.Context, event core.ChangeEvent) (core.IngestResult, error)
	UpsertWebhook(ctx context.Context, in core.UpsertWebhookInput) (core.Webhook, error)
	DeleteWebhook(ctx context.Context, in core.DeleteWebhookInput) error
	RequeueDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error)
}

type PendingDispatcher interface {
	DispatchPending(ctx context.Context) (core.DispatchStats, error)
}

type IngestChangeEventCommand struct {
	service MutatingService
}

func NewIngestChangeEventCommand(service MutatingService) *IngestChangeEventCommand {
	return &IngestChangeEventCommand{service: service}
}

func (c *IngestChangeEventCommand) Execute(ctx context.Context, msg IngestChangeEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.HandleChangeEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertWebhookCommand struct {
	service MutatingService
}

func NewUpsertWebhookCommand(service MutatingService) *UpsertWebhookCommand {
	return &UpsertWebhookCommand{service: service}
}

func (c *UpsertWebhookCommand) Execute(ctx context.Context, msg UpsertWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.UpsertWebhook(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWebhookCommand struct {
	service MutatingService
}

func NewDeleteWebhookCommand(service MutatingService) *DeleteWebhookCommand {
	return &DeleteWebhookCommand{service: service}
}

func (c *DeleteWebhookCommand) Execute(ctx context.Context, msg DeleteWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.DeleteWebhook(ctx, msg.Input)
}

type RequeueDeliveryCommand struct {
	service MutatingService
}

func NewRequeueDeliveryCommand(service MutatingService) *RequeueDeliveryCommand {
	return &RequeueDeliveryCommand{service: service}
}

func (c *RequeueDeliveryCommand) Execute(ctx context.Context, msg RequeueDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.RequeueDelivery(ctx, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchPendingCommand struct {
	dispatcher PendingDispatcher
}

func NewDispatchPendingCommand(dispatcher PendingDispatcher) *DispatchPendingCommand {
	return &DispatchPendingCommand{dispatcher: dispatcher}
}

func (c *DispatchPendingCommand) Execute(ctx context.Context, _ DispatchPendingMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: dispatcher is required")
	}
	out, err := c.dispatcher.DispatchPending(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
