package featurehooks

import (
	"fmt"

	featurecommand "github.com/goliatone/go-featurehooks/command"
	featurequery "github.com/goliatone/go-featurehooks/query"
)

type CommandQueryService interface {
	featurecommand.MutatingService
	featurequery.DeliveryReader
	featurequery.WebhookReader
}

type Commands struct {
	IngestChangeEvent *featurecommand.IngestChangeEventCommand
	UpsertWebhook     *featurecommand.UpsertWebhookCommand
	DeleteWebhook     *featurecommand.DeleteWebhookCommand
	RequeueDelivery   *featurecommand.RequeueDeliveryCommand
	// DispatchPending is nil unless a dispatcher was supplied.
	DispatchPending *featurecommand.DispatchPendingCommand
}

type Queries struct {
	DeliveryStats  *featurequery.DeliveryStatsQuery
	ListDeliveries *featurequery.ListDeliveriesQuery
	GetDelivery    *featurequery.GetDeliveryQuery
	GetWebhook     *featurequery.GetWebhookQuery
	ListWebhooks   *featurequery.ListWebhooksQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	dispatcher featurecommand.PendingDispatcher
}

func WithDispatcher(dispatcher featurecommand.PendingDispatcher) FacadeOption {
	return func(options *facadeOptions) {
		options.dispatcher = dispatcher
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("featurehooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestChangeEvent: featurecommand.NewIngestChangeEventCommand(service),
		UpsertWebhook:     featurecommand.NewUpsertWebhookCommand(service),
		DeleteWebhook:     featurecommand.NewDeleteWebhookCommand(service),
		RequeueDelivery:   featurecommand.NewRequeueDeliveryCommand(service),
	}
	if cfg.dispatcher != nil {
		facade.commands.DispatchPending = featurecommand.NewDispatchPendingCommand(cfg.dispatcher)
	}
	facade.queries = Queries{
		DeliveryStats:  featurequery.NewDeliveryStatsQuery(service),
		ListDeliveries: featurequery.NewListDeliveriesQuery(service),
		GetDelivery:    featurequery.NewGetDeliveryQuery(service),
		GetWebhook:     featurequery.NewGetWebhookQuery(service),
		ListWebhooks:   featurequery.NewListWebhooksQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
