package gocommand

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	featurecommand "github.com/goliatone/go-featurehooks/command"
	"github.com/goliatone/go-featurehooks/core"
	featurequery "github.com/goliatone/go-featurehooks/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// QueueResolverKey is the registry resolver that mirrors featurehooks
// commands into a go-job queue command registry.
const QueueResolverKey = "queue"

// Handlers bundles the services behind the featurehooks commands and queries.
// Dispatcher may be nil when dispatching runs out of process.
type Handlers struct {
	Service interface {
		featurecommand.MutatingService
		featurequery.DeliveryReader
		featurequery.WebhookReader
	}
	Dispatcher featurecommand.PendingDispatcher
}

// Bus registers the featurehooks commands and queries with go-command and
// exposes them as typed calls. go-command routes messages through a process
// wide dispatcher, so run at most one Bus per process.
type Bus struct {
	registry      *command.Registry
	queueRegistry *jobqueuecommand.Registry
	runnerOpts    []runner.Option

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

type BusOption func(*Bus)

// WithRunnerOptions applies go-command runner options (timeouts, retries) to
// every handler.
func WithRunnerOptions(opts ...runner.Option) BusOption {
	return func(b *Bus) {
		b.runnerOpts = append(b.runnerOpts, opts...)
	}
}

// WithQueueRegistry mirrors every registered command into reg so go-job
// workers can execute them by message type.
func WithQueueRegistry(reg *jobqueuecommand.Registry) BusOption {
	return func(b *Bus) {
		b.queueRegistry = reg
	}
}

// NewBus registers and subscribes every handler, then initializes the
// registry. On failure nothing stays subscribed.
func NewBus(handlers Handlers, opts ...BusOption) (*Bus, error) {
	if handlers.Service == nil {
		return nil, fmt.Errorf("gocommand: featurehooks service is required")
	}
	b := &Bus{registry: command.NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.queueRegistry != nil {
		if err := b.registry.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(b.queueRegistry)); err != nil {
			return nil, fmt.Errorf("gocommand: add queue resolver: %w", err)
		}
	}

	service := handlers.Service
	steps := []func() error{
		func() error { return subscribeCommand(b, featurecommand.NewIngestChangeEventCommand(service)) },
		func() error { return subscribeCommand(b, featurecommand.NewUpsertWebhookCommand(service)) },
		func() error { return subscribeCommand(b, featurecommand.NewDeleteWebhookCommand(service)) },
		func() error { return subscribeCommand(b, featurecommand.NewRequeueDeliveryCommand(service)) },
		func() error { return subscribeQuery(b, featurequery.NewDeliveryStatsQuery(service)) },
		func() error { return subscribeQuery(b, featurequery.NewListDeliveriesQuery(service)) },
		func() error { return subscribeQuery(b, featurequery.NewGetDeliveryQuery(service)) },
		func() error { return subscribeQuery(b, featurequery.NewGetWebhookQuery(service)) },
		func() error { return subscribeQuery(b, featurequery.NewListWebhooksQuery(service)) },
	}
	if handlers.Dispatcher != nil {
		steps = append(steps, func() error {
			return subscribeCommand(b, featurecommand.NewDispatchPendingCommand(handlers.Dispatcher))
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.Close()
			return nil, err
		}
	}
	if err := b.registry.Initialize(); err != nil {
		b.Close()
		return nil, fmt.Errorf("gocommand: initialize registry: %w", err)
	}
	return b, nil
}

func subscribeCommand[T any](b *Bus, cmd command.Commander[T]) error {
	sub := commanddispatcher.SubscribeCommand(cmd, b.runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("gocommand: register command: %w", err)
	}
	b.track(sub)
	return nil
}

func subscribeQuery[T any, R any](b *Bus, qry command.Querier[T, R]) error {
	sub := commanddispatcher.SubscribeQuery(qry, b.runnerOpts...)
	if err := b.registry.RegisterCommand(qry); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("gocommand: register query: %w", err)
	}
	b.track(sub)
	return nil
}

func (b *Bus) track(sub commanddispatcher.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, sub)
}

// Close removes every subscription. It is safe to call more than once.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Ingestor routes inbound change events through the ingest command.
func (b *Bus) Ingestor() core.Ingestor {
	return busIngestor{bus: b}
}

func (b *Bus) IngestChangeEvent(ctx context.Context, event core.ChangeEvent) (core.IngestResult, error) {
	result, _, err := dispatchWithResult[core.IngestResult](ctx, featurecommand.IngestChangeEventMessage{Event: event})
	if err != nil {
		return core.IngestResult{EventID: event.EventID()}, err
	}
	if result.EventID == "" {
		result.EventID = event.EventID()
	}
	return result, nil
}

func (b *Bus) UpsertWebhook(ctx context.Context, in core.UpsertWebhookInput) (core.Webhook, error) {
	hook, _, err := dispatchWithResult[core.Webhook](ctx, featurecommand.UpsertWebhookMessage{Input: in})
	return hook, err
}

func (b *Bus) DeleteWebhook(ctx context.Context, in core.DeleteWebhookInput) error {
	return commanddispatcher.Dispatch(ctx, featurecommand.DeleteWebhookMessage{Input: in})
}

func (b *Bus) RequeueDelivery(ctx context.Context, deliveryID string) (core.DeliveryAttempt, error) {
	row, _, err := dispatchWithResult[core.DeliveryAttempt](ctx, featurecommand.RequeueDeliveryMessage{DeliveryID: deliveryID})
	return row, err
}

// DispatchPending runs one dispatch pass. eventID only labels the wake-up;
// the pass claims whatever is due.
func (b *Bus) DispatchPending(ctx context.Context, eventID string) (core.DispatchStats, error) {
	stats, _, err := dispatchWithResult[core.DispatchStats](ctx, featurecommand.DispatchPendingMessage{EventID: eventID})
	return stats, err
}

func (b *Bus) DeliveryStats(ctx context.Context, webhookID string) (core.DeliveryStats, error) {
	return commanddispatcher.Query[featurequery.DeliveryStatsMessage, core.DeliveryStats](ctx, featurequery.DeliveryStatsMessage{WebhookID: webhookID})
}

func (b *Bus) ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	return commanddispatcher.Query[featurequery.ListDeliveriesMessage, core.DeliveryPage](ctx, featurequery.ListDeliveriesMessage{Filter: filter})
}

func (b *Bus) GetDelivery(ctx context.Context, deliveryID string) (core.DeliveryAttempt, error) {
	return commanddispatcher.Query[featurequery.GetDeliveryMessage, core.DeliveryAttempt](ctx, featurequery.GetDeliveryMessage{DeliveryID: deliveryID})
}

func (b *Bus) GetWebhook(ctx context.Context, principal string, webhookID string) (core.Webhook, error) {
	return commanddispatcher.Query[featurequery.GetWebhookMessage, core.Webhook](ctx, featurequery.GetWebhookMessage{
		Principal: principal,
		WebhookID: webhookID,
	})
}

func (b *Bus) ListWebhooks(ctx context.Context, principal string, tenantID string) ([]core.Webhook, error) {
	return commanddispatcher.Query[featurequery.ListWebhooksMessage, []core.Webhook](ctx, featurequery.ListWebhooksMessage{
		Principal: principal,
		TenantID:  tenantID,
	})
}

// dispatchWithResult runs a command and reads the value its handler stored
// in the context result collector.
func dispatchWithResult[R any, T any](ctx context.Context, msg T) (R, bool, error) {
	collector := command.NewResult[R]()
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		var zero R
		return zero, false, err
	}
	value, ok := collector.Load()
	return value, ok, nil
}

type busIngestor struct {
	bus *Bus
}

func (i busIngestor) HandleChangeEvent(ctx context.Context, event core.ChangeEvent) (core.IngestResult, error) {
	return i.bus.IngestChangeEvent(ctx, event)
}

var _ core.Ingestor = busIngestor{}
