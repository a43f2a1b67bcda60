package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	featurecommand "github.com/goliatone/go-featurehooks/command"
)

type stubDispatcher struct {
	calls int
	stats core.DispatchStats
	err   error
}

func (d *stubDispatcher) DispatchPending(context.Context) (core.DispatchStats, error) {
	d.calls++
	return d.stats, d.err
}

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := core.NewService(core.DefaultConfig(), core.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func newTestBus(t *testing.T, handlers Handlers, opts ...BusOption) *Bus {
	t.Helper()
	bus, err := NewBus(handlers, opts...)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestBus_WebhookLifecycleAndIngest(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t, Handlers{Service: newTestService(t)})

	hook, err := bus.UpsertWebhook(ctx, core.UpsertWebhookInput{
		Principal: "ops",
		Webhook: core.Webhook{
			Name:     "checkout",
			URL:      "https://receiver.example/hook",
			Features: []string{"F1"},
			Enabled:  true,
		},
	})
	if err != nil {
		t.Fatalf("upsert webhook: %v", err)
	}
	if hook.ID == "" {
		t.Fatalf("expected created webhook id")
	}

	got, err := bus.GetWebhook(ctx, "ops", hook.ID)
	if err != nil || got.ID != hook.ID {
		t.Fatalf("expected webhook round trip, got %+v err=%v", got, err)
	}

	result, err := bus.Ingestor().HandleChangeEvent(ctx, core.ChangeEvent{
		ID:        "evt-1",
		FeatureID: "F1",
		Kind:      core.ChangeKindCreated,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.EventID != "evt-1" || len(result.Inserted) != 1 {
		t.Fatalf("expected one inserted delivery, got %+v", result)
	}

	page, err := bus.ListDeliveries(ctx, core.DeliveryFilter{WebhookID: hook.ID})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Status != core.DeliveryStatusPending {
		t.Fatalf("expected one pending delivery, got %+v", page.Items)
	}

	stats, err := bus.DeliveryStats(ctx, hook.ID)
	if err != nil || stats.Pending != 1 {
		t.Fatalf("expected one pending in stats, got %+v err=%v", stats, err)
	}

	if err := bus.DeleteWebhook(ctx, core.DeleteWebhookInput{Principal: "ops", WebhookID: hook.ID}); err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	hooks, err := bus.ListWebhooks(ctx, "ops", "")
	if err != nil {
		t.Fatalf("list webhooks: %v", err)
	}
	if len(hooks) != 0 {
		t.Fatalf("expected no webhooks after delete, got %d", len(hooks))
	}
}

func TestBus_ValidationErrorsSurface(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t, Handlers{Service: newTestService(t)})

	if _, err := bus.IngestChangeEvent(ctx, core.ChangeEvent{ID: "evt-2", Kind: core.ChangeKindCreated}); err == nil {
		t.Fatalf("expected missing feature id to fail")
	}
	if _, err := bus.GetDelivery(ctx, ""); err == nil {
		t.Fatalf("expected missing delivery id to fail")
	}
}

func TestBus_DispatchPendingRequiresDispatcher(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t, Handlers{Service: newTestService(t)})
	if _, err := bus.DispatchPending(ctx, "evt-3"); err == nil {
		t.Fatalf("expected dispatch without a dispatcher to fail")
	}
}

func TestBus_DispatchPendingRunsDispatcher(t *testing.T) {
	ctx := context.Background()
	dispatcher := &stubDispatcher{stats: core.DispatchStats{Claimed: 2, Succeeded: 2}}
	bus := newTestBus(t, Handlers{Service: newTestService(t), Dispatcher: dispatcher})

	stats, err := bus.DispatchPending(ctx, "evt-4")
	if err != nil {
		t.Fatalf("dispatch pending: %v", err)
	}
	if dispatcher.calls != 1 || stats.Succeeded != 2 {
		t.Fatalf("expected one pass, calls=%d stats=%+v", dispatcher.calls, stats)
	}

	failing := errors.New("ledger unavailable")
	dispatcher.err = failing
	if _, err := bus.DispatchPending(ctx, "evt-4"); !errors.Is(err, failing) {
		t.Fatalf("expected dispatcher error, got %v", err)
	}
}

func TestBus_MirrorsCommandsIntoQueueRegistry(t *testing.T) {
	queueRegistry := jobqueuecommand.NewRegistry()
	newTestBus(t, Handlers{Service: newTestService(t), Dispatcher: &stubDispatcher{}},
		WithQueueRegistry(queueRegistry),
	)

	for _, id := range []string{featurecommand.TypeIngestChangeEvent, featurecommand.TypeDispatchPending} {
		if _, ok := queueRegistry.Get(id); !ok {
			t.Fatalf("expected %s to be mirrored into the queue registry", id)
		}
	}
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	bus, err := NewBus(Handlers{Service: newTestService(t)})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	bus.Close()
	bus.Close()

	if _, err := bus.ListDeliveries(context.Background(), core.DeliveryFilter{}); err == nil {
		t.Fatalf("expected queries to fail once the bus is closed")
	}
}

func TestNewBus_RequiresService(t *testing.T) {
	if _, err := NewBus(Handlers{}); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}

