package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-featurehooks/core"
)

type stubMutatingService struct {
	ingestFn  func(context.Context, core.ChangeEvent) (core.IngestResult, error)
	upsertFn  func(context.Context, core.UpsertWebhookInput) (core.Webhook, error)
	deleteFn  func(context.Context, core.DeleteWebhookInput) error
	requeueFn func(context.Context, string) (core.DeliveryAttempt, error)
}

func (s stubMutatingService) HandleChangeEvent(ctx context.Context, event core.ChangeEvent) (core.IngestResult, error) {
	if s.ingestFn == nil {
		return core.IngestResult{}, nil
	}
	return s.ingestFn(ctx, event)
}

func (s stubMutatingService) UpsertWebhook(ctx context.Context, in core.UpsertWebhookInput) (core.Webhook, error) {
	if s.upsertFn == nil {
		return core.Webhook{}, nil
	}
	return s.upsertFn(ctx, in)
}

func (s stubMutatingService) DeleteWebhook(ctx context.Context, in core.DeleteWebhookInput) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, in)
}

func (s stubMutatingService) RequeueDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s.requeueFn == nil {
		return core.DeliveryAttempt{}, nil
	}
	return s.requeueFn(ctx, id)
}

type stubDispatcher struct {
	stats core.DispatchStats
	err   error
	calls int
}

func (d *stubDispatcher) DispatchPending(context.Context) (core.DispatchStats, error) {
	d.calls++
	return d.stats, d.err
}

func TestIngestChangeEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubMutatingService{
		ingestFn: func(_ context.Context, event core.ChangeEvent) (core.IngestResult, error) {
			called = true
			if event.FeatureID != "F1" || event.Kind != core.ChangeKindEnablingChanged {
				t.Fatalf("unexpected event: %#v", event)
			}
			return core.IngestResult{EventID: "evt-1", Inserted: []string{"wh-1"}}, nil
		},
	}

	cmd := NewIngestChangeEventCommand(svc)
	collector := gocmd.NewResult[core.IngestResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, IngestChangeEventMessage{Event: core.ChangeEvent{
		FeatureID:  "F1",
		ProjectID:  "P1",
		Kind:       core.ChangeKindEnablingChanged,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("execute ingest: %v", err)
	}
	if !called {
		t.Fatalf("expected ingest service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.EventID != "evt-1" || len(result.Inserted) != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestIngestChangeEventCommand_RejectsInvalidEventBeforeService(t *testing.T) {
	svc := stubMutatingService{
		ingestFn: func(context.Context, core.ChangeEvent) (core.IngestResult, error) {
			t.Fatalf("service must not be called for an invalid event")
			return core.IngestResult{}, nil
		},
	}
	err := NewIngestChangeEventCommand(svc).Execute(context.Background(), IngestChangeEventMessage{
		Event: core.ChangeEvent{FeatureID: "F1", Kind: "renamed"},
	})
	if err == nil {
		t.Fatalf("expected unknown change kind to be rejected")
	}
}

func TestWebhookCommands_DelegateToService(t *testing.T) {
	t.Run("upsert", func(t *testing.T) {
		svc := stubMutatingService{
			upsertFn: func(_ context.Context, in core.UpsertWebhookInput) (core.Webhook, error) {
				if in.Principal != "alice" || in.Webhook.URL != "https://hooks.example/a" {
					t.Fatalf("unexpected upsert input: %#v", in)
				}
				hook := in.Webhook
				hook.ID = "wh-1"
				return hook, nil
			},
		}
		collector := gocmd.NewResult[core.Webhook]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewUpsertWebhookCommand(svc).Execute(ctx, UpsertWebhookMessage{Input: core.UpsertWebhookInput{
			Principal: "alice",
			Webhook:   core.Webhook{URL: "https://hooks.example/a", Features: []string{"F1"}, Enabled: true},
		}})
		if err != nil {
			t.Fatalf("execute upsert: %v", err)
		}
		stored, ok := collector.Load()
		if !ok || stored.ID != "wh-1" {
			t.Fatalf("expected stored webhook, got %#v", stored)
		}
	})

	t.Run("delete propagates permission errors", func(t *testing.T) {
		denied := core.PermissionDeniedError("bob", core.WebhookActionDelete, "wh-1")
		svc := stubMutatingService{
			deleteFn: func(_ context.Context, in core.DeleteWebhookInput) error {
				if in.WebhookID != "wh-1" || in.Principal != "bob" {
					t.Fatalf("unexpected delete input: %#v", in)
				}
				return denied
			},
		}
		err := NewDeleteWebhookCommand(svc).Execute(context.Background(), DeleteWebhookMessage{
			Input: core.DeleteWebhookInput{Principal: "bob", WebhookID: "wh-1"},
		})
		if !core.HasTextCode(err, core.ServiceErrorPermissionDenied) {
			t.Fatalf("expected permission denied, got %v", err)
		}
	})

	t.Run("delete requires id", func(t *testing.T) {
		if err := NewDeleteWebhookCommand(stubMutatingService{}).Execute(context.Background(), DeleteWebhookMessage{}); err == nil {
			t.Fatalf("expected missing webhook id to fail")
		}
	})
}

func TestRequeueDeliveryCommand_StoresRequeuedRow(t *testing.T) {
	svc := stubMutatingService{
		requeueFn: func(_ context.Context, id string) (core.DeliveryAttempt, error) {
			return core.DeliveryAttempt{ID: id, Status: core.DeliveryStatusPending}, nil
		},
	}
	collector := gocmd.NewResult[core.DeliveryAttempt]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewRequeueDeliveryCommand(svc).Execute(ctx, RequeueDeliveryMessage{DeliveryID: "d-1"}); err != nil {
		t.Fatalf("execute requeue: %v", err)
	}
	stored, ok := collector.Load()
	if !ok || stored.ID != "d-1" || stored.Status != core.DeliveryStatusPending {
		t.Fatalf("unexpected requeue result: %#v", stored)
	}
}

func TestDispatchPendingCommand_StoresStats(t *testing.T) {
	dispatcher := &stubDispatcher{stats: core.DispatchStats{Claimed: 3, Succeeded: 2, Retried: 1}}
	collector := gocmd.NewResult[core.DispatchStats]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewDispatchPendingCommand(dispatcher).Execute(ctx, DispatchPendingMessage{}); err != nil {
		t.Fatalf("execute dispatch: %v", err)
	}
	stats, ok := collector.Load()
	if !ok || stats.Claimed != 3 {
		t.Fatalf("unexpected dispatch stats: %#v", stats)
	}

	dispatcher.err = errors.New("ledger unavailable")
	if err := NewDispatchPendingCommand(dispatcher).Execute(context.Background(), DispatchPendingMessage{}); err == nil {
		t.Fatalf("expected dispatcher error to propagate")
	}
}
