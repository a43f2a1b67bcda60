package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-featurehooks/core"
)

type stubDeliveryReader struct {
	statsFn func(context.Context, string) (core.DeliveryStats, error)
	listFn  func(context.Context, core.DeliveryFilter) (core.DeliveryPage, error)
	getFn   func(context.Context, string) (core.DeliveryAttempt, error)
}

func (s stubDeliveryReader) DeliveryStats(ctx context.Context, webhookID string) (core.DeliveryStats, error) {
	return s.statsFn(ctx, webhookID)
}

func (s stubDeliveryReader) ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	return s.listFn(ctx, filter)
}

func (s stubDeliveryReader) GetDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	return s.getFn(ctx, id)
}

type stubWebhookReader struct {
	getFn  func(context.Context, string, string) (core.Webhook, error)
	listFn func(context.Context, string, string) ([]core.Webhook, error)
}

func (s stubWebhookReader) GetWebhook(ctx context.Context, principal string, id string) (core.Webhook, error) {
	return s.getFn(ctx, principal, id)
}

func (s stubWebhookReader) ListWebhooks(ctx context.Context, principal string, tenantID string) ([]core.Webhook, error) {
	return s.listFn(ctx, principal, tenantID)
}

func TestDeliveryStatsQuery_QueryDelegates(t *testing.T) {
	reader := stubDeliveryReader{
		statsFn: func(_ context.Context, webhookID string) (core.DeliveryStats, error) {
			if webhookID != "wh-1" {
				t.Fatalf("unexpected webhook id %q", webhookID)
			}
			return core.DeliveryStats{WebhookID: webhookID, Pending: 2, RenderFailures: 1}, nil
		},
	}
	stats, err := NewDeliveryStatsQuery(reader).Query(context.Background(), DeliveryStatsMessage{WebhookID: "wh-1"})
	if err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if stats.Pending != 2 || stats.RenderFailures != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestListDeliveriesQuery_PassesFilterAndValidates(t *testing.T) {
	reader := stubDeliveryReader{
		listFn: func(_ context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
			if filter.WebhookID != "wh-1" || filter.Limit != 20 || len(filter.Statuses) != 1 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return core.DeliveryPage{Items: []core.DeliveryAttempt{{ID: "d-1"}}, Total: 1}, nil
		},
	}
	qry := NewListDeliveriesQuery(reader)
	page, err := qry.Query(context.Background(), ListDeliveriesMessage{Filter: core.DeliveryFilter{
		WebhookID: "wh-1",
		Statuses:  []core.DeliveryStatus{core.DeliveryStatusFailedTerminal},
		Limit:     20,
	}})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "d-1" {
		t.Fatalf("unexpected page: %#v", page)
	}

	if _, err := qry.Query(context.Background(), ListDeliveriesMessage{Filter: core.DeliveryFilter{Offset: -1}}); err == nil {
		t.Fatalf("expected negative offset to be rejected")
	}
}

func TestGetDeliveryQuery_QueryDelegates(t *testing.T) {
	reader := stubDeliveryReader{
		getFn: func(_ context.Context, id string) (core.DeliveryAttempt, error) {
			return core.DeliveryAttempt{ID: id, Status: core.DeliveryStatusSucceeded}, nil
		},
	}
	row, err := NewGetDeliveryQuery(reader).Query(context.Background(), GetDeliveryMessage{DeliveryID: "d-9"})
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if row.ID != "d-9" || row.Status != core.DeliveryStatusSucceeded {
		t.Fatalf("unexpected delivery: %#v", row)
	}
}

func TestWebhookQueries_PassPrincipal(t *testing.T) {
	reader := stubWebhookReader{
		getFn: func(_ context.Context, principal string, id string) (core.Webhook, error) {
			if principal != "alice" {
				return core.Webhook{}, core.PermissionDeniedError(principal, core.WebhookActionView, id)
			}
			return core.Webhook{ID: id}, nil
		},
		listFn: func(_ context.Context, principal string, tenantID string) ([]core.Webhook, error) {
			if tenantID != "acme" {
				t.Fatalf("unexpected tenant %q", tenantID)
			}
			return []core.Webhook{{ID: "wh-1"}}, nil
		},
	}

	hook, err := NewGetWebhookQuery(reader).Query(context.Background(), GetWebhookMessage{Principal: "alice", WebhookID: "wh-1"})
	if err != nil || hook.ID != "wh-1" {
		t.Fatalf("get webhook: hook=%#v err=%v", hook, err)
	}
	_, err = NewGetWebhookQuery(reader).Query(context.Background(), GetWebhookMessage{Principal: "mallory", WebhookID: "wh-1"})
	if !core.HasTextCode(err, core.ServiceErrorPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	hooks, err := NewListWebhooksQuery(reader).Query(context.Background(), ListWebhooksMessage{Principal: "alice", TenantID: "acme"})
	if err != nil || len(hooks) != 1 {
		t.Fatalf("list webhooks: hooks=%#v err=%v", hooks, err)
	}
}
