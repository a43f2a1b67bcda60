package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryDeliveryLedger_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	in := InsertDeliveryInput{WebhookID: "h1", EventID: "e1", Payload: []byte(`{"a":1}`), ContentType: ContentTypeJSON}

	first, created, err := ledger.Insert(ctx, in)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	in.Payload = []byte(`{"a":2}`)
	second, created, err := ledger.Insert(ctx, in)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate insert to report created=false")
	}
	if second.ID != first.ID || string(second.Payload) != `{"a":1}` {
		t.Fatalf("expected the original row back, got %#v", second)
	}
	if first.ID != DeliveryID("h1", "e1") {
		t.Fatalf("expected deterministic delivery id")
	}
}

func TestMemoryDeliveryLedger_ConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		if _, _, err := ledger.Insert(ctx, InsertDeliveryInput{
			WebhookID: "h1",
			EventID:   fmt.Sprintf("e%03d", i),
			Now:       now,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var mu sync.Mutex
	owners := map[string]string{}
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		instance := fmt.Sprintf("i%d", worker)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rows, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: instance, Limit: 7, Lease: time.Minute, Now: now})
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(rows) == 0 {
					return
				}
				mu.Lock()
				for _, row := range rows {
					if previous, ok := owners[row.ID]; ok {
						t.Errorf("row %s claimed by %s and %s", row.ID, previous, instance)
					}
					owners[row.ID] = instance
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(owners) != 100 {
		t.Fatalf("expected 100 claimed rows, got %d", len(owners))
	}
}

func TestMemoryDeliveryLedger_ClaimOrderAndDueTime(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		if _, _, err := ledger.Insert(ctx, InsertDeliveryInput{
			WebhookID: "h1",
			EventID:   fmt.Sprintf("e%d", i),
			Now:       base.Add(offset),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "i1", Limit: 10, Lease: time.Minute, Now: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(rows) != 2 || rows[0].EventID != "e1" || rows[1].EventID != "e2" {
		t.Fatalf("expected e1 then e2 due, got %#v", rows)
	}
}

func TestMemoryDeliveryLedger_ExpiredLeaseReclaimedOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row, _, err := ledger.Insert(ctx, InsertDeliveryInput{WebhookID: "h1", EventID: "e1", Now: now})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	claimed, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "crashed", Limit: 1, Lease: 30 * time.Second, Now: now})
	if err != nil || len(claimed) != 1 {
		t.Fatalf("first claim: %v %#v", err, claimed)
	}
	if again, _ := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "other", Limit: 1, Lease: 30 * time.Second, Now: now.Add(10 * time.Second)}); len(again) != 0 {
		t.Fatalf("expected live lease to block reclaim")
	}

	after := now.Add(31 * time.Second)
	reclaimed, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "survivor", Limit: 1, Lease: 30 * time.Second, Now: after})
	if err != nil || len(reclaimed) != 1 || reclaimed[0].ClaimOwner != "survivor" {
		t.Fatalf("expected survivor to reclaim expired row, got %#v err=%v", reclaimed, err)
	}
	if third, _ := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "third", Limit: 1, Lease: 30 * time.Second, Now: after}); len(third) != 0 {
		t.Fatalf("expected reclaim to happen exactly once")
	}

	err = ledger.Complete(ctx, DeliveryCompletion{ID: row.ID, InstanceID: "crashed", Outcome: DeliveryOutcomeSuccess, Now: after})
	if !IsLedgerContention(err) {
		t.Fatalf("expected contention for stale owner, got %v", err)
	}
	if err := ledger.Complete(ctx, DeliveryCompletion{ID: row.ID, InstanceID: "survivor", Outcome: DeliveryOutcomeSuccess, StatusCode: 200, Now: after}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, _ := ledger.Get(ctx, row.ID)
	if stored.Status != DeliveryStatusSucceeded || stored.Attempts != 1 || stored.ClaimOwner != "" {
		t.Fatalf("unexpected completed row %#v", stored)
	}
}

func TestMemoryDeliveryLedger_RetryAndTerminalTransitions(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row, _, _ := ledger.Insert(ctx, InsertDeliveryInput{WebhookID: "h1", EventID: "e1", Now: now})

	if _, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "i1", Limit: 1, Lease: time.Minute, Now: now}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	next := now.Add(time.Second)
	if err := ledger.Complete(ctx, DeliveryCompletion{
		ID: row.ID, InstanceID: "i1", Outcome: DeliveryOutcomeRetryable, NextAttemptAt: next, StatusCode: 503, Error: "503", Now: now,
	}); err != nil {
		t.Fatalf("complete retryable: %v", err)
	}
	stored, _ := ledger.Get(ctx, row.ID)
	if stored.Status != DeliveryStatusPending || stored.Attempts != 1 || !stored.NextAttemptAt.Equal(next) {
		t.Fatalf("unexpected retry row %#v", stored)
	}
	if rows, _ := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "i1", Limit: 1, Lease: time.Minute, Now: now}); len(rows) != 0 {
		t.Fatalf("expected row to wait for its next attempt time")
	}

	if _, err := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "i1", Limit: 1, Lease: time.Minute, Now: next}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Complete(ctx, DeliveryCompletion{
		ID: row.ID, InstanceID: "i1", Outcome: DeliveryOutcomeTerminal, StatusCode: 404, Error: "404", Now: next,
	}); err != nil {
		t.Fatalf("complete terminal: %v", err)
	}
	stored, _ = ledger.Get(ctx, row.ID)
	if stored.Status != DeliveryStatusFailedTerminal || stored.Attempts != 2 || stored.FailureKind != FailureKindDelivery {
		t.Fatalf("unexpected terminal row %#v", stored)
	}
	if rows, _ := ledger.ClaimBatch(ctx, ClaimRequest{InstanceID: "i1", Limit: 1, Lease: time.Minute, Now: next.Add(time.Hour)}); len(rows) != 0 {
		t.Fatalf("expected terminal row to never be claimed")
	}

	stats, err := ledger.Stats(ctx, "h1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.FailedTerminal != 1 || stats.LastError != "404" {
		t.Fatalf("unexpected stats %#v", stats)
	}

	requeued, err := ledger.Requeue(ctx, row.ID, next.Add(time.Minute))
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued.Status != DeliveryStatusPending || requeued.Attempts != 0 {
		t.Fatalf("unexpected requeued row %#v", requeued)
	}
}

func TestMemoryDeliveryLedger_ListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, _, _ = ledger.Insert(ctx, InsertDeliveryInput{WebhookID: "h1", EventID: fmt.Sprintf("e%d", i), Now: base.Add(time.Duration(i) * time.Second)})
	}
	_, _, _ = ledger.Insert(ctx, InsertDeliveryInput{WebhookID: "h2", EventID: "e0", Now: base})

	page, err := ledger.List(ctx, DeliveryFilter{WebhookID: "h1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Items[0].EventID != "e3" {
		t.Fatalf("unexpected page %#v", page)
	}
}
