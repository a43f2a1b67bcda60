package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-featurehooks/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder_CountsKnownMetrics(t *testing.T) {
	recorder, err := NewPrometheusRecorder()
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	recorder.IncCounter(ctx, core.MetricIngestTotal, 1, map[string]string{"status": "pending"})
	recorder.IncCounter(ctx, core.MetricIngestTotal, 2, map[string]string{"status": "pending"})
	recorder.IncCounter(ctx, core.MetricIngestTotal, 1, map[string]string{"status": "failed_terminal"})
	recorder.IncCounter(ctx, core.MetricDeliveriesTotal, 1, map[string]string{"outcome": "success", "webhook_id": "wh-1", "extra": "dropped"})

	ingest := recorder.counters[core.MetricIngestTotal].vec
	if got := testutil.ToFloat64(ingest.WithLabelValues("pending")); got != 3 {
		t.Fatalf("expected 3 pending ingest rows, got %v", got)
	}
	if got := testutil.ToFloat64(ingest.WithLabelValues("failed_terminal")); got != 1 {
		t.Fatalf("expected 1 failed ingest row, got %v", got)
	}
	deliveries := recorder.counters[core.MetricDeliveriesTotal].vec
	if got := testutil.ToFloat64(deliveries.WithLabelValues("success", "wh-1")); got != 1 {
		t.Fatalf("expected 1 successful delivery, got %v", got)
	}
}

func TestPrometheusRecorder_IgnoresUnknownAndNonPositive(t *testing.T) {
	recorder, err := NewPrometheusRecorder()
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	recorder.IncCounter(ctx, "unknown.metric", 1, nil)
	recorder.ObserveHistogram(ctx, "unknown.metric", 1, nil)
	recorder.IncCounter(ctx, core.MetricClaimedTotal, 0, map[string]string{"instance_id": "a"})

	if got := testutil.CollectAndCount(recorder.counters[core.MetricClaimedTotal].vec); got != 0 {
		t.Fatalf("expected no claimed series, got %d", got)
	}
}

func TestPrometheusRecorder_HandlerExposesHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := NewPrometheusRecorder(WithRegistry(registry), WithDurationBuckets(100, 1000))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	recorder.ObserveHistogram(context.Background(), core.MetricDeliveryDuration, 42, map[string]string{"outcome": "success", "webhook_id": "wh-1"})

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `featurehooks_delivery_duration_ms_bucket{outcome="success",webhook_id="wh-1",le="100"} 1`) {
		t.Fatalf("expected histogram bucket in exposition, got:\n%s", body)
	}

	if _, err := NewPrometheusRecorder(WithRegistry(registry)); err == nil {
		t.Fatalf("expected duplicate registration on the same registry to fail")
	}
}
