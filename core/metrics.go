package core

import "context"

const (
	MetricIngestTotal      = "featurehooks.ingest.total"
	MetricDeliveriesTotal  = "featurehooks.deliveries.total"
	MetricDeliveryDuration = "featurehooks.delivery.duration_ms"
	MetricClaimedTotal     = "featurehooks.claimed.total"

	// OperationMetricPrefix namespaces the per-operation counters and
	// histograms recorded around service calls.
	OperationMetricPrefix = "featurehooks.op."
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
