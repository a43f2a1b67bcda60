package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// WebhookSource is the read side the pipeline needs from hook registrations.
type WebhookSource interface {
	ListEnabled(ctx context.Context, tenantID string) ([]Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
}

type WebhookStore interface {
	WebhookSource
	Upsert(ctx context.Context, hook Webhook) (Webhook, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, tenantID string) ([]Webhook, error)
}

// DeliveryLedger is the durable record of every (webhook, event) delivery.
// It is the only state shared between dispatcher instances.
type DeliveryLedger interface {
	// Insert is idempotent per (webhook id, event id). created is false when
	// the row already existed; the existing row is returned.
	Insert(ctx context.Context, in InsertDeliveryInput) (DeliveryAttempt, bool, error)
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]DeliveryAttempt, error)
	// Complete returns a LedgerContentionError when the caller no longer owns
	// the claim.
	Complete(ctx context.Context, in DeliveryCompletion) error
	Get(ctx context.Context, id string) (DeliveryAttempt, error)
	List(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
	Stats(ctx context.Context, webhookID string) (DeliveryStats, error)
	Requeue(ctx context.Context, id string, now time.Time) (DeliveryAttempt, error)
}

// SecretProvider seals webhook signing secrets at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ActivationEvaluator recomputes a feature activation for a specific context
// or user. Evaluation itself belongs to the feature engine.
type ActivationEvaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (Activation, error)
}

type EvaluationRequest struct {
	TenantID  string
	ProjectID string
	FeatureID string
	Context   string
	User      string
}

// TemplateEngine renders a custom body template against a fixed variable set.
// Syntax errors and references to unknown variables must fail.
type TemplateEngine interface {
	Render(template string, vars map[string]any) ([]byte, error)
}

// Ingestor is the entry point change-event sources call.
type Ingestor interface {
	HandleChangeEvent(ctx context.Context, event ChangeEvent) (IngestResult, error)
}

// DispatchNotifier wakes a dispatcher after new rows were inserted.
type DispatchNotifier interface {
	Notify()
}

// JobExecutionMessage is a queue-neutral job request. Ingest only emits
// JobIDDispatchPending wake-ups keyed by event id.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type OutboundRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

type OutboundResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// DeliverySender performs one outbound HTTP call. A returned error means no
// status code was obtained (connection failure or timeout).
type DeliverySender interface {
	Send(ctx context.Context, req OutboundRequest) (OutboundResponse, error)
}
