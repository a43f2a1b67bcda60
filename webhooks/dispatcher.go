package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

// RateLimiter paces outbound requests per receiver.
type RateLimiter interface {
	Wait(ctx context.Context, target string) error
	// Observe returns the receiver's Retry-After hint, zero when absent.
	Observe(target string, statusCode int, headers map[string]string) time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDispatcherMetrics(recorder core.MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

func WithRateLimiter(limiter RateLimiter) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = limiter
	}
}

func WithSigner(signer HMACSigner) DispatcherOption {
	return func(d *Dispatcher) {
		d.signer = signer
	}
}

func WithBackoffPolicy(policy core.BackoffPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = policy
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher claims due rows from the delivery ledger and sends them. Any
// number of dispatchers may share one ledger; the claim lease keeps a row on
// a single instance at a time.
type Dispatcher struct {
	ledger     core.DeliveryLedger
	webhooks   core.WebhookSource
	sender     core.DeliverySender
	signer     HMACSigner
	classifier Classifier
	backoff    core.BackoffPolicy
	limiter    RateLimiter
	config     core.DispatcherConfig
	instanceID string
	logger     core.Logger
	metrics    core.MetricsRecorder
	now        func() time.Time
	wake       chan struct{}
}

func NewDispatcher(
	ledger core.DeliveryLedger,
	webhooks core.WebhookSource,
	sender core.DeliverySender,
	cfg core.Config,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if ledger == nil {
		return nil, fmt.Errorf("webhooks: delivery ledger is required")
	}
	if webhooks == nil {
		return nil, fmt.Errorf("webhooks: webhook source is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhooks: delivery sender is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	_, logger := glog.Resolve("featurehooks.dispatcher", nil, nil)
	d := &Dispatcher{
		ledger:     ledger,
		webhooks:   webhooks,
		sender:     sender,
		signer:     DefaultSigner(),
		classifier: NewClassifier(cfg.Dispatcher.RetryableStatuses),
		backoff:    core.NewBackoffPolicy(cfg.Backoff),
		config:     cfg.Dispatcher,
		instanceID: cfg.Dispatcher.ResolvedInstanceID(),
		logger:     glog.Ensure(logger),
		metrics:    core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

func (d *Dispatcher) InstanceID() string {
	if d == nil {
		return ""
	}
	return d.instanceID
}

// Notify wakes Run without waiting for the next poll tick.
func (d *Dispatcher) Notify() {
	if d == nil {
		return
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run dispatches until ctx is done. A full batch is followed immediately by
// another claim so a backlog drains without waiting for the poll interval.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("webhooks: dispatcher is nil")
	}
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		stats, err := d.DispatchPending(ctx)
		if err != nil && ctx.Err() == nil {
			core.LogWithLevel(ctx, d.logger, "error", "featurehooks dispatch cycle failed", map[string]any{
				"instance_id": d.instanceID,
				"error":       err.Error(),
			})
		}
		if err == nil && stats.Claimed >= d.config.BatchSize {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DispatchPending runs one claim-and-send cycle.
func (d *Dispatcher) DispatchPending(ctx context.Context) (core.DispatchStats, error) {
	if d == nil || d.ledger == nil {
		return core.DispatchStats{}, fmt.Errorf("webhooks: dispatcher is not configured")
	}
	rows, err := d.ledger.ClaimBatch(ctx, core.ClaimRequest{
		InstanceID: d.instanceID,
		Limit:      d.config.BatchSize,
		Lease:      d.config.LeaseDuration,
		Now:        d.now(),
	})
	if err != nil {
		return core.DispatchStats{}, err
	}
	stats := core.DispatchStats{Claimed: len(rows)}
	if len(rows) == 0 {
		return stats, nil
	}
	d.metrics.IncCounter(ctx, core.MetricClaimedTotal, int64(len(rows)), map[string]string{"instance_id": d.instanceID})

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(max(1, d.config.Concurrency))
	for _, row := range rows {
		group.Go(func() error {
			outcome, err := d.processOne(ctx, row)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSucceeded:
				stats.Succeeded++
			case outcomeRetried:
				stats.Retried++
			case outcomeFailed:
				stats.Failed++
			default:
				stats.Skipped++
			}
			return err
		})
	}
	return stats, group.Wait()
}

type attemptOutcome int

const (
	outcomeSkipped attemptOutcome = iota
	outcomeSucceeded
	outcomeRetried
	outcomeFailed
)

func (d *Dispatcher) processOne(ctx context.Context, row core.DeliveryAttempt) (attemptOutcome, error) {
	hook, err := d.webhooks.Get(ctx, row.WebhookID)
	if err != nil && !core.IsNotFound(err) {
		// The lease expires and another cycle retries the lookup.
		return outcomeSkipped, err
	}
	if err != nil || !hook.Enabled {
		reason := "webhook was deleted"
		if err == nil {
			reason = "webhook is disabled"
		}
		return d.complete(ctx, row, core.DeliveryCompletion{
			Outcome:     core.DeliveryOutcomeTerminal,
			Error:       reason,
			FailureKind: core.FailureKindWebhookUnavailable,
		}, 0)
	}

	if d.limiter != nil {
		window, ok := d.sendWindow(row)
		if !ok {
			return d.leaseExhausted(ctx, row), nil
		}
		waitCtx := ctx
		if window > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, window)
			defer cancel()
		}
		if err := d.limiter.Wait(waitCtx, hook.URL); err != nil {
			core.LogWithLevel(ctx, d.logger, "debug", "featurehooks delivery deferred by rate limit", map[string]any{
				"delivery_id": row.ID,
				"webhook_id":  row.WebhookID,
				"error":       err.Error(),
			})
			return outcomeSkipped, nil
		}
	}

	if _, ok := d.sendWindow(row); !ok {
		return d.leaseExhausted(ctx, row), nil
	}

	attempt := row.Attempts + 1
	res, sendErr := d.sender.Send(ctx, core.OutboundRequest{
		Method:  http.MethodPost,
		URL:     hook.URL,
		Headers: d.requestHeaders(hook, row, attempt),
		Body:    row.Payload,
		Timeout: d.config.RequestTimeout,
	})
	verdict := d.classifier.Classify(res, sendErr)
	completion := core.DeliveryCompletion{
		Outcome:    verdict.Outcome,
		StatusCode: verdict.StatusCode,
	}
	if verdict.Err != nil {
		completion.Error = verdict.Err.Error()
	}

	if verdict.Outcome == core.DeliveryOutcomeRetryable {
		now := d.now()
		next, ok := d.backoff.NextAttemptTime(attempt, now)
		if !ok {
			completion.Outcome = core.DeliveryOutcomeTerminal
			completion.FailureKind = core.FailureKindDelivery
			completion.Error = fmt.Sprintf("retries exhausted after %d attempts: %s", attempt, completion.Error)
		} else {
			if d.limiter != nil {
				if hint := d.limiter.Observe(hook.URL, res.StatusCode, res.Headers); hint > 0 && now.Add(hint).After(next) {
					next = now.Add(min(hint, d.backoff.MaxDelay))
				}
			}
			completion.NextAttemptAt = next
		}
	}
	return d.complete(ctx, row, completion, res.Duration)
}

// sendWindow reports how long the row may still wait before a send started
// now could outlive its claim lease. A zero window with ok=true means the row
// carries no lease bound.
func (d *Dispatcher) sendWindow(row core.DeliveryAttempt) (time.Duration, bool) {
	if row.ClaimExpiresAt == nil {
		return 0, true
	}
	window := row.ClaimExpiresAt.Sub(d.now()) - d.config.RequestTimeout
	if window <= 0 {
		return 0, false
	}
	return window, true
}

// leaseExhausted leaves the row untouched so it becomes claimable again once
// the lease runs out.
func (d *Dispatcher) leaseExhausted(ctx context.Context, row core.DeliveryAttempt) attemptOutcome {
	core.LogWithLevel(ctx, d.logger, "warn", "featurehooks delivery skipped, claim lease too short to send", map[string]any{
		"delivery_id":      row.ID,
		"webhook_id":       row.WebhookID,
		"instance_id":      d.instanceID,
		"claim_expires_at": row.ClaimExpiresAt.Format(time.RFC3339Nano),
	})
	return outcomeSkipped
}

func (d *Dispatcher) complete(
	ctx context.Context,
	row core.DeliveryAttempt,
	completion core.DeliveryCompletion,
	duration time.Duration,
) (attemptOutcome, error) {
	completion.ID = row.ID
	completion.InstanceID = d.instanceID
	completion.Now = d.now()

	fields := map[string]any{
		"delivery_id": row.ID,
		"webhook_id":  row.WebhookID,
		"event_id":    row.EventID,
		"attempt":     row.Attempts + 1,
		"outcome":     string(completion.Outcome),
		"status_code": completion.StatusCode,
	}
	if err := d.ledger.Complete(ctx, completion); err != nil {
		if core.IsLedgerContention(err) {
			fields["instance_id"] = d.instanceID
			core.LogWithLevel(ctx, d.logger, "warn", "featurehooks delivery claim lost before completion", fields)
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}

	tags := map[string]string{"outcome": string(completion.Outcome), "webhook_id": row.WebhookID}
	d.metrics.IncCounter(ctx, core.MetricDeliveriesTotal, 1, tags)
	if duration > 0 {
		d.metrics.ObserveHistogram(ctx, core.MetricDeliveryDuration, float64(duration.Milliseconds()), tags)
	}

	switch completion.Outcome {
	case core.DeliveryOutcomeSuccess:
		core.LogWithLevel(ctx, d.logger, "info", "featurehooks delivery succeeded", fields)
		return outcomeSucceeded, nil
	case core.DeliveryOutcomeRetryable:
		fields["error"] = completion.Error
		fields["next_attempt_at"] = completion.NextAttemptAt.Format(time.RFC3339)
		core.LogWithLevel(ctx, d.logger, "warn", "featurehooks delivery scheduled for retry", fields)
		return outcomeRetried, nil
	default:
		fields["error"] = completion.Error
		fields["failure_kind"] = string(completion.FailureKind)
		core.LogWithLevel(ctx, d.logger, "error", "featurehooks delivery failed", fields)
		return outcomeFailed, nil
	}
}

func (d *Dispatcher) requestHeaders(hook core.Webhook, row core.DeliveryAttempt, attempt int) map[string]string {
	headers := map[string]string{}
	contentType := strings.TrimSpace(row.ContentType)
	if contentType == "" {
		contentType = core.ContentTypeJSON
	}
	headers["Content-Type"] = contentType
	for key, value := range hook.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		headers[key] = value
	}
	headers[HeaderDelivery] = row.ID
	headers[HeaderEvent] = row.EventID
	headers[HeaderAttempt] = strconv.Itoa(attempt)
	if signature := d.signer.Sign(hook.Secret, row.Payload); signature != "" {
		headers[d.signer.HeaderName()] = signature
	}
	return headers
}

var _ core.DispatchNotifier = (*Dispatcher)(nil)
