package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// PendingDispatcher is the dispatcher surface a wake-up job drives.
type PendingDispatcher interface {
	DispatchPending(ctx context.Context) (core.DispatchStats, error)
}

// DefaultRetryPolicy retries a failed dispatch pass a few times before the
// wake-up is dead-lettered. Pending rows stay in the ledger either way.
func DefaultRetryPolicy() worker.RetryPolicy {
	return worker.DefaultRetryPolicy{
		MaxAttempts: 5,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    time.Second,
			MaxInterval: 30 * time.Second,
		},
	}
}

// DispatchWorker consumes dispatch wake-ups from a go-job queue and runs one
// dispatch pass per wake-up. Jobs with other ids are acked and ignored.
type DispatchWorker struct {
	dequeuer   queue.Dequeuer
	dispatcher PendingDispatcher
	hooks      []worker.Hook
	retry      worker.RetryPolicy
	logger     core.Logger
	idleDelay  time.Duration
	now        func() time.Time
}

type DispatchWorkerOption func(*DispatchWorker)

func WithWorkerHooks(hooks ...worker.Hook) DispatchWorkerOption {
	return func(w *DispatchWorker) {
		for _, hook := range hooks {
			if hook != nil {
				w.hooks = append(w.hooks, hook)
			}
		}
	}
}

func WithWorkerLogger(logger core.Logger) DispatchWorkerOption {
	return func(w *DispatchWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetryPolicy decides the nack disposition after a failed pass.
func WithRetryPolicy(policy worker.RetryPolicy) DispatchWorkerOption {
	return func(w *DispatchWorker) {
		if policy != nil {
			w.retry = policy
		}
	}
}

// WithIdleDelay sets the pause after an empty or failed dequeue.
func WithIdleDelay(delay time.Duration) DispatchWorkerOption {
	return func(w *DispatchWorker) {
		if delay > 0 {
			w.idleDelay = delay
		}
	}
}

func NewDispatchWorker(dequeuer queue.Dequeuer, dispatcher PendingDispatcher, opts ...DispatchWorkerOption) (*DispatchWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("gojob: dispatcher is required")
	}
	w := &DispatchWorker{
		dequeuer:   dequeuer,
		dispatcher: dispatcher,
		retry:      DefaultRetryPolicy(),
		logger:     glog.Nop(),
		idleDelay:  time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes wake-ups until ctx is cancelled.
func (w *DispatchWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, handled, err := w.processNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			core.LogWithLevel(ctx, w.logger, "warn", "dispatch wake-up job failed", map[string]any{
				"error": err.Error(),
			})
		}
		if err == nil && handled {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.idleDelay):
		}
	}
}

// ProcessNext dequeues one job and handles it. The returned stats are zero
// when the queue is empty or the job is not a dispatch wake-up.
func (w *DispatchWorker) ProcessNext(ctx context.Context) (core.DispatchStats, error) {
	stats, _, err := w.processNext(ctx)
	return stats, err
}

func (w *DispatchWorker) processNext(ctx context.Context) (core.DispatchStats, bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return core.DispatchStats{}, false, err
	}
	if delivery == nil {
		return core.DispatchStats{}, false, nil
	}
	msg := delivery.Message()
	wakeup, ok := ParseDispatchWakeup(msg)
	if !ok {
		return core.DispatchStats{}, true, delivery.Ack(ctx)
	}

	event := worker.Event{
		Delivery:  delivery,
		Message:   msg,
		Attempt:   deliveryAttempts(delivery),
		StartedAt: w.now().UTC(),
	}
	w.emitStart(ctx, event)

	stats, dispatchErr := w.dispatcher.DispatchPending(ctx)
	event.Duration = w.now().UTC().Sub(event.StartedAt)
	if dispatchErr != nil {
		event.Err = dispatchErr
		nack := w.retry.Decide(event.Attempt, dispatchErr)
		event.Delay = nack.Delay
		if nack.Disposition == queue.NackDispositionRetry {
			w.emitRetry(ctx, event)
		} else {
			w.emitFailure(ctx, event)
		}
		core.LogWithLevel(ctx, w.logger, "warn", "dispatch pass for wake-up failed", map[string]any{
			"event_id":    wakeup.EventID,
			"attempt":     event.Attempt,
			"disposition": string(nack.Disposition),
		})
		nackErr := delivery.Nack(ctx, nack)
		return stats, true, errors.Join(dispatchErr, nackErr)
	}
	if err := delivery.Ack(ctx); err != nil {
		event.Err = err
		w.emitFailure(ctx, event)
		return stats, true, err
	}
	w.emitSuccess(ctx, event)
	return stats, true, nil
}

func (w *DispatchWorker) emitStart(ctx context.Context, event worker.Event) {
	for _, hook := range w.hooks {
		hook.OnStart(ctx, event)
	}
}

func (w *DispatchWorker) emitSuccess(ctx context.Context, event worker.Event) {
	for _, hook := range w.hooks {
		hook.OnSuccess(ctx, event)
	}
}

func (w *DispatchWorker) emitFailure(ctx context.Context, event worker.Event) {
	for _, hook := range w.hooks {
		hook.OnFailure(ctx, event)
	}
}

func (w *DispatchWorker) emitRetry(ctx context.Context, event worker.Event) {
	for _, hook := range w.hooks {
		hook.OnRetry(ctx, event)
	}
}

// LoggingHook reports worker lifecycle events through a core logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "dispatch job started", event)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "dispatch job succeeded", event)
}

func (h LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "dispatch job failed", event)
}

func (h LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "dispatch job retrying", event)
}

func (h LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		if wakeup, ok := ParseDispatchWakeup(event.Message); ok && wakeup.EventID != "" {
			fields["event_id"] = wakeup.EventID
		}
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	core.LogWithLevel(ctx, h.Logger, level, message, fields)
}

var _ worker.Hook = LoggingHook{}
