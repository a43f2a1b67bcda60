package gojob

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const JobIDDispatchPending = core.JobIDDispatchPending

const paramEventID = "event_id"

// DispatchWakeup asks a dispatch worker to run one pass over the ledger after
// event EventID inserted new attempts. Wake-ups carry no delivery state; a
// lost or duplicated wake-up only delays or repeats a pass.
type DispatchWakeup struct {
	EventID string
}

// IdempotencyKey collapses repeated wake-ups for the same event.
func (w DispatchWakeup) IdempotencyKey() string {
	return JobIDDispatchPending + ":" + w.EventID
}

// ExecutionMessage encodes the wake-up as a go-job message.
func (w DispatchWakeup) ExecutionMessage() *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDDispatchPending,
		Parameters:     map[string]any{paramEventID: w.EventID},
		IdempotencyKey: w.IdempotencyKey(),
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

// ParseDispatchWakeup decodes msg. ok is false when msg is another job.
func ParseDispatchWakeup(msg *job.ExecutionMessage) (DispatchWakeup, bool) {
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDDispatchPending {
		return DispatchWakeup{}, false
	}
	return DispatchWakeup{EventID: eventIDParam(msg.Parameters)}, true
}

func wakeupFromCore(msg *core.JobExecutionMessage) (DispatchWakeup, bool) {
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDDispatchPending {
		return DispatchWakeup{}, false
	}
	return DispatchWakeup{EventID: eventIDParam(msg.Parameters)}, true
}

func eventIDParam(params map[string]any) string {
	switch value := params[paramEventID].(type) {
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

// EnqueuerAdapter publishes ingest wake-ups onto a go-job queue. It only
// accepts dispatch wake-ups; the ledger is the source of truth for delivery.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
	Logger   core.Logger
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer, Logger: glog.Nop()}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	wakeup, ok := wakeupFromCore(msg)
	if !ok {
		return fmt.Errorf("gojob: unsupported job message")
	}
	if wakeup.EventID == "" {
		return fmt.Errorf("gojob: dispatch wake-up requires an event id")
	}

	out := wakeup.ExecutionMessage()
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		out.IdempotencyKey = key
	}
	if policy := strings.TrimSpace(msg.DedupPolicy); policy != "" {
		out.DedupPolicy = job.DeduplicationPolicy(policy)
	}

	receipt, err := a.enqueuer.Enqueue(ctx, out)
	if err != nil {
		return fmt.Errorf("gojob: enqueue dispatch wake-up: %w", err)
	}
	core.LogWithLevel(ctx, a.Logger, "debug", "dispatch wake-up enqueued", map[string]any{
		"event_id":    wakeup.EventID,
		"dispatch_id": receipt.DispatchID,
	})
	return nil
}

type attemptsReader interface {
	Attempts() int
}

// deliveryAttempts reads the queue's attempt counter when the adapter
// exposes one, as the redis and postgres adapters do.
func deliveryAttempts(delivery queue.Delivery) int {
	if reader, ok := delivery.(attemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			return attempts
		}
	}
	return 1
}

var _ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
