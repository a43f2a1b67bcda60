package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

type countingDispatcher struct {
	calls int
	stats core.DispatchStats
	err   error
}

func (d *countingDispatcher) DispatchPending(context.Context) (core.DispatchStats, error) {
	d.calls++
	return d.stats, d.err
}

type recordingHook struct {
	stages []string
	last   worker.Event
}

func (h *recordingHook) OnStart(_ context.Context, e worker.Event) {
	h.stages = append(h.stages, "start")
	h.last = e
}

func (h *recordingHook) OnSuccess(_ context.Context, e worker.Event) {
	h.stages = append(h.stages, "success")
	h.last = e
}

func (h *recordingHook) OnFailure(_ context.Context, e worker.Event) {
	h.stages = append(h.stages, "failure")
	h.last = e
}

func (h *recordingHook) OnRetry(_ context.Context, e worker.Event) {
	h.stages = append(h.stages, "retry")
	h.last = e
}

func wakeupDelivery(eventID string, attempts int) *stubQueueDelivery {
	return &stubQueueDelivery{msg: DispatchWakeup{EventID: eventID}.ExecutionMessage(), attempts: attempts}
}

func TestDispatchWorker_RunsDispatchAndAcks(t *testing.T) {
	raw := wakeupDelivery("evt_1", 1)
	dispatcher := &countingDispatcher{stats: core.DispatchStats{Claimed: 2, Succeeded: 2}}
	hook := &recordingHook{}
	w, err := NewDispatchWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}, dispatcher,
		WithWorkerHooks(hook),
	)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}

	stats, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if dispatcher.calls != 1 || stats.Succeeded != 2 {
		t.Fatalf("expected one dispatch pass, calls=%d stats=%+v", dispatcher.calls, stats)
	}
	if !raw.acked || raw.nacked {
		t.Fatalf("expected job to be acked only")
	}
	if len(hook.stages) != 2 || hook.stages[0] != "start" || hook.stages[1] != "success" {
		t.Fatalf("unexpected hook stages: %v", hook.stages)
	}
	if hook.last.Message == nil || hook.last.Message.JobID != JobIDDispatchPending {
		t.Fatalf("expected hook event to carry the wake-up message")
	}
}

func TestDispatchWorker_RetriesFailedPassWithBackoff(t *testing.T) {
	raw := wakeupDelivery("evt_2", 1)
	hook := &recordingHook{}
	w, err := NewDispatchWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}},
		&countingDispatcher{err: errors.New("ledger unavailable")},
		WithWorkerHooks(hook),
		WithRetryPolicy(worker.DefaultRetryPolicy{
			MaxAttempts: 3,
			Backoff:     worker.BackoffConfig{Strategy: worker.BackoffFixed, Interval: 2 * time.Second},
		}),
	)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}

	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected dispatch error")
	}
	if raw.acked {
		t.Fatalf("expected failed job not to be acked")
	}
	if raw.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry disposition, got %q", raw.nackOpts.Disposition)
	}
	if raw.nackOpts.Delay != 2*time.Second {
		t.Fatalf("expected fixed backoff delay, got %s", raw.nackOpts.Delay)
	}
	if hook.stages[len(hook.stages)-1] != "retry" || hook.last.Err == nil || hook.last.Delay != 2*time.Second {
		t.Fatalf("expected retry hook with error and delay, got %v", hook.stages)
	}
}

func TestDispatchWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	raw := wakeupDelivery("evt_3", 3)
	hook := &recordingHook{}
	w, err := NewDispatchWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}},
		&countingDispatcher{err: errors.New("ledger unavailable")},
		WithWorkerHooks(hook),
		WithRetryPolicy(worker.DefaultRetryPolicy{MaxAttempts: 3}),
	)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}

	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected dispatch error")
	}
	if raw.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter disposition, got %q", raw.nackOpts.Disposition)
	}
	if hook.stages[len(hook.stages)-1] != "failure" || hook.last.Attempt != 3 {
		t.Fatalf("expected failure hook on attempt 3, got %v attempt=%d", hook.stages, hook.last.Attempt)
	}
}

func TestDispatchWorker_AcksForeignJobsWithoutDispatch(t *testing.T) {
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	dispatcher := &countingDispatcher{}
	w, err := NewDispatchWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}, dispatcher)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}
	if _, err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process next: %v", err)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("expected foreign job to skip dispatch")
	}
	if !raw.acked {
		t.Fatalf("expected foreign job to be acked")
	}
}

func TestDispatchWorker_EmptyQueueIsIdle(t *testing.T) {
	dispatcher := &countingDispatcher{}
	w, err := NewDispatchWorker(&stubQueueDequeuer{}, dispatcher)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}
	stats, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if dispatcher.calls != 0 || stats != (core.DispatchStats{}) {
		t.Fatalf("expected empty queue to skip dispatch, stats=%+v", stats)
	}
}

func TestDispatchWorker_RunStopsOnCancel(t *testing.T) {
	dispatcher := &countingDispatcher{}
	w, err := NewDispatchWorker(
		&stubQueueDequeuer{deliveries: []queue.Delivery{wakeupDelivery("evt_4", 1)}},
		dispatcher,
		WithIdleDelay(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new dispatch worker: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected the queued wake-up to be processed once, got %d", dispatcher.calls)
	}
}

func TestNewDispatchWorker_RequiresDependencies(t *testing.T) {
	if _, err := NewDispatchWorker(nil, &countingDispatcher{}); err == nil {
		t.Fatalf("expected nil dequeuer to fail")
	}
	if _, err := NewDispatchWorker(&stubQueueDequeuer{}, nil); err == nil {
		t.Fatalf("expected nil dispatcher to fail")
	}
}

func TestLoggingHook_ReportsWakeupEvent(t *testing.T) {
	logger := &capturingLogger{}
	hook := LoggingHook{Logger: logger}
	hook.OnRetry(context.Background(), worker.Event{
		Message: DispatchWakeup{EventID: "evt_5"}.ExecutionMessage(),
		Attempt: 2,
		Delay:   time.Second,
		Err:     errors.New("ledger unavailable"),
	})
	if len(logger.warns) != 1 {
		t.Fatalf("expected one warn entry, got %d", len(logger.warns))
	}
}
