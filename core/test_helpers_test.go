package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type stubEvaluator struct {
	mu       sync.Mutex
	requests []EvaluationRequest
	result   Activation
	err      error
}

func (e *stubEvaluator) Evaluate(_ context.Context, req EvaluationRequest) (Activation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.err != nil {
		return Activation{}, e.err
	}
	return e.result, nil
}

// replaceEngine substitutes {{name}} tokens and rejects unknown names.
type replaceEngine struct{}

func (replaceEngine) Render(template string, vars map[string]any) ([]byte, error) {
	out := template
	for {
		start := strings.Index(out, "{{")
		if start < 0 {
			return []byte(out), nil
		}
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated tag")
		}
		name := strings.TrimSpace(out[start+2 : start+end])
		value, ok := vars[name]
		if !ok {
			return nil, RenderError(nil, "", "undefined variable "+name)
		}
		out = out[:start] + fmt.Sprint(value) + out[start+end+2:]
	}
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	return e.err
}

func testHook(id string, features []string, projects []string) Webhook {
	return Webhook{
		ID:       id,
		Name:     "hook " + id,
		URL:      "https://receiver.example/" + id,
		Features: features,
		Projects: projects,
		Enabled:  true,
	}
}

func enablingEvent(featureID string, projectID string, enabled bool) ChangeEvent {
	return ChangeEvent{
		ID:          "evt_" + featureID,
		FeatureID:   featureID,
		FeatureName: "name-" + featureID,
		ProjectID:   projectID,
		Kind:        ChangeKindEnablingChanged,
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Activation:  &Activation{Enabled: enabled, Active: enabled},
	}
}
