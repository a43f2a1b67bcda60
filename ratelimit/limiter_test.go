package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-featurehooks/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	err := ThrottledError{Host: "hooks.example.com", RetryAfter: 3 * time.Second}

	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ServiceErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry_after_ms metadata, got %#v", mapped.Metadata)
	}
}

func TestNewHostLimiter_DisabledWhenRateIsZero(t *testing.T) {
	limiter := NewHostLimiter(0, 5)
	if limiter != nil {
		t.Fatalf("expected nil limiter for zero rate")
	}
	if err := limiter.Wait(context.Background(), "https://hooks.example.com/x"); err != nil {
		t.Fatalf("expected nil limiter to allow, got %v", err)
	}
}

func TestHostLimiter_BurstThenDeadlineFailsFast(t *testing.T) {
	limiter := NewHostLimiter(0.01, 2)

	for i := 0; i < 2; i++ {
		if err := limiter.Wait(context.Background(), "https://hooks.example.com/a"); err != nil {
			t.Fatalf("burst request %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx, "https://hooks.example.com/b")
	if !IsThrottled(err) {
		t.Fatalf("expected throttled error once the bucket is empty, got %v", err)
	}

	if err := limiter.Wait(context.Background(), "https://other.example.com/a"); err != nil {
		t.Fatalf("expected other host to have its own bucket, got %v", err)
	}
}

func TestHostLimiter_ObserveRetryAfterHoldsHostBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewHostLimiter(100, 10)
	limiter.Now = func() time.Time { return now }

	delay := limiter.Observe("https://hooks.example.com/a", 429, map[string]string{"Retry-After": "30"})
	if delay != 30*time.Second {
		t.Fatalf("expected 30s retry hint, got %s", delay)
	}

	err := limiter.Wait(context.Background(), "https://HOOKS.example.com/other")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected remaining 30s, got %s", throttled.RetryAfter)
	}

	now = now.Add(31 * time.Second)
	if err := limiter.Wait(context.Background(), "https://hooks.example.com/a"); err != nil {
		t.Fatalf("expected host released after hint, got %v", err)
	}
}

func TestHostLimiter_ObserveIgnoresOtherStatuses(t *testing.T) {
	limiter := NewHostLimiter(100, 10)
	if delay := limiter.Observe("https://hooks.example.com", 500, map[string]string{"Retry-After": "30"}); delay != 0 {
		t.Fatalf("expected no hint for 500, got %s", delay)
	}
	if err := limiter.Wait(context.Background(), "https://hooks.example.com"); err != nil {
		t.Fatalf("expected host not throttled, got %v", err)
	}
}

func TestRetryAfter_ParsesSecondsAndHTTPDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if delay, ok := RetryAfter(map[string]string{"retry-after": "7"}, now); !ok || delay != 7*time.Second {
		t.Fatalf("expected 7s, got %s ok=%v", delay, ok)
	}
	date := now.Add(90 * time.Second).Format(time.RFC1123)
	if delay, ok := RetryAfter(map[string]string{"Retry-After": date}, now); !ok || delay != 90*time.Second {
		t.Fatalf("expected 90s, got %s ok=%v", delay, ok)
	}
	if _, ok := RetryAfter(map[string]string{"Retry-After": "soon"}, now); ok {
		t.Fatalf("expected unparseable hint to be ignored")
	}
	if _, ok := RetryAfter(nil, now); ok {
		t.Fatalf("expected missing header to be ignored")
	}
}
