package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featurehooks/core"
	"golang.org/x/time/rate"
)

const defaultMaxHosts = 4096

type ThrottledError struct {
	Host       string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ratelimit: host %q throttled for %s", strings.TrimSpace(e.Host), e.RetryAfter)
	}
	return fmt.Sprintf("ratelimit: host %q throttled", strings.TrimSpace(e.Host))
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"host": strings.TrimSpace(e.Host)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorRateLimited).
		WithMetadata(metadata)
}

func IsThrottled(err error) bool {
	var throttled ThrottledError
	return errors.As(err, &throttled)
}

// HostLimiter paces outbound deliveries per receiver host with a token
// bucket, and holds a host back after it answered with Retry-After.
type HostLimiter struct {
	Limit    rate.Limit
	Burst    int
	MaxHosts int
	Now      func() time.Time

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	throttled map[string]time.Time
}

// NewHostLimiter returns nil when perSecond is not positive, which disables
// pacing.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		Limit:     rate.Limit(perSecond),
		Burst:     burst,
		MaxHosts:  defaultMaxHosts,
		Now:       func() time.Time { return time.Now().UTC() },
		limiters:  map[string]*rate.Limiter{},
		throttled: map[string]time.Time{},
	}
}

// Wait blocks until target's host may receive another request. It fails fast
// with ThrottledError when the host asked us to back off, or when the wait
// would outlive ctx.
func (l *HostLimiter) Wait(ctx context.Context, target string) error {
	if l == nil {
		return nil
	}
	host := hostKey(target)
	if host == "" {
		return nil
	}
	now := l.now()

	l.mu.Lock()
	if until, ok := l.throttled[host]; ok {
		if now.Before(until) {
			l.mu.Unlock()
			return ThrottledError{Host: host, RetryAfter: until.Sub(now)}
		}
		delete(l.throttled, host)
	}
	limiter := l.limiterLocked(host)
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ThrottledError{Host: host}
	}
	return nil
}

// Observe records a receiver's answer. 429 and 503 responses carrying a
// Retry-After hint hold the host back until the hint expires.
func (l *HostLimiter) Observe(target string, statusCode int, headers map[string]string) time.Duration {
	if l == nil {
		return 0
	}
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return 0
	}
	now := l.now()
	delay, ok := RetryAfter(headers, now)
	if !ok {
		return 0
	}
	host := hostKey(target)
	if host == "" {
		return delay
	}
	l.mu.Lock()
	l.throttled[host] = now.Add(delay)
	l.mu.Unlock()
	return delay
}

func (l *HostLimiter) limiterLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	maxHosts := l.MaxHosts
	if maxHosts <= 0 {
		maxHosts = defaultMaxHosts
	}
	if len(l.limiters) >= maxHosts {
		// Idle buckets are full; dropping them loses nothing.
		for key, limiter := range l.limiters {
			if limiter.Tokens() >= float64(l.Burst) {
				delete(l.limiters, key)
			}
		}
	}
	limiter := rate.NewLimiter(l.Limit, l.Burst)
	l.limiters[host] = limiter
	return limiter
}

func (l *HostLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// RetryAfter reads a Retry-After header given either in seconds or as an
// HTTP date.
func RetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	if parsed, err := http.ParseTime(value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func hostKey(target string) string {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}
