package core

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes the next attempt time after a retryable failure.
type BackoffPolicy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxRetries     int
	JitterFraction float64
	// Float returns a value in [0, 1). Defaults to math/rand.
	Float func() float64
}

func NewBackoffPolicy(cfg BackoffConfig) BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		Multiplier:     cfg.Multiplier,
		MaxRetries:     cfg.MaxRetries,
		JitterFraction: cfg.JitterFraction,
	}
}

// NextAttemptTime returns when the next attempt may run, given how many
// attempts have already been made. ok is false once attempts exceeds
// MaxRetries: the delivery is exhausted.
func (p BackoffPolicy) NextAttemptTime(attempts int, now time.Time) (time.Time, bool) {
	if attempts > p.MaxRetries {
		return time.Time{}, false
	}
	return now.Add(p.Delay(attempts)), true
}

// Delay is min(MaxDelay, BaseDelay * Multiplier^(attempts-1)), jittered.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maximum := p.MaxDelay
	if maximum < base {
		maximum = base
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	raw := float64(base) * math.Pow(multiplier, float64(attempts-1))
	delay := maximum
	if !math.IsInf(raw, 0) && !math.IsNaN(raw) && raw < float64(maximum) {
		delay = time.Duration(raw)
	}
	return p.jitter(delay, maximum)
}

func (p BackoffPolicy) jitter(delay time.Duration, maximum time.Duration) time.Duration {
	if p.JitterFraction <= 0 || delay <= 0 {
		return delay
	}
	random := p.Float
	if random == nil {
		random = rand.Float64
	}
	spread := float64(delay) * p.JitterFraction
	jittered := time.Duration(float64(delay) - spread + 2*spread*random())
	if jittered < 0 {
		return 0
	}
	if jittered > maximum {
		return maximum
	}
	return jittered
}
