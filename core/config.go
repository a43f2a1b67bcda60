package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BackoffConfig struct {
	BaseDelay      time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay       time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
	Multiplier     float64       `koanf:"multiplier" mapstructure:"multiplier"`
	MaxRetries     int           `koanf:"max_retries" mapstructure:"max_retries"`
	JitterFraction float64       `koanf:"jitter_fraction" mapstructure:"jitter_fraction"`
}

type DispatcherConfig struct {
	InstanceID           string        `koanf:"instance_id" mapstructure:"instance_id"`
	PollInterval         time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	LeaseDuration        time.Duration `koanf:"lease_duration" mapstructure:"lease_duration"`
	RequestTimeout       time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	BatchSize            int           `koanf:"batch_size" mapstructure:"batch_size"`
	Concurrency          int           `koanf:"concurrency" mapstructure:"concurrency"`
	RetryableStatuses    []int         `koanf:"retryable_statuses" mapstructure:"retryable_statuses"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	RatePerSecond        float64       `koanf:"rate_per_second" mapstructure:"rate_per_second"`
	Burst                int           `koanf:"burst" mapstructure:"burst"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Backoff     BackoffConfig    `koanf:"backoff" mapstructure:"backoff"`
	Dispatcher  DispatcherConfig `koanf:"dispatcher" mapstructure:"dispatcher"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "featurehooks",
		Backoff: BackoffConfig{
			BaseDelay:      time.Second,
			MaxDelay:       5 * time.Minute,
			Multiplier:     2,
			MaxRetries:     8,
			JitterFraction: 0.1,
		},
		Dispatcher: DispatcherConfig{
			PollInterval:         2 * time.Second,
			LeaseDuration:        time.Minute,
			RequestTimeout:       10 * time.Second,
			BatchSize:            50,
			Concurrency:          8,
			RetryableStatuses:    []int{408, 429},
			MaxResponseBodyBytes: 64 << 10,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if err := c.Backoff.Validate(); err != nil {
		return err
	}
	return c.Dispatcher.Validate()
}

func (c BackoffConfig) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("core: backoff base_delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("core: backoff max_delay must be >= base_delay")
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("core: backoff multiplier must be >= 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("core: backoff max_retries must be >= 0")
	}
	if c.JitterFraction < 0 || c.JitterFraction >= 1 {
		return fmt.Errorf("core: backoff jitter_fraction must be in [0, 1)")
	}
	return nil
}

func (c DispatcherConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("core: dispatcher poll_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("core: dispatcher request_timeout must be positive")
	}
	// a live request must never outlive the claim that covers it
	if c.LeaseDuration <= c.RequestTimeout {
		return fmt.Errorf("core: dispatcher lease_duration must exceed request_timeout")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("core: dispatcher batch_size must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("core: dispatcher concurrency must be positive")
	}
	for _, status := range c.RetryableStatuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("core: dispatcher retryable status %d is not an http status", status)
		}
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("core: dispatcher rate_per_second must be >= 0")
	}
	return nil
}

// ResolvedInstanceID returns the configured instance id or a random one.
func (c DispatcherConfig) ResolvedInstanceID() string {
	if id := strings.TrimSpace(c.InstanceID); id != "" {
		return id
	}
	return "dispatcher-" + uuid.NewString()
}
