package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	"gopkg.in/yaml.v3"
)

// serverConfig is the binary's own section of the config file. Everything
// outside the "server" key is the service configuration.
type serverConfig struct {
	HTTPAddr         string            `yaml:"http_addr"`
	LogLevel         string            `yaml:"log_level"`
	DatabaseDriver   string            `yaml:"database_driver"`
	DatabaseDSN      string            `yaml:"database_dsn"`
	Migrate          bool              `yaml:"migrate"`
	InboundSecret    string            `yaml:"inbound_secret"`
	SecretKey        string            `yaml:"secret_key"`
	RedisURL         string            `yaml:"redis_url"`
	RedisChannel     string            `yaml:"redis_channel"`
	JobQueue         string            `yaml:"job_queue"`
	EvaluatorURL     string            `yaml:"evaluator_url"`
	EvaluatorHeaders map[string]string `yaml:"evaluator_headers"`
	WebhookCacheTTL  time.Duration     `yaml:"webhook_cache_ttl"`
	ShutdownTimeout  time.Duration     `yaml:"shutdown_timeout"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		DatabaseDriver:  "sqlite3",
		DatabaseDSN:     "file:featurehooks.db?cache=shared&_foreign_keys=on",
		Migrate:         true,
		ShutdownTimeout: 10 * time.Second,
	}
}

type fileConfig struct {
	Server  serverConfig
	Service core.RawConfigLoader
}

// loadFileConfig reads path and splits it into the server section and the
// raw service config. A missing path yields defaults.
func loadFileConfig(path string) (fileConfig, error) {
	out := fileConfig{Server: defaultServerConfig(), Service: core.NewStaticConfigLoader(nil)}
	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("featurehooks: read config %s: %w", path, err)
	}
	return parseFileConfig(content)
}

func parseFileConfig(content []byte) (fileConfig, error) {
	out := fileConfig{Server: defaultServerConfig()}

	var wrapper struct {
		Server *serverConfig `yaml:"server"`
	}
	wrapper.Server = &out.Server
	if err := yaml.Unmarshal(content, &wrapper); err != nil {
		return fileConfig{}, fmt.Errorf("featurehooks: decode server config: %w", err)
	}

	raw, err := core.ParseYAMLConfig(content)
	if err != nil {
		return fileConfig{}, err
	}
	delete(raw, "server")
	out.Service = core.NewStaticConfigLoader(raw)
	return out, nil
}

// applyEnv overrides secrets and endpoints from FEATUREHOOKS_* variables.
func (c *serverConfig) applyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	overrides := map[string]*string{
		"FEATUREHOOKS_HTTP_ADDR":       &c.HTTPAddr,
		"FEATUREHOOKS_LOG_LEVEL":       &c.LogLevel,
		"FEATUREHOOKS_DATABASE_DRIVER": &c.DatabaseDriver,
		"FEATUREHOOKS_DATABASE_DSN":    &c.DatabaseDSN,
		"FEATUREHOOKS_INBOUND_SECRET":  &c.InboundSecret,
		"FEATUREHOOKS_SECRET_KEY":      &c.SecretKey,
		"FEATUREHOOKS_REDIS_URL":       &c.RedisURL,
		"FEATUREHOOKS_JOB_QUEUE":       &c.JobQueue,
		"FEATUREHOOKS_EVALUATOR_URL":   &c.EvaluatorURL,
	}
	for key, target := range overrides {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
}

func (c serverConfig) validate() error {
	switch c.driver() {
	case "postgres", "pgx", "sqlite3", "memory":
	default:
		return fmt.Errorf("featurehooks: unsupported database_driver %q", c.DatabaseDriver)
	}
	if c.driver() != "memory" && strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("featurehooks: database_dsn is required for driver %s", c.driver())
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("featurehooks: http_addr is required")
	}
	if strings.TrimSpace(c.JobQueue) != "" && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("featurehooks: job_queue requires redis_url")
	}
	if c.ShutdownTimeout < 0 || c.WebhookCacheTTL < 0 {
		return fmt.Errorf("featurehooks: durations must not be negative")
	}
	return nil
}

func (c serverConfig) driver() string {
	return strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
}

// persistenceConfig satisfies go-persistence-bun's client config.
type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-featurehooks"
}

func loadServiceConfig(ctx context.Context, loader core.RawConfigLoader) (core.Config, error) {
	return core.NewCfgxConfigProvider(loader).Load(ctx, core.DefaultConfig())
}
