package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider exposes the persistent stores a repository factory builds.
type StoreProvider interface {
	WebhookStore() WebhookStore
	DeliveryLedger() DeliveryLedger
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	webhookStore      WebhookStore
	ledger            DeliveryLedger
	evaluator         ActivationEvaluator
	templateEngine    TemplateEngine
	notifier          DispatchNotifier
	jobEnqueuer       JobEnqueuer
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithWebhookStore(store WebhookStore) Option {
	return func(b *serviceBuilder) {
		b.webhookStore = store
	}
}

func WithDeliveryLedger(ledger DeliveryLedger) Option {
	return func(b *serviceBuilder) {
		b.ledger = ledger
	}
}

func WithActivationEvaluator(evaluator ActivationEvaluator) Option {
	return func(b *serviceBuilder) {
		b.evaluator = evaluator
	}
}

func WithTemplateEngine(engine TemplateEngine) Option {
	return func(b *serviceBuilder) {
		b.templateEngine = engine
	}
}

// WithDispatchNotifier wakes an in-process dispatcher after ingest inserts rows.
func WithDispatchNotifier(notifier DispatchNotifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

// WithJobEnqueuer enqueues a dispatch job after ingest inserts rows, for
// deployments where dispatchers run in separate worker processes.
func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("featurehooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader returns a loader serving a fixed raw config map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < config < runtime with go-options.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	backoff := map[string]any{}
	setIf(backoff, "base_delay", cfg.Backoff.BaseDelay, includeZero || cfg.Backoff.BaseDelay > 0)
	setIf(backoff, "max_delay", cfg.Backoff.MaxDelay, includeZero || cfg.Backoff.MaxDelay > 0)
	setIf(backoff, "multiplier", cfg.Backoff.Multiplier, includeZero || cfg.Backoff.Multiplier > 0)
	setIf(backoff, "max_retries", cfg.Backoff.MaxRetries, includeZero || cfg.Backoff.MaxRetries > 0)
	setIf(backoff, "jitter_fraction", cfg.Backoff.JitterFraction, includeZero || cfg.Backoff.JitterFraction > 0)
	if len(backoff) > 0 {
		layer["backoff"] = backoff
	}

	d := cfg.Dispatcher
	dispatcher := map[string]any{}
	setIf(dispatcher, "instance_id", d.InstanceID, includeZero || strings.TrimSpace(d.InstanceID) != "")
	setIf(dispatcher, "poll_interval", d.PollInterval, includeZero || d.PollInterval > 0)
	setIf(dispatcher, "lease_duration", d.LeaseDuration, includeZero || d.LeaseDuration > 0)
	setIf(dispatcher, "request_timeout", d.RequestTimeout, includeZero || d.RequestTimeout > 0)
	setIf(dispatcher, "batch_size", d.BatchSize, includeZero || d.BatchSize > 0)
	setIf(dispatcher, "concurrency", d.Concurrency, includeZero || d.Concurrency > 0)
	setIf(dispatcher, "retryable_statuses", append([]int(nil), d.RetryableStatuses...), includeZero || len(d.RetryableStatuses) > 0)
	setIf(dispatcher, "max_response_body_bytes", d.MaxResponseBodyBytes, includeZero || d.MaxResponseBodyBytes > 0)
	setIf(dispatcher, "rate_per_second", d.RatePerSecond, includeZero || d.RatePerSecond > 0)
	setIf(dispatcher, "burst", d.Burst, includeZero || d.Burst > 0)
	if len(dispatcher) > 0 {
		layer["dispatcher"] = dispatcher
	}
	return layer
}

func setIf(layer map[string]any, key string, value any, ok bool) {
	if ok {
		layer[key] = value
	}
}
