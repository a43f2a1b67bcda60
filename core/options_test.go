package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type fixedStoreFactory struct {
	hooks  *MemoryWebhookStore
	ledger *MemoryDeliveryLedger

	client any
	err    error
}

func (f *fixedStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fixedStoreFactory) WebhookStore() WebhookStore     { return f.hooks }
func (f *fixedStoreFactory) DeliveryLedger() DeliveryLedger { return f.ledger }

func TestNewService_WithOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: resolved}
	notifier := &countingNotifier{}
	enqueuer := &captureEnqueuer{}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithDispatchNotifier(notifier),
		WithJobEnqueuer(enqueuer),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolvedLogger := deps.LoggerProvider.GetLogger("featurehooks.override"); resolvedLogger != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.Notifier != notifier || deps.JobEnqueuer != enqueuer {
		t.Fatalf("expected dispatch wake-up overrides")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if mapped := deps.ErrorMapper(errors.New("boom")); !errors.Is(mapped, sentinel) {
		t.Fatalf("expected custom error mapper, got %v", mapped)
	}
}

func TestNewService_BuildsStoresFromRepositoryFactory(t *testing.T) {
	client := &struct{ Name string }{Name: "persistence"}
	factory := &fixedStoreFactory{
		hooks:  NewMemoryWebhookStore(testHook("W1", []string{"F1"}, nil)),
		ledger: NewMemoryDeliveryLedger(),
	}

	svc, err := NewService(Config{},
		WithPersistenceClient(client),
		WithRepositoryFactory(factory),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if factory.client != client {
		t.Fatalf("expected persistence client to reach the repository factory")
	}
	deps := svc.Dependencies()
	if deps.WebhookStore != factory.hooks || deps.DeliveryLedger != factory.ledger {
		t.Fatalf("expected factory-built stores")
	}
	if deps.PersistenceClient != client || deps.RepositoryFactory != factory {
		t.Fatalf("expected persistence dependencies to be retained")
	}
}

func TestNewService_ExplicitStoresWinOverFactory(t *testing.T) {
	factory := &fixedStoreFactory{
		hooks:  NewMemoryWebhookStore(),
		ledger: NewMemoryDeliveryLedger(),
	}
	ledger := NewMemoryDeliveryLedger()

	svc, err := NewService(Config{},
		WithRepositoryFactory(factory),
		WithDeliveryLedger(ledger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.DeliveryLedger != ledger {
		t.Fatalf("expected explicit ledger to win")
	}
	if deps.WebhookStore != factory.hooks {
		t.Fatalf("expected factory webhook store to fill the gap")
	}
}

func TestNewService_RepositoryFactoryErrorIsReturned(t *testing.T) {
	factory := &fixedStoreFactory{err: errors.New("db unreachable")}
	if _, err := NewService(Config{}, WithRepositoryFactory(factory)); err == nil {
		t.Fatalf("expected factory error")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"dispatcher": map[string]any{
			"batch_size":  20,
			"concurrency": 4,
		},
	}})

	runtime := Config{ServiceName: "from-runtime"}
	runtime.Dispatcher.Concurrency = 2
	svc, err := NewService(runtime, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Dispatcher.BatchSize != 20 {
		t.Fatalf("expected config layer batch size, got %d", cfg.Dispatcher.BatchSize)
	}
	if cfg.Dispatcher.Concurrency != 2 {
		t.Fatalf("expected runtime concurrency, got %d", cfg.Dispatcher.Concurrency)
	}
	if cfg.Dispatcher.LeaseDuration != DefaultConfig().Dispatcher.LeaseDuration {
		t.Fatalf("expected default lease to survive, got %s", cfg.Dispatcher.LeaseDuration)
	}
}
