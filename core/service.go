package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// JobIDDispatchPending is the job id enqueued to wake dispatcher workers.
const JobIDDispatchPending = "featurehooks.dispatch.pending"

type Service struct {
	config            Config
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
	renderer          *Renderer
	backoff           BackoffPolicy
	notifier          DispatchNotifier
	jobEnqueuer       JobEnqueuer
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	WebhookStore      WebhookStore
	DeliveryLedger    DeliveryLedger
	Renderer          *Renderer
	Backoff           BackoffPolicy
	Notifier          DispatchNotifier
	JobEnqueuer       JobEnqueuer
	Clock             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("featurehooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("featurehooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.webhookStore == nil || builder.ledger == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		switch factory := builder.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		case StoreProvider:
			stores = factory
		}
		if stores != nil {
			if builder.webhookStore == nil {
				builder.webhookStore = stores.WebhookStore()
			}
			if builder.ledger == nil {
				builder.ledger = stores.DeliveryLedger()
			}
		}
	}
	if builder.webhookStore == nil {
		builder.webhookStore = NewMemoryWebhookStore()
	}
	if builder.ledger == nil {
		builder.ledger = NewMemoryDeliveryLedger()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		webhookStore:      builder.webhookStore,
		ledger:            builder.ledger,
		renderer:          NewRenderer(builder.evaluator, builder.templateEngine),
		backoff:           NewBackoffPolicy(finalConfig.Backoff),
		notifier:          builder.notifier,
		jobEnqueuer:       builder.jobEnqueuer,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		WebhookStore:      s.webhookStore,
		DeliveryLedger:    s.ledger,
		Renderer:          s.renderer,
		Backoff:           s.backoff,
		Notifier:          s.notifier,
		JobEnqueuer:       s.jobEnqueuer,
		Clock:             s.now,
	}
}

// SetDispatchNotifier attaches a dispatcher built after the service.
func (s *Service) SetDispatchNotifier(notifier DispatchNotifier) {
	if s == nil {
		return
	}
	s.notifier = notifier
}

func (s *Service) mapError(err error) error {
	if err == nil || s == nil {
		return err
	}
	return mapBuildError(s.errorMapper, err)
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}
