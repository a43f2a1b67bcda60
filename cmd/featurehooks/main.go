// Command featurehooks runs the change-event ingest endpoint and the webhook
// dispatcher against a shared delivery ledger.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	featurehooks "github.com/goliatone/go-featurehooks"
	"github.com/goliatone/go-featurehooks/adapters/gocommand"
	"github.com/goliatone/go-featurehooks/adapters/gojob"
	"github.com/goliatone/go-featurehooks/adapters/gologger"
	"github.com/goliatone/go-featurehooks/core"
	"github.com/goliatone/go-featurehooks/inbound"
	"github.com/goliatone/go-featurehooks/metrics"
	featurehooksmigrations "github.com/goliatone/go-featurehooks/migrations"
	"github.com/goliatone/go-featurehooks/security"
	sqlstore "github.com/goliatone/go-featurehooks/store/sql"
	jobredis "github.com/goliatone/go-job/queue/adapters/redis"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	redis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("FEATUREHOOKS_CONFIG"), "path to the YAML config file")
	addr := flag.String("addr", "", "HTTP listen address, overrides server.http_addr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "featurehooks: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, addrOverride string) error {
	fileCfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	server := fileCfg.Server
	server.applyEnv(nil)
	if addrOverride != "" {
		server.HTTPAddr = addrOverride
	}
	if err := server.validate(); err != nil {
		return err
	}

	loggers := gologger.ResolveComponents(slogProvider{level: server.LogLevel}, nil)

	serviceCfg, err := loadServiceConfig(ctx, fileCfg.Service)
	if err != nil {
		return fmt.Errorf("load service config: %w", err)
	}

	recorder, err := metrics.NewPrometheusRecorder(metrics.WithRuntimeCollectors())
	if err != nil {
		return fmt.Errorf("build metrics recorder: %w", err)
	}

	serviceOpts := []featurehooks.Option{featurehooks.WithLogger(loggers.Ingest)}

	var rdb *redis.Client
	var wakeups *jobredis.Adapter
	if server.RedisURL != "" {
		redisOpts, parseErr := redis.ParseURL(server.RedisURL)
		if parseErr != nil {
			return fmt.Errorf("parse redis url: %w", parseErr)
		}
		rdb = redis.NewClient(redisOpts)
		defer func() { _ = rdb.Close() }()

		if server.JobQueue != "" {
			wakeups = gojob.NewRedisQueue(rdb, server.JobQueue)
			enqueuer := gojob.NewEnqueuerAdapter(wakeups)
			enqueuer.Logger = loggers.Jobs
			serviceOpts = append(serviceOpts, featurehooks.WithJobEnqueuer(enqueuer))
		}
	}

	var client *persistence.Client
	if server.driver() != "memory" {
		client, err = openPersistence(ctx, server, loggers.Ingest)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		var factoryOpts []sqlstore.FactoryOption
		if server.WebhookCacheTTL > 0 {
			cacheCfg := repositorycache.DefaultConfig()
			cacheCfg.TTL = server.WebhookCacheTTL
			cacheService, cacheErr := repositorycache.NewCacheService(cacheCfg)
			if cacheErr != nil {
				return fmt.Errorf("build webhook cache: %w", cacheErr)
			}
			factoryOpts = append(factoryOpts, sqlstore.WithWebhookCache(cacheService))
		}
		if server.SecretKey != "" {
			secrets, secretErr := security.NewAppKeySecretProviderFromString(server.SecretKey)
			if secretErr != nil {
				return fmt.Errorf("build secret provider: %w", secretErr)
			}
			factoryOpts = append(factoryOpts, sqlstore.WithWebhookSecrets(secrets))
		}
		factory, factoryErr := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
		if factoryErr != nil {
			return fmt.Errorf("build stores: %w", factoryErr)
		}
		serviceOpts = append(serviceOpts, featurehooks.WithRepositoryFactory(factory))
	}

	runtime, err := featurehooks.NewRuntime(featurehooks.RuntimeOptions{
		Config:           serviceCfg,
		ServiceOptions:   serviceOpts,
		EvaluatorURL:     server.EvaluatorURL,
		EvaluatorHeaders: server.EvaluatorHeaders,
		Logger:           loggers.Dispatcher,
		Metrics:          recorder,
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	bus, err := gocommand.NewBus(gocommand.Handlers{
		Service:    runtime.Service,
		Dispatcher: runtime.Dispatcher,
	})
	if err != nil {
		return fmt.Errorf("register command handlers: %w", err)
	}
	defer bus.Close()

	ingestHandler := inbound.NewHTTPHandler(bus.Ingestor(), server.InboundSecret)
	ingestHandler.Logger = loggers.Inbound

	mux := http.NewServeMux()
	mux.Handle("/v1/events", ingestHandler)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", readyHandler(client))

	httpServer := &http.Server{
		Addr:              server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		core.LogWithLevel(groupCtx, loggers.Inbound, "info", "featurehooks http server listening", map[string]any{
			"addr": server.HTTPAddr,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		core.LogWithLevel(groupCtx, loggers.Dispatcher, "info", "featurehooks dispatcher started", map[string]any{
			"instance_id": runtime.Dispatcher.InstanceID(),
		})
		return ignoreCanceled(runtime.Dispatcher.Run(groupCtx))
	})
	if rdb != nil {
		subscriber := inbound.NewRedisSubscriber(rdb, server.RedisChannel, bus.Ingestor())
		subscriber.Logger = loggers.Inbound
		group.Go(func() error {
			return ignoreCanceled(subscriber.Run(groupCtx))
		})
	}
	if wakeups != nil {
		worker, workerErr := gojob.NewDispatchWorker(wakeups, runtime.Dispatcher,
			gojob.WithWorkerLogger(loggers.Jobs),
			gojob.WithWorkerHooks(gojob.LoggingHook{Logger: loggers.Jobs}),
		)
		if workerErr != nil {
			return fmt.Errorf("build dispatch worker: %w", workerErr)
		}
		group.Go(func() error {
			return ignoreCanceled(worker.Run(groupCtx))
		})
	}

	return group.Wait()
}

func openPersistence(ctx context.Context, server serverConfig, logger core.Logger) (*persistence.Client, error) {
	driver := server.driver()
	sqlDB, err := sql.Open(driver, server.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	migrationDialect, err := featurehooksmigrations.DialectForDriver(driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	var dialect schema.Dialect
	switch migrationDialect {
	case featurehooksmigrations.DialectSQLite:
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	default:
		dialect = pgdialect.New()
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: server.DatabaseDSN}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("build persistence client: %w", err)
	}
	if !server.Migrate {
		return client, nil
	}

	source, err := featurehooksmigrations.Register(client, migrationDialect)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	core.LogWithLevel(ctx, logger, "info", "featurehooks migrations applied", map[string]any{
		"driver":   driver,
		"dialect":  string(source.Dialect),
		"versions": source.Versions,
	})
	return client, nil
}

func readyHandler(client *persistence.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client != nil {
			if err := client.DB().PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
