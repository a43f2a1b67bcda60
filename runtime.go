package featurehooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	"github.com/goliatone/go-featurehooks/ratelimit"
	"github.com/goliatone/go-featurehooks/templates"
	"github.com/goliatone/go-featurehooks/transport"
	"github.com/goliatone/go-featurehooks/webhooks"
)

// RuntimeOptions configures NewRuntime. Zero values select the production
// defaults: an HTTP sender, Handlebars body templates, per-host pacing from
// Config.Dispatcher and no activation re-evaluation.
type RuntimeOptions struct {
	Config Config
	// ServiceOptions are applied after the runtime defaults.
	ServiceOptions []Option
	Sender         DeliverySender
	// EvaluatorURL enables per-hook activation re-evaluation against the
	// feature engine.
	EvaluatorURL     string
	EvaluatorHeaders map[string]string
	Signer           *webhooks.HMACSigner
	Logger           core.Logger
	Metrics          core.MetricsRecorder
}

// Runtime is the assembled pipeline: the ingest service, one dispatcher
// sharing its stores and a facade over both.
type Runtime struct {
	Service    *Service
	Dispatcher *webhooks.Dispatcher
	Facade     *Facade
}

func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	sender := opts.Sender
	if sender == nil {
		sender = transport.NewHTTPSender(nil)
	}

	serviceOpts := []Option{WithTemplateEngine(templates.NewHandlebarsEngine())}
	if url := strings.TrimSpace(opts.EvaluatorURL); url != "" {
		evaluator := transport.NewHTTPActivationEvaluator(url, sender)
		for key, value := range opts.EvaluatorHeaders {
			evaluator.Headers[key] = value
		}
		serviceOpts = append(serviceOpts, WithActivationEvaluator(evaluator))
	}
	if opts.Logger != nil {
		serviceOpts = append(serviceOpts, WithLogger(opts.Logger))
	}
	if opts.Metrics != nil {
		serviceOpts = append(serviceOpts, WithMetricsRecorder(opts.Metrics))
	}
	serviceOpts = append(serviceOpts, opts.ServiceOptions...)

	svc, err := NewService(opts.Config, serviceOpts...)
	if err != nil {
		return nil, err
	}
	deps := svc.Dependencies()
	cfg := svc.Config()

	dispatcherOpts := []webhooks.DispatcherOption{
		webhooks.WithBackoffPolicy(deps.Backoff),
	}
	if opts.Logger != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithDispatcherLogger(opts.Logger))
	}
	if opts.Metrics != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithDispatcherMetrics(opts.Metrics))
	}
	if opts.Signer != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithSigner(*opts.Signer))
	}
	if limiter := ratelimit.NewHostLimiter(cfg.Dispatcher.RatePerSecond, cfg.Dispatcher.Burst); limiter != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithRateLimiter(limiter))
	}
	if deps.Clock != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithDispatcherClock(deps.Clock))
	}

	dispatcher, err := webhooks.NewDispatcher(deps.DeliveryLedger, deps.WebhookStore, sender, cfg, dispatcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("featurehooks: build dispatcher: %w", err)
	}
	svc.SetDispatchNotifier(dispatcher)

	facade, err := NewFacade(svc, WithDispatcher(dispatcher))
	if err != nil {
		return nil, err
	}
	return &Runtime{Service: svc, Dispatcher: dispatcher, Facade: facade}, nil
}
