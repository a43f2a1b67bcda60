// Package featurehooks delivers feature-flag change notifications to
// registered webhooks through a durable, lease-claimed delivery ledger.
package featurehooks

import "github.com/goliatone/go-featurehooks/core"

type Config = core.Config

type BackoffConfig = core.BackoffConfig

type DispatcherConfig = core.DispatcherConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type WebhookStore = core.WebhookStore
type DeliveryLedger = core.DeliveryLedger
type DeliverySender = core.DeliverySender
type ActivationEvaluator = core.ActivationEvaluator
type TemplateEngine = core.TemplateEngine

type Webhook = core.Webhook
type ChangeEvent = core.ChangeEvent
type DeliveryAttempt = core.DeliveryAttempt

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithWebhookStore        = core.WithWebhookStore
	WithDeliveryLedger      = core.WithDeliveryLedger
	WithActivationEvaluator = core.WithActivationEvaluator
	WithTemplateEngine      = core.WithTemplateEngine
	WithDispatchNotifier    = core.WithDispatchNotifier
	WithJobEnqueuer         = core.WithJobEnqueuer
	WithClock               = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
