package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ComponentIngest     = "featurehooks.ingest"
	ComponentDispatcher = "featurehooks.dispatcher"
	ComponentInbound    = "featurehooks.inbound"
	ComponentJobs       = "featurehooks.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the jobs component logger and returns go-job bridges
// for it.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(ComponentJobs, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// Loggers holds one named logger per runtime component.
type Loggers struct {
	Provider   glog.LoggerProvider
	Ingest     glog.Logger
	Dispatcher glog.Logger
	Inbound    glog.Logger
	Jobs       glog.Logger
}

// ResolveComponents resolves every component logger from the same source.
// With a provider each component gets its own named logger; otherwise they
// share logger, or nop when both are nil.
func ResolveComponents(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, ingest := Resolve(ComponentIngest, provider, logger)
	_, dispatcher := Resolve(ComponentDispatcher, resolvedProvider, logger)
	_, inbound := Resolve(ComponentInbound, resolvedProvider, logger)
	_, jobs := Resolve(ComponentJobs, resolvedProvider, logger)
	return Loggers{
		Provider:   resolvedProvider,
		Ingest:     ingest,
		Dispatcher: dispatcher,
		Inbound:    inbound,
		Jobs:       jobs,
	}
}
