// Package inbound accepts feature change events from the flag engine.
//
// Every source decodes the same JSON envelope and hands the event to a
// core.Ingestor. Ingest is idempotent per (webhook, event), so sources may
// redeliver freely.
package inbound
