package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// HandleChangeEvent matches the event against enabled hooks, renders one
// payload per matched hook and records each delivery in the ledger.
//
// Inserts are idempotent, so a redelivered event is absorbed. A render
// failure is stored as a failed_terminal row. An activation evaluator
// failure is returned after the other hooks are processed, so the event
// source redelivers and only the missing rows are added.
func (s *Service) HandleChangeEvent(ctx context.Context, event ChangeEvent) (result IngestResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   strings.TrimSpace(event.TenantID),
		"feature_id":  strings.TrimSpace(event.FeatureID),
		"change_kind": string(event.Kind),
	}
	defer func() {
		fields["matched"] = len(result.Matched)
		fields["inserted"] = len(result.Inserted)
		fields["duplicates"] = len(result.Duplicates)
		s.observeOperation(ctx, startedAt, "ingest", err, fields)
	}()

	if s == nil || s.webhookStore == nil || s.ledger == nil {
		return IngestResult{}, BadInputError("service", "featurehooks service is not configured")
	}
	if err := validateChangeEvent(event); err != nil {
		return IngestResult{}, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock()
	}
	eventID := event.EventID()
	event.ID = eventID
	fields["event_id"] = eventID
	result.EventID = eventID

	hooks, err := s.webhookStore.ListEnabled(ctx, event.TenantID)
	if err != nil {
		return result, s.mapError(err)
	}
	byID := make(map[string]Webhook, len(hooks))
	for _, hook := range hooks {
		byID[hook.ID] = hook
	}
	result.Matched = Match(event, hooks)

	var evalErrs []error
	pendingInserted := false
	for _, webhookID := range result.Matched {
		hook := byID[webhookID]
		input := InsertDeliveryInput{
			WebhookID: hook.ID,
			EventID:   eventID,
			TenantID:  event.TenantID,
			FeatureID: event.FeatureID,
			Now:       s.clock(),
		}

		payload, renderErr := s.renderer.Render(ctx, event, hook)
		switch {
		case renderErr == nil:
			input.Payload = payload.Body
			input.ContentType = payload.ContentType
		case IsRenderError(renderErr):
			input.Status = DeliveryStatusFailedTerminal
			input.FailureKind = FailureKindRender
			input.LastError = renderErr.Error()
			s.logWarn(ctx, "webhook payload render failed", map[string]any{
				"webhook_id": hook.ID,
				"event_id":   eventID,
				"error":      renderErr.Error(),
			})
		default:
			evalErrs = append(evalErrs, renderErr)
			result.Failed = append(result.Failed, hook.ID)
			continue
		}

		row, created, insertErr := s.ledger.Insert(ctx, input)
		if insertErr != nil {
			return result, s.mapError(insertErr)
		}
		if !created {
			result.Duplicates = append(result.Duplicates, hook.ID)
			continue
		}
		result.Inserted = append(result.Inserted, hook.ID)
		s.recordCounter(ctx, MetricIngestTotal, 1, map[string]string{"status": string(row.Status)})
		if row.Status == DeliveryStatusPending {
			pendingInserted = true
		}
	}

	if pendingInserted {
		s.wakeDispatchers(ctx, eventID)
	}
	if len(evalErrs) > 0 {
		return result, errors.Join(evalErrs...)
	}
	return result, nil
}

func (s *Service) wakeDispatchers(ctx context.Context, eventID string) {
	if s.notifier != nil {
		s.notifier.Notify()
	}
	if s.jobEnqueuer == nil {
		return
	}
	err := s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          JobIDDispatchPending,
		Parameters:     map[string]any{"event_id": eventID},
		IdempotencyKey: JobIDDispatchPending + ":" + eventID,
	})
	if err != nil {
		// rows are durable; pollers still pick them up
		s.logWarn(ctx, "dispatch wake-up enqueue failed", map[string]any{
			"event_id": eventID,
			"error":    err.Error(),
		})
	}
}

func validateChangeEvent(event ChangeEvent) error {
	if strings.TrimSpace(event.FeatureID) == "" {
		return BadInputError("feature_id", "feature id is required")
	}
	if !event.Kind.Valid() {
		return BadInputError("kind", "unknown change kind "+string(event.Kind))
	}
	// the derived id hashes occurred_at, so without either a redelivery
	// could not be recognised
	if strings.TrimSpace(event.ID) == "" && event.OccurredAt.IsZero() {
		return BadInputError("occurred_at", "occurred_at is required when the event has no id")
	}
	return nil
}
