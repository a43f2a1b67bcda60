package core

import (
	"context"
	"strings"
	"time"
)

func (s *Service) DeliveryStats(ctx context.Context, webhookID string) (stats DeliveryStats, err error) {
	if s == nil || s.ledger == nil {
		return DeliveryStats{}, BadInputError("service", "featurehooks service is not configured")
	}
	stats, err = s.ledger.Stats(ctx, strings.TrimSpace(webhookID))
	return stats, s.mapError(err)
}

func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	if s == nil || s.ledger == nil {
		return DeliveryPage{}, BadInputError("service", "featurehooks service is not configured")
	}
	page, err := s.ledger.List(ctx, filter)
	return page, s.mapError(err)
}

func (s *Service) GetDelivery(ctx context.Context, id string) (DeliveryAttempt, error) {
	if s == nil || s.ledger == nil {
		return DeliveryAttempt{}, BadInputError("service", "featurehooks service is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return DeliveryAttempt{}, BadInputError("id", "delivery id is required")
	}
	row, err := s.ledger.Get(ctx, id)
	return row, s.mapError(err)
}

// RequeueDelivery puts a failed_terminal delivery back to pending with a
// fresh retry budget. Render failures are requeued with the stored body, so
// callers normally fix the template and re-emit the event instead.
func (s *Service) RequeueDelivery(ctx context.Context, id string) (row DeliveryAttempt, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"delivery_id": strings.TrimSpace(id)}
	defer func() {
		fields["webhook_id"] = row.WebhookID
		s.observeOperation(ctx, startedAt, "requeue", err, fields)
	}()

	if s == nil || s.ledger == nil {
		return DeliveryAttempt{}, BadInputError("service", "featurehooks service is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return DeliveryAttempt{}, BadInputError("id", "delivery id is required")
	}
	existing, err := s.ledger.Get(ctx, id)
	if err != nil {
		return DeliveryAttempt{}, s.mapError(err)
	}
	if existing.FailureKind == FailureKindRender {
		return DeliveryAttempt{}, BadInputError("failure_kind", "render failures cannot be requeued")
	}
	row, err = s.ledger.Requeue(ctx, id, s.clock())
	if err != nil {
		return DeliveryAttempt{}, s.mapError(err)
	}
	s.wakeDispatchers(ctx, row.EventID)
	return row, nil
}

// UpsertWebhook creates or updates a hook. An empty principal is a trusted
// internal caller. Otherwise updates need write rights, and the creator of a
// new hook is granted admin.
func (s *Service) UpsertWebhook(ctx context.Context, in UpsertWebhookInput) (hook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"webhook_id": strings.TrimSpace(in.Webhook.ID),
		"tenant_id":  strings.TrimSpace(in.Webhook.TenantID),
	}
	defer func() {
		fields["webhook_id"] = hook.ID
		s.observeOperation(ctx, startedAt, "upsert_webhook", err, fields)
	}()

	if s == nil || s.webhookStore == nil {
		return Webhook{}, BadInputError("service", "featurehooks service is not configured")
	}
	principal := strings.TrimSpace(in.Principal)
	next := NormalizeWebhook(in.Webhook)

	if next.ID != "" {
		existing, getErr := s.webhookStore.Get(ctx, next.ID)
		switch {
		case getErr == nil:
			if principal != "" && !existing.RightFor(principal).Allows(WebhookActionUpdate) {
				return Webhook{}, PermissionDeniedError(principal, WebhookActionUpdate, existing.ID)
			}
			if next.Rights == nil {
				next.Rights = existing.Rights
			}
			next.CreatedAt = existing.CreatedAt
		case IsNotFound(getErr):
		default:
			return Webhook{}, s.mapError(getErr)
		}
	}
	if principal != "" && next.RightFor(principal) == "" {
		if next.Rights == nil {
			next.Rights = map[string]RightLevel{}
		}
		next.Rights[principal] = RightAdmin
	}

	hook, err = s.webhookStore.Upsert(ctx, next)
	return hook, s.mapError(err)
}

// DeleteWebhook removes a hook; pending deliveries for it are cancelled when
// a dispatcher next claims them.
func (s *Service) DeleteWebhook(ctx context.Context, in DeleteWebhookInput) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"webhook_id": strings.TrimSpace(in.WebhookID)}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_webhook", err, fields)
	}()

	if s == nil || s.webhookStore == nil {
		return BadInputError("service", "featurehooks service is not configured")
	}
	if strings.TrimSpace(in.WebhookID) == "" {
		return BadInputError("webhook_id", "webhook id is required")
	}
	existing, err := s.webhookStore.Get(ctx, in.WebhookID)
	if err != nil {
		return s.mapError(err)
	}
	if principal := strings.TrimSpace(in.Principal); principal != "" &&
		!existing.RightFor(principal).Allows(WebhookActionDelete) {
		return PermissionDeniedError(principal, WebhookActionDelete, existing.ID)
	}
	return s.mapError(s.webhookStore.Delete(ctx, existing.ID))
}

func (s *Service) GetWebhook(ctx context.Context, principal string, id string) (Webhook, error) {
	if s == nil || s.webhookStore == nil {
		return Webhook{}, BadInputError("service", "featurehooks service is not configured")
	}
	hook, err := s.webhookStore.Get(ctx, id)
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	if principal = strings.TrimSpace(principal); principal != "" && !hook.RightFor(principal).Allows(WebhookActionView) {
		return Webhook{}, PermissionDeniedError(principal, WebhookActionView, hook.ID)
	}
	return hook, nil
}

// ListWebhooks returns the tenant's hooks visible to principal.
func (s *Service) ListWebhooks(ctx context.Context, principal string, tenantID string) ([]Webhook, error) {
	if s == nil || s.webhookStore == nil {
		return nil, BadInputError("service", "featurehooks service is not configured")
	}
	hooks, err := s.webhookStore.List(ctx, tenantID)
	if err != nil {
		return nil, s.mapError(err)
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return hooks, nil
	}
	visible := make([]Webhook, 0, len(hooks))
	for _, hook := range hooks {
		if hook.RightFor(principal).Allows(WebhookActionView) {
			visible = append(visible, hook)
		}
	}
	return visible, nil
}
