package sqlstore

import (
	"maps"
	"slices"
	"time"

	"github.com/goliatone/go-featurehooks/core"
)

func newWebhookRecord(hook core.Webhook) *webhookRecord {
	rights := make(map[string]string, len(hook.Rights))
	for principal, right := range hook.Rights {
		rights[principal] = string(right)
	}
	headers := maps.Clone(hook.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	features := slices.Clone(hook.Features)
	if features == nil {
		features = []string{}
	}
	projects := slices.Clone(hook.Projects)
	if projects == nil {
		projects = []string{}
	}
	return &webhookRecord{
		ID:           hook.ID,
		TenantID:     hook.TenantID,
		Name:         hook.Name,
		Description:  hook.Description,
		URL:          hook.URL,
		Headers:      headers,
		Features:     features,
		Projects:     projects,
		EvalContext:  hook.Context,
		EvalUser:     hook.User,
		BodyTemplate: hook.BodyTemplate,
		Enabled:      hook.Enabled,
		Secret:       hook.Secret,
		Rights:       rights,
		CreatedAt:    hook.CreatedAt.UTC(),
		UpdatedAt:    hook.UpdatedAt.UTC(),
	}
}

func (r *webhookRecord) toDomain() core.Webhook {
	if r == nil {
		return core.Webhook{}
	}
	var rights map[string]core.RightLevel
	if len(r.Rights) > 0 {
		rights = make(map[string]core.RightLevel, len(r.Rights))
		for principal, right := range r.Rights {
			rights[principal] = core.RightLevel(right)
		}
	}
	return core.Webhook{
		ID:           r.ID,
		TenantID:     r.TenantID,
		URL:          r.URL,
		Name:         r.Name,
		Description:  r.Description,
		Headers:      maps.Clone(r.Headers),
		Features:     slices.Clone(r.Features),
		Projects:     slices.Clone(r.Projects),
		Context:      r.EvalContext,
		User:         r.EvalUser,
		BodyTemplate: r.BodyTemplate,
		Enabled:      r.Enabled,
		Secret:       r.Secret,
		Rights:       rights,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func newDeliveryRecord(row core.DeliveryAttempt) *deliveryRecord {
	return &deliveryRecord{
		ID:             row.ID,
		WebhookID:      row.WebhookID,
		EventID:        row.EventID,
		TenantID:       row.TenantID,
		FeatureID:      row.FeatureID,
		Payload:        slices.Clone(row.Payload),
		ContentType:    row.ContentType,
		Status:         string(row.Status),
		Attempts:       row.Attempts,
		NextAttemptAt:  row.NextAttemptAt.UTC(),
		LastError:      row.LastError,
		LastStatusCode: row.LastStatusCode,
		FailureKind:    string(row.FailureKind),
		ClaimOwner:     row.ClaimOwner,
		ClaimExpiresAt: copyTimePointer(row.ClaimExpiresAt),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		CompletedAt:    copyTimePointer(row.CompletedAt),
	}
}

func (r *deliveryRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:             r.ID,
		WebhookID:      r.WebhookID,
		EventID:        r.EventID,
		TenantID:       r.TenantID,
		FeatureID:      r.FeatureID,
		Payload:        slices.Clone(r.Payload),
		ContentType:    r.ContentType,
		Status:         core.DeliveryStatus(r.Status),
		Attempts:       r.Attempts,
		NextAttemptAt:  r.NextAttemptAt.UTC(),
		LastError:      r.LastError,
		LastStatusCode: r.LastStatusCode,
		FailureKind:    core.FailureKind(r.FailureKind),
		ClaimOwner:     r.ClaimOwner,
		ClaimExpiresAt: copyTimePointer(r.ClaimExpiresAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		CompletedAt:    copyTimePointer(r.CompletedAt),
	}
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
