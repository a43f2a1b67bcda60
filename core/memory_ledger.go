package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryDeliveryLedger is a single-process ledger. All state changes happen
// under one mutex, which gives ClaimBatch and Complete the same atomicity the
// SQL ledger gets from conditional updates.
type MemoryDeliveryLedger struct {
	mu   sync.Mutex
	rows map[string]DeliveryAttempt
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{rows: map[string]DeliveryAttempt{}}
}

func (l *MemoryDeliveryLedger) Insert(_ context.Context, in InsertDeliveryInput) (DeliveryAttempt, bool, error) {
	if l == nil {
		return DeliveryAttempt{}, false, fmt.Errorf("core: memory ledger is nil")
	}
	row, err := NewDeliveryRow(in)
	if err != nil {
		return DeliveryAttempt{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.rows[row.ID]; ok {
		return cloneDelivery(existing), false, nil
	}
	l.rows[row.ID] = row
	return cloneDelivery(row), true, nil
}

func (l *MemoryDeliveryLedger) ClaimBatch(_ context.Context, req ClaimRequest) ([]DeliveryAttempt, error) {
	if l == nil {
		return nil, fmt.Errorf("core: memory ledger is nil")
	}
	req, err := NormalizeClaimRequest(req)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	candidates := make([]DeliveryAttempt, 0)
	for _, row := range l.rows {
		if row.Claimable(req.Now) {
			candidates = append(candidates, row)
		}
	}
	sortByNextAttempt(candidates)
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	expiresAt := req.Now.Add(req.Lease)
	claimed := make([]DeliveryAttempt, 0, len(candidates))
	for _, row := range candidates {
		row.Status = DeliveryStatusInFlight
		row.ClaimOwner = req.InstanceID
		row.ClaimExpiresAt = &expiresAt
		row.UpdatedAt = req.Now
		l.rows[row.ID] = row
		claimed = append(claimed, cloneDelivery(row))
	}
	return claimed, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, in DeliveryCompletion) error {
	if l == nil {
		return fmt.Errorf("core: memory ledger is nil")
	}
	if err := ValidateCompletion(in); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[strings.TrimSpace(in.ID)]
	if !ok {
		return NotFoundError(ErrDeliveryNotFound, "core: complete delivery")
	}
	if row.Status != DeliveryStatusInFlight || row.ClaimOwner != strings.TrimSpace(in.InstanceID) {
		return LedgerContentionError(in.ID, in.InstanceID)
	}
	l.rows[row.ID] = ApplyCompletion(row, in)
	return nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, id string) (DeliveryAttempt, error) {
	if l == nil {
		return DeliveryAttempt{}, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[strings.TrimSpace(id)]
	if !ok {
		return DeliveryAttempt{}, NotFoundError(ErrDeliveryNotFound, "core: get delivery")
	}
	return cloneDelivery(row), nil
}

func (l *MemoryDeliveryLedger) List(_ context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	if l == nil {
		return DeliveryPage{}, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.Lock()
	items := make([]DeliveryAttempt, 0)
	for _, row := range l.rows {
		if matchesDeliveryFilter(row, filter) {
			items = append(items, cloneDelivery(row))
		}
	}
	l.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	total := len(items)
	offset := max(filter.Offset, 0)
	if offset > total {
		offset = total
	}
	items = items[offset:]
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return DeliveryPage{Items: items, Total: total}, nil
}

func (l *MemoryDeliveryLedger) Stats(_ context.Context, webhookID string) (DeliveryStats, error) {
	if l == nil {
		return DeliveryStats{}, fmt.Errorf("core: memory ledger is nil")
	}
	webhookID = strings.TrimSpace(webhookID)
	stats := DeliveryStats{WebhookID: webhookID}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		if webhookID != "" && row.WebhookID != webhookID {
			continue
		}
		accumulateStats(&stats, row)
	}
	return stats, nil
}

func (l *MemoryDeliveryLedger) Requeue(_ context.Context, id string, now time.Time) (DeliveryAttempt, error) {
	if l == nil {
		return DeliveryAttempt{}, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[strings.TrimSpace(id)]
	if !ok {
		return DeliveryAttempt{}, NotFoundError(ErrDeliveryNotFound, "core: requeue delivery")
	}
	if row.Status != DeliveryStatusFailedTerminal {
		return DeliveryAttempt{}, BadInputError("status", "only failed_terminal deliveries can be requeued")
	}
	row = ApplyRequeue(row, now)
	l.rows[row.ID] = row
	return cloneDelivery(row), nil
}

func NewDeliveryRow(in InsertDeliveryInput) (DeliveryAttempt, error) {
	webhookID := strings.TrimSpace(in.WebhookID)
	eventID := strings.TrimSpace(in.EventID)
	if webhookID == "" {
		return DeliveryAttempt{}, BadInputError("webhook_id", "webhook id is required")
	}
	if eventID == "" {
		return DeliveryAttempt{}, BadInputError("event_id", "event id is required")
	}
	now := in.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	status := in.Status
	if status == "" {
		status = DeliveryStatusPending
	}
	if status != DeliveryStatusPending && status != DeliveryStatusFailedTerminal {
		return DeliveryAttempt{}, BadInputError("status", "deliveries are inserted as pending or failed_terminal")
	}
	row := DeliveryAttempt{
		ID:            DeliveryID(webhookID, eventID),
		WebhookID:     webhookID,
		EventID:       eventID,
		TenantID:      strings.TrimSpace(in.TenantID),
		FeatureID:     strings.TrimSpace(in.FeatureID),
		Payload:       slices.Clone(in.Payload),
		ContentType:   strings.TrimSpace(in.ContentType),
		Status:        status,
		NextAttemptAt: now,
		LastError:     strings.TrimSpace(in.LastError),
		FailureKind:   in.FailureKind,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status == DeliveryStatusFailedTerminal {
		row.CompletedAt = &now
	}
	return row, nil
}

func NormalizeClaimRequest(req ClaimRequest) (ClaimRequest, error) {
	req.InstanceID = strings.TrimSpace(req.InstanceID)
	if req.InstanceID == "" {
		return req, BadInputError("instance_id", "instance id is required to claim deliveries")
	}
	if req.Lease <= 0 {
		return req, BadInputError("lease", "claim lease must be positive")
	}
	if req.Limit <= 0 {
		req.Limit = 1
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	req.Now = req.Now.UTC()
	return req, nil
}

func ValidateCompletion(in DeliveryCompletion) error {
	if strings.TrimSpace(in.ID) == "" {
		return BadInputError("id", "delivery id is required")
	}
	if strings.TrimSpace(in.InstanceID) == "" {
		return BadInputError("instance_id", "instance id is required")
	}
	switch in.Outcome {
	case DeliveryOutcomeSuccess, DeliveryOutcomeTerminal:
	case DeliveryOutcomeRetryable:
		if in.NextAttemptAt.IsZero() {
			return BadInputError("next_attempt_at", "retryable completion needs a next attempt time")
		}
	default:
		return BadInputError("outcome", fmt.Sprintf("unknown delivery outcome %q", in.Outcome))
	}
	return nil
}

// ApplyCompletion is the shared state transition for a completed attempt.
func ApplyCompletion(row DeliveryAttempt, in DeliveryCompletion) DeliveryAttempt {
	now := in.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	row.Attempts++
	row.ClaimOwner = ""
	row.ClaimExpiresAt = nil
	row.UpdatedAt = now
	row.LastStatusCode = in.StatusCode
	switch in.Outcome {
	case DeliveryOutcomeSuccess:
		row.Status = DeliveryStatusSucceeded
		row.LastError = ""
		row.FailureKind = FailureKindNone
		row.CompletedAt = &now
	case DeliveryOutcomeRetryable:
		row.Status = DeliveryStatusPending
		row.NextAttemptAt = in.NextAttemptAt.UTC()
		row.LastError = strings.TrimSpace(in.Error)
		row.FailureKind = FailureKindDelivery
	case DeliveryOutcomeTerminal:
		row.Status = DeliveryStatusFailedTerminal
		row.LastError = strings.TrimSpace(in.Error)
		row.FailureKind = in.FailureKind
		if row.FailureKind == FailureKindNone {
			row.FailureKind = FailureKindDelivery
		}
		row.CompletedAt = &now
	}
	return row
}

func ApplyRequeue(row DeliveryAttempt, now time.Time) DeliveryAttempt {
	now = now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	row.Status = DeliveryStatusPending
	row.Attempts = 0
	row.NextAttemptAt = now
	row.FailureKind = FailureKindNone
	row.ClaimOwner = ""
	row.ClaimExpiresAt = nil
	row.CompletedAt = nil
	row.UpdatedAt = now
	return row
}

func matchesDeliveryFilter(row DeliveryAttempt, filter DeliveryFilter) bool {
	if id := strings.TrimSpace(filter.WebhookID); id != "" && row.WebhookID != id {
		return false
	}
	if id := strings.TrimSpace(filter.EventID); id != "" && row.EventID != id {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, row.Status) {
		return false
	}
	return true
}

func accumulateStats(stats *DeliveryStats, row DeliveryAttempt) {
	switch row.Status {
	case DeliveryStatusPending:
		stats.Pending++
	case DeliveryStatusInFlight:
		stats.InFlight++
	case DeliveryStatusSucceeded:
		stats.Succeeded++
	case DeliveryStatusFailedTerminal:
		stats.FailedTerminal++
		if row.FailureKind == FailureKindRender {
			stats.RenderFailures++
		}
	}
	if row.LastError == "" {
		return
	}
	if stats.LastErrorAt == nil || row.UpdatedAt.After(*stats.LastErrorAt) {
		updatedAt := row.UpdatedAt
		stats.LastErrorAt = &updatedAt
		stats.LastError = row.LastError
	}
}

// AccumulateStats folds a row into stats. Ledger implementations that cannot
// aggregate in storage use it.
func AccumulateStats(stats *DeliveryStats, row DeliveryAttempt) {
	if stats == nil {
		return
	}
	accumulateStats(stats, row)
}

func sortByNextAttempt(rows []DeliveryAttempt) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].NextAttemptAt.Equal(rows[j].NextAttemptAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].NextAttemptAt.Before(rows[j].NextAttemptAt)
	})
}

func cloneDelivery(row DeliveryAttempt) DeliveryAttempt {
	row.Payload = slices.Clone(row.Payload)
	if row.ClaimExpiresAt != nil {
		expiresAt := *row.ClaimExpiresAt
		row.ClaimExpiresAt = &expiresAt
	}
	if row.CompletedAt != nil {
		completedAt := *row.CompletedAt
		row.CompletedAt = &completedAt
	}
	return row
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
