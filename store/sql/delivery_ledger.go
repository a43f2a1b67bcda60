package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const deliveryColumns = `
	id,
	webhook_id,
	event_id,
	tenant_id,
	feature_id,
	payload,
	content_type,
	status,
	attempts,
	next_attempt_at,
	last_error,
	last_status_code,
	failure_kind,
	claim_owner,
	claim_expires_at,
	created_at,
	updated_at,
	completed_at`

// DeliveryLedger persists delivery rows. Claims are taken with a conditional
// update so concurrent dispatchers never own the same row; on Postgres the
// candidate scan also skips rows locked by another claimer.
type DeliveryLedger struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryLedger(db *bun.DB) (*DeliveryLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryLedger{db: db, repo: repo}, nil
}

func (l *DeliveryLedger) Insert(ctx context.Context, in core.InsertDeliveryInput) (core.DeliveryAttempt, bool, error) {
	if l == nil || l.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	row, err := core.NewDeliveryRow(in)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	record := newDeliveryRecord(row)
	res, err := l.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		existing, getErr := l.Get(ctx, row.ID)
		if getErr != nil {
			return core.DeliveryAttempt{}, false, getErr
		}
		return existing, false, nil
	}
	return row, true, nil
}

func (l *DeliveryLedger) ClaimBatch(ctx context.Context, req core.ClaimRequest) ([]core.DeliveryAttempt, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	req, err := core.NormalizeClaimRequest(req)
	if err != nil {
		return nil, err
	}
	expiresAt := req.Now.Add(req.Lease)

	lockClause := ""
	if l.db.Dialect().Name() == dialect.PG {
		lockClause = "FOR UPDATE SKIP LOCKED"
	}

	var records []deliveryRecord
	err = l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimable AS (
	SELECT id
	FROM featurehooks_deliveries
	WHERE next_attempt_at <= ?
	  AND (status = ? OR (status = ? AND claim_expires_at <= ?))
	ORDER BY next_attempt_at ASC, created_at ASC
	LIMIT ?
	` + lockClause + `
)
UPDATE featurehooks_deliveries
SET status = ?, claim_owner = ?, claim_expires_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimable)
  AND next_attempt_at <= ?
  AND (status = ? OR (status = ? AND claim_expires_at <= ?))
RETURNING` + deliveryColumns
		return tx.NewRaw(
			query,
			req.Now,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusInFlight),
			req.Now,
			req.Limit,
			string(core.DeliveryStatusInFlight),
			req.InstanceID,
			expiresAt,
			req.Now,
			req.Now,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusInFlight),
			req.Now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	claimed := make([]core.DeliveryAttempt, 0, len(records))
	for i := range records {
		claimed = append(claimed, records[i].toDomain())
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		if claimed[i].NextAttemptAt.Equal(claimed[j].NextAttemptAt) {
			return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
		}
		return claimed[i].NextAttemptAt.Before(claimed[j].NextAttemptAt)
	})
	return claimed, nil
}

func (l *DeliveryLedger) Complete(ctx context.Context, in core.DeliveryCompletion) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	if err := core.ValidateCompletion(in); err != nil {
		return err
	}
	id := strings.TrimSpace(in.ID)
	owner := strings.TrimSpace(in.InstanceID)

	return l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &deliveryRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.NotFoundError(core.ErrDeliveryNotFound, "sqlstore: complete delivery")
			}
			return err
		}
		if current.Status != string(core.DeliveryStatusInFlight) || current.ClaimOwner != owner {
			return core.LedgerContentionError(id, owner)
		}

		next := newDeliveryRecord(core.ApplyCompletion(current.toDomain(), in))
		res, err := tx.NewUpdate().
			Model(next).
			Column(
				"status",
				"attempts",
				"next_attempt_at",
				"last_error",
				"last_status_code",
				"failure_kind",
				"claim_owner",
				"claim_expires_at",
				"updated_at",
				"completed_at",
			).
			Where("id = ?", id).
			Where("status = ?", string(core.DeliveryStatusInFlight)).
			Where("claim_owner = ?", owner).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return core.LedgerContentionError(id, owner)
		}
		return nil
	})
}

func (l *DeliveryLedger) Get(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if l == nil || l.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	record := &deliveryRecord{}
	err := l.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryAttempt{}, core.NotFoundError(core.ErrDeliveryNotFound, "sqlstore: get delivery")
		}
		return core.DeliveryAttempt{}, err
	}
	return record.toDomain(), nil
}

func (l *DeliveryLedger) List(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if l == nil || l.repo == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id ASC"),
	}
	if webhookID := strings.TrimSpace(filter.WebhookID); webhookID != "" {
		selectors = append(selectors, repository.SelectBy("webhook_id", "=", webhookID))
	}
	if eventID := strings.TrimSpace(filter.EventID); eventID != "" {
		selectors = append(selectors, repository.SelectBy("event_id", "=", eventID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status IN (?)", bun.In(statuses))
		}))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, max(filter.Offset, 0)))
	} else if filter.Offset > 0 {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Offset(filter.Offset)
		}))
	}

	records, total, err := l.repo.List(ctx, selectors...)
	if err != nil {
		return core.DeliveryPage{}, err
	}
	items := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeliveryPage{Items: items, Total: total}, nil
}

type statusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

func (l *DeliveryLedger) Stats(ctx context.Context, webhookID string) (core.DeliveryStats, error) {
	if l == nil || l.db == nil {
		return core.DeliveryStats{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	webhookID = strings.TrimSpace(webhookID)
	stats := core.DeliveryStats{WebhookID: webhookID}

	scoped := func(q *bun.SelectQuery) *bun.SelectQuery {
		if webhookID != "" {
			q = q.Where("?TableAlias.webhook_id = ?", webhookID)
		}
		return q
	}

	var counts []statusCount
	err := scoped(l.db.NewSelect().
		Model((*deliveryRecord)(nil)).
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("COUNT(*) AS count")).
		GroupExpr("?TableAlias.status").
		Scan(ctx, &counts)
	if err != nil {
		return core.DeliveryStats{}, err
	}
	for _, count := range counts {
		switch core.DeliveryStatus(count.Status) {
		case core.DeliveryStatusPending:
			stats.Pending = count.Count
		case core.DeliveryStatusInFlight:
			stats.InFlight = count.Count
		case core.DeliveryStatusSucceeded:
			stats.Succeeded = count.Count
		case core.DeliveryStatusFailedTerminal:
			stats.FailedTerminal = count.Count
		}
	}

	renderFailures, err := scoped(l.db.NewSelect().
		Model((*deliveryRecord)(nil)).
		Where("?TableAlias.status = ?", string(core.DeliveryStatusFailedTerminal)).
		Where("?TableAlias.failure_kind = ?", string(core.FailureKindRender))).
		Count(ctx)
	if err != nil {
		return core.DeliveryStats{}, err
	}
	stats.RenderFailures = renderFailures

	latest := &deliveryRecord{}
	err = scoped(l.db.NewSelect().
		Model(latest).
		Where("?TableAlias.last_error <> ''")).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return core.DeliveryStats{}, err
	default:
		updatedAt := latest.UpdatedAt.UTC()
		stats.LastError = latest.LastError
		stats.LastErrorAt = &updatedAt
	}
	return stats, nil
}

func (l *DeliveryLedger) Requeue(ctx context.Context, id string, now time.Time) (core.DeliveryAttempt, error) {
	if l == nil || l.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	id = strings.TrimSpace(id)
	var requeued core.DeliveryAttempt
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &deliveryRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.NotFoundError(core.ErrDeliveryNotFound, "sqlstore: requeue delivery")
			}
			return err
		}
		if current.Status != string(core.DeliveryStatusFailedTerminal) {
			return core.BadInputError("status", "only failed_terminal deliveries can be requeued")
		}
		requeued = core.ApplyRequeue(current.toDomain(), now)
		res, err := tx.NewUpdate().
			Model(newDeliveryRecord(requeued)).
			Column(
				"status",
				"attempts",
				"next_attempt_at",
				"failure_kind",
				"claim_owner",
				"claim_expires_at",
				"updated_at",
				"completed_at",
			).
			Where("id = ?", id).
			Where("status = ?", string(core.DeliveryStatusFailedTerminal)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return core.BadInputError("status", "only failed_terminal deliveries can be requeued")
		}
		return nil
	})
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	return requeued, nil
}

var _ core.DeliveryLedger = (*DeliveryLedger)(nil)
