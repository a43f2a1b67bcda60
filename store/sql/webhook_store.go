package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-featurehooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookStore struct {
	db      *bun.DB
	repo    repository.Repository[*webhookRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

type WebhookStoreOption func(*WebhookStore)

// WithSecretProvider seals the signing secret column on write and opens it on
// read.
func WithSecretProvider(provider core.SecretProvider) WebhookStoreOption {
	return func(s *WebhookStore) {
		s.secrets = provider
	}
}

func NewWebhookStore(db *bun.DB, opts ...WebhookStoreOption) (*WebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	store := &WebhookStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *WebhookStore) Upsert(ctx context.Context, hook core.Webhook) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	hook = core.NormalizeWebhook(hook)
	if err := core.ValidateWebhook(hook); err != nil {
		return core.Webhook{}, err
	}
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	now := s.now()
	sealedSecret, err := s.sealSecret(ctx, hook.Secret)
	if err != nil {
		return core.Webhook{}, err
	}

	var saved *webhookRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findWebhookTx(ctx, tx, hook.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			hook.CreatedAt = existing.CreatedAt
		} else if hook.CreatedAt.IsZero() {
			hook.CreatedAt = now
		}
		hook.UpdatedAt = now
		saved = newWebhookRecord(hook)
		saved.Secret = sealedSecret

		if existing == nil {
			_, err = tx.NewInsert().Model(saved).Exec(ctx)
		} else {
			_, err = tx.NewUpdate().
				Model(saved).
				WherePK().
				Exec(ctx)
		}
		if err != nil {
			return err
		}
		// return what the column types kept, not the in-memory timestamps
		persisted, err := findWebhookTx(ctx, tx, hook.ID)
		if err != nil {
			return err
		}
		if persisted == nil {
			return fmt.Errorf("sqlstore: webhook %q missing after write", hook.ID)
		}
		saved = persisted
		return nil
	})
	if err != nil {
		return core.Webhook{}, err
	}
	out := saved.toDomain()
	out.Secret = hook.Secret
	return out, nil
}

func (s *WebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	record := &webhookRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Webhook{}, core.NotFoundError(core.ErrWebhookNotFound, fmt.Sprintf("sqlstore: webhook %q not found", id))
		}
		return core.Webhook{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*webhookRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.NotFoundError(core.ErrWebhookNotFound, fmt.Sprintf("sqlstore: webhook %q not found", id))
	}
	return nil
}

func (s *WebhookStore) List(ctx context.Context, tenantID string) ([]core.Webhook, error) {
	return s.list(ctx, tenantID, false)
}

// ListEnabled narrows by tenant and enabled flag in SQL; feature and project
// membership is matched by the caller.
func (s *WebhookStore) ListEnabled(ctx context.Context, tenantID string) ([]core.Webhook, error) {
	return s.list(ctx, tenantID, true)
}

func (s *WebhookStore) list(ctx context.Context, tenantID string, enabledOnly bool) ([]core.Webhook, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("id ASC"),
	}
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if enabledOnly {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.enabled = ?", true)
		}))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		hook, err := s.toDomain(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, hook)
	}
	return out, nil
}

func (s *WebhookStore) toDomain(ctx context.Context, record *webhookRecord) (core.Webhook, error) {
	hook := record.toDomain()
	secret, err := s.openSecret(ctx, hook.Secret)
	if err != nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: open secret of webhook %q: %w", hook.ID, err)
	}
	hook.Secret = secret
	return hook, nil
}

func (s *WebhookStore) sealSecret(ctx context.Context, secret string) (string, error) {
	if s.secrets == nil || secret == "" {
		return secret, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(secret))
	if err != nil {
		return "", fmt.Errorf("sqlstore: seal webhook secret: %w", err)
	}
	return string(sealed), nil
}

// openSecret passes plaintext rows through when the provider can tell sealed
// values apart, so sealing can be enabled on an existing table.
func (s *WebhookStore) openSecret(ctx context.Context, stored string) (string, error) {
	if s.secrets == nil || stored == "" {
		return stored, nil
	}
	if detector, ok := s.secrets.(interface{ IsSealed([]byte) bool }); ok && !detector.IsSealed([]byte(stored)) {
		return stored, nil
	}
	opened, err := s.secrets.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", err
	}
	return string(opened), nil
}

func findWebhookTx(ctx context.Context, tx bun.Tx, id string) (*webhookRecord, error) {
	record := &webhookRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

var _ core.WebhookStore = (*WebhookStore)(nil)
