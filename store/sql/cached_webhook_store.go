package sqlstore

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const webhookCacheKeyPrefix = "go-featurehooks::webhook::v1"

// CachedWebhookStore serves Get from the repository cache. The dispatcher
// resolves the hook for every claimed row, so reads dominate writes.
type CachedWebhookStore struct {
	base  core.WebhookStore
	cache repositorycache.CacheService
}

func NewCachedWebhookStore(base core.WebhookStore, cacheService repositorycache.CacheService) (*CachedWebhookStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook cache service is required")
	}
	return &CachedWebhookStore{base: base, cache: cacheService}, nil
}

// WebhookCacheKey returns go-featurehooks::webhook::v1::<id> with the id
// URL-path escaped.
func WebhookCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", core.BadInputError("id", "webhook id is required")
	}
	return webhookCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedWebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	cacheKey, err := WebhookCacheKey(id)
	if err != nil {
		return core.Webhook{}, err
	}
	hook, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Webhook, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(id))
		if fetchErr != nil {
			return core.Webhook{}, fetchErr
		}
		return cloneWebhook(fetched), nil
	})
	if err != nil {
		return core.Webhook{}, err
	}
	return cloneWebhook(hook), nil
}

func (s *CachedWebhookStore) Upsert(ctx context.Context, hook core.Webhook) (core.Webhook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	saved, err := s.base.Upsert(ctx, hook)
	if err != nil {
		return core.Webhook{}, err
	}
	if err := s.invalidate(ctx, saved.ID); err != nil {
		return core.Webhook{}, err
	}
	return saved, nil
}

func (s *CachedWebhookStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedWebhookStore) List(ctx context.Context, tenantID string) ([]core.Webhook, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	return s.base.List(ctx, tenantID)
}

func (s *CachedWebhookStore) ListEnabled(ctx context.Context, tenantID string) ([]core.Webhook, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	return s.base.ListEnabled(ctx, tenantID)
}

func (s *CachedWebhookStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := WebhookCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneWebhook(hook core.Webhook) core.Webhook {
	hook.Headers = maps.Clone(hook.Headers)
	hook.Features = slices.Clone(hook.Features)
	hook.Projects = slices.Clone(hook.Projects)
	hook.Rights = maps.Clone(hook.Rights)
	return hook
}

var _ core.WebhookStore = (*CachedWebhookStore)(nil)
