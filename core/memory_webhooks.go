package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryWebhookStore struct {
	mu    sync.RWMutex
	hooks map[string]Webhook
	now   func() time.Time
}

// NewMemoryWebhookStore returns a store seeded with hooks. It panics when a
// seed hook fails ValidateWebhook.
func NewMemoryWebhookStore(hooks ...Webhook) *MemoryWebhookStore {
	store := &MemoryWebhookStore{
		hooks: map[string]Webhook{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, hook := range hooks {
		if _, err := store.Upsert(context.Background(), hook); err != nil {
			panic(fmt.Sprintf("core: invalid seed webhook %q: %v", hook.ID, err))
		}
	}
	return store
}

func (s *MemoryWebhookStore) Upsert(_ context.Context, hook Webhook) (Webhook, error) {
	if s == nil {
		return Webhook{}, fmt.Errorf("core: memory webhook store is nil")
	}
	hook = NormalizeWebhook(hook)
	if err := ValidateWebhook(hook); err != nil {
		return Webhook{}, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	if existing, ok := s.hooks[hook.ID]; ok {
		hook.CreatedAt = existing.CreatedAt
	} else if hook.CreatedAt.IsZero() {
		hook.CreatedAt = now
	}
	hook.UpdatedAt = now
	s.hooks[hook.ID] = cloneWebhook(hook)
	return cloneWebhook(hook), nil
}

func (s *MemoryWebhookStore) Get(_ context.Context, id string) (Webhook, error) {
	if s == nil {
		return Webhook{}, fmt.Errorf("core: memory webhook store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hook, ok := s.hooks[strings.TrimSpace(id)]
	if !ok {
		return Webhook{}, NotFoundError(ErrWebhookNotFound, "core: get webhook")
	}
	return cloneWebhook(hook), nil
}

func (s *MemoryWebhookStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: memory webhook store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.hooks[id]; !ok {
		return NotFoundError(ErrWebhookNotFound, "core: delete webhook")
	}
	delete(s.hooks, id)
	return nil
}

func (s *MemoryWebhookStore) List(_ context.Context, tenantID string) ([]Webhook, error) {
	return s.list(tenantID, false)
}

func (s *MemoryWebhookStore) ListEnabled(_ context.Context, tenantID string) ([]Webhook, error) {
	return s.list(tenantID, true)
}

func (s *MemoryWebhookStore) list(tenantID string, enabledOnly bool) ([]Webhook, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory webhook store is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	s.mu.RLock()
	out := make([]Webhook, 0, len(s.hooks))
	for _, hook := range s.hooks {
		if tenantID != "" && hook.TenantID != tenantID {
			continue
		}
		if enabledOnly && !hook.Enabled {
			continue
		}
		out = append(out, cloneWebhook(hook))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// NormalizeWebhook trims identifiers and drops blank scope entries.
func NormalizeWebhook(hook Webhook) Webhook {
	hook.ID = strings.TrimSpace(hook.ID)
	hook.TenantID = strings.TrimSpace(hook.TenantID)
	hook.URL = strings.TrimSpace(hook.URL)
	hook.Name = strings.TrimSpace(hook.Name)
	hook.Context = strings.TrimSpace(hook.Context)
	hook.User = strings.TrimSpace(hook.User)
	hook.Features = compactStrings(hook.Features)
	hook.Projects = compactStrings(hook.Projects)
	return hook
}

func ValidateWebhook(hook Webhook) error {
	if hook.Name == "" {
		return BadInputError("name", "webhook name is required")
	}
	if hook.URL == "" {
		return BadInputError("url", "webhook url is required")
	}
	if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
		return BadInputError("url", "webhook url must be http or https")
	}
	if len(hook.Features) == 0 && len(hook.Projects) == 0 {
		return BadInputError("features", "webhook must list at least one feature or project")
	}
	for principal, right := range hook.Rights {
		if right.rank() == 0 {
			return BadInputError("rights", fmt.Sprintf("unknown right %q for %q", right, principal))
		}
	}
	return nil
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

func cloneWebhook(hook Webhook) Webhook {
	hook.Headers = maps.Clone(hook.Headers)
	hook.Rights = maps.Clone(hook.Rights)
	hook.Features = slices.Clone(hook.Features)
	hook.Projects = slices.Clone(hook.Projects)
	return hook
}

var _ WebhookStore = (*MemoryWebhookStore)(nil)
