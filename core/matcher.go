package core

import "strings"

// Matches reports whether the hook subscribes to the event: it must be
// enabled and list the event's feature or project. Change kind is ignored.
func Matches(event ChangeEvent, hook Webhook) bool {
	if !hook.Enabled {
		return false
	}
	if tenant := strings.TrimSpace(hook.TenantID); tenant != "" && tenant != strings.TrimSpace(event.TenantID) {
		return false
	}
	return containsTrimmed(hook.Features, event.FeatureID) || containsTrimmed(hook.Projects, event.ProjectID)
}

// Match returns the ids of hooks that subscribe to the event, in input order.
// A hook listed twice, or matching by both feature and project, appears once.
func Match(event ChangeEvent, hooks []Webhook) []string {
	matched := make([]string, 0, len(hooks))
	seen := make(map[string]struct{}, len(hooks))
	for _, hook := range hooks {
		id := strings.TrimSpace(hook.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if !Matches(event, hook) {
			continue
		}
		seen[id] = struct{}{}
		matched = append(matched, id)
	}
	return matched
}

func containsTrimmed(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}
