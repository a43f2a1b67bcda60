package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLFileConfigLoader reads a YAML config file into the raw map consumed by
// CfgxConfigProvider. Duration strings ("1s", "5m") are parsed up front.
type YAMLFileConfigLoader struct {
	Path string
	// Optional selects a missing file as an empty config instead of an error.
	Optional bool
}

func NewYAMLFileConfigLoader(path string) *YAMLFileConfigLoader {
	return &YAMLFileConfigLoader{Path: path}
}

func (l *YAMLFileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	content, err := os.ReadFile(l.Path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", l.Path, err)
	}
	return ParseYAMLConfig(content)
}

// ParseYAMLConfig decodes YAML into a raw config map.
func ParseYAMLConfig(content []byte) (map[string]any, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("core: decode yaml config: %w", err)
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

var durationKeySuffixes = []string{"_delay", "_interval", "_duration", "_timeout"}

func normalizeDurations(values map[string]any) error {
	for key, value := range values {
		switch typed := value.(type) {
		case map[string]any:
			if err := normalizeDurations(typed); err != nil {
				return err
			}
		case string:
			if !isDurationKey(key) {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(typed))
			if err != nil {
				return fmt.Errorf("core: config key %q: %w", key, err)
			}
			values[key] = parsed
		}
	}
	return nil
}

func isDurationKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, suffix := range durationKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

var _ RawConfigLoader = (*YAMLFileConfigLoader)(nil)
