package pipeline

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"
)

// Config holds named values made available to actions. Keys may address
// nested maps with slashes, e.g. "model/lr".
type Config map[string]any

// Get looks key up, descending into nested maps for slash separated keys.
func (c Config) Get(key string) (any, bool) {
	if v, ok := c[key]; ok {
		return v, true
	}
	parts := strings.Split(key, "/")
	var cur any = map[string]any(c)
	for _, part := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetDefault returns the value for key or def when it is absent.
func (c Config) GetDefault(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Merge returns a new config holding c overlaid with other. Nested maps are
// merged recursively; on any other conflict other wins. Neither input is
// modified.
func (c Config) Merge(other Config) Config {
	if c == nil && other == nil {
		return nil
	}
	out := make(Config, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		if nv, ok := asMap(v); ok {
			if ov, ok := asMap(out[k]); ok {
				out[k] = map[string]any(Config(ov).Merge(nv))
				continue
			}
			out[k] = maps.Clone(nv)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Config:
		return m, true
	}
	return nil, false
}

// LoadConfig reads a JSON object from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return cfg, nil
}
