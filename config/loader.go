package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/mavrouter/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAVROUTER"

// Loader merges configuration layers over the defaults and applies
// environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{validation: true, envPrefix: EnvPrefix}
}

// AddLayer adds a JSON file. Later layers override earlier ones key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns validation of the merged result on or off.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads defaults plus a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "read "+path)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRawJSON reads a file into a generic map with duration strings
// converted to nanoseconds.
func loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// durationKeys lists the duration fields by their path in the JSON document.
var durationKeys = [][]string{
	{"heartbeat_interval"},
	{"nats", "reconnect_wait"},
	{"nats", "dial_timeout"},
	{"nats", "ping_interval"},
	{"nats", "drain_timeout"},
	{"http", "stale_after"},
}

// parseDurations replaces "1s"-style strings at the known duration paths
// with nanosecond counts.
func parseDurations(raw map[string]any) error {
	for _, path := range durationKeys {
		parent := raw
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		leaf := path[len(path)-1]
		s, ok := parent[leaf].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		parent[leaf] = d.Nanoseconds()
	}
	return nil
}

// mergeFromMap overrides only the fields present in override.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps merges override into base. Nested objects merge key by key;
// anything else in override replaces the base value. Nulls are ignored.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides reads <prefix>_NATS_URL, _NATS_TOKEN, _STORE_PATH and
// _HTTP_ADDR. Setting the NATS URL also enables NATS.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val, ok := envString(l.envPrefix + "_NATS_URL"); ok {
		cfg.NATS.URL = val
		cfg.NATS.Enabled = true
	}
	if val, ok := envString(l.envPrefix + "_NATS_TOKEN"); ok {
		cfg.NATS.Token = val
	}
	if val, ok := envString(l.envPrefix + "_STORE_PATH"); ok {
		cfg.Store.Path = val
	}
	if val, ok := envString(l.envPrefix + "_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = val
	}
}
