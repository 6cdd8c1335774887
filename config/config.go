package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/link"
)

// Store kinds
const (
	StoreFile = "file" // YAML file on local disk
	StoreKV   = "kv"   // NATS JetStream key-value bucket
	StoreNone = "none" // links are not persisted
)

// Config is the complete application configuration.
type Config struct {
	Operator          OperatorConfig    `json:"operator"`
	HeartbeatInterval time.Duration     `json:"heartbeat_interval" validate:"gte=0"`
	Store             StoreConfig       `json:"store"`
	NATS              NATSConfig        `json:"nats"`
	HTTP              HTTPConfig        `json:"http"`
	Reader            link.ReaderConfig `json:"reader"` // default for links added without one
}

// OperatorConfig is the identity this router speaks as when it sends
// heartbeats and commands.
type OperatorConfig struct {
	SystemID    uint8 `json:"system_id" validate:"gte=1"`
	ComponentID uint8 `json:"component_id"`
}

// StoreConfig selects where link settings are persisted.
type StoreConfig struct {
	Kind   string `json:"kind" validate:"oneof=file kv none"`
	Path   string `json:"path,omitempty"`
	Bucket string `json:"bucket,omitempty"`
}

// NATSConfig defines the NATS connection and event bridge.
type NATSConfig struct {
	Enabled        bool          `json:"enabled"`
	URL            string        `json:"url,omitempty"`
	Name           string        `json:"name,omitempty"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	Token          string        `json:"token,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty" validate:"gte=0"`
	ConnectRetries int           `json:"connect_retries,omitempty" validate:"gte=0,lte=100"`
	DialTimeout    time.Duration `json:"dial_timeout,omitempty" validate:"gte=0"`
	PingInterval   time.Duration `json:"ping_interval,omitempty" validate:"gte=0"`
	DrainTimeout   time.Duration `json:"drain_timeout,omitempty" validate:"gte=0"`
	SubjectPrefix  string        `json:"subject_prefix,omitempty"`
	IncludePayload bool          `json:"include_payload,omitempty"`
	AcceptCommands bool          `json:"accept_commands,omitempty"`
}

// HTTPConfig defines the REST, websocket and metrics gateway.
type HTTPConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// StaleAfter reports an open link as degraded after this much silence.
	StaleAfter time.Duration `json:"stale_after,omitempty" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Operator:          OperatorConfig{SystemID: 255, ComponentID: 190},
		HeartbeatInterval: time.Second,
		Store:             StoreConfig{Kind: StoreFile, Path: "mavrouter-links.yaml", Bucket: "mavrouter_links"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "mavrouter",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			PingInterval:  30 * time.Second,
			DrainTimeout:  10 * time.Second,
			SubjectPrefix: "mavrouter",
		},
		HTTP:   HTTPConfig{Enabled: true, Addr: ":8080", StaleAfter: 10 * time.Second},
		Reader: link.DefaultReaderConfig(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the combinations that tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Config", "Validate", "field validation")
	}

	switch c.Store.Kind {
	case StoreFile:
		if c.Store.Path == "" {
			return invalid("store.path is required for the file store")
		}
	case StoreKV:
		if !c.NATS.Enabled {
			return invalid("the kv store needs nats.enabled")
		}
		if !isValidSubjectToken(c.Store.Bucket) {
			return invalid(fmt.Sprintf("store.bucket %q is not a valid bucket name", c.Store.Bucket))
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when nats is enabled")
		}
		if !isValidSubjectToken(c.NATS.SubjectPrefix) {
			return invalid(fmt.Sprintf("nats.subject_prefix %q is not a valid subject token", c.NATS.SubjectPrefix))
		}
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return invalid("http.addr is required when http is enabled")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
		"Config", "Validate", "semantic validation")
}

// isValidSubjectToken accepts letters, digits, dashes and underscores.
func isValidSubjectToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	copied.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	return &copied
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "marshal")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write")
	}
	return nil
}

// String returns the configuration as JSON with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, err := json.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// envString returns the environment value for key after basic checks.
func envString(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false
	}
	return val, true
}
