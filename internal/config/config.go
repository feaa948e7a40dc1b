// ABOUTME: Configuration loading and parsing for pillarclient
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/pillarclient/internal/client"
	"github.com/2389/pillarclient/internal/mediator"
	"github.com/2389/pillarclient/internal/message"
)

const (
	defaultIdentifyTimeout  = 10 * time.Second
	defaultOperationTimeout = time.Minute
	defaultBusAddress       = "localhost:50061"
)

// Config represents the complete pillarclient configuration
type Config struct {
	Collection CollectionConfig `yaml:"collection" toml:"collection"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts" toml:"timeouts"`
	Mediator   MediatorConfig   `yaml:"mediator" toml:"mediator"`
	Bus        BusConfig        `yaml:"bus" toml:"bus"`
	Security   SecurityConfig   `yaml:"security" toml:"security"`
	Ledger     LedgerConfig     `yaml:"ledger" toml:"ledger"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Pillars    []PillarConfig   `yaml:"pillars" toml:"pillars"`
}

// CollectionConfig identifies the collection and its contributors
type CollectionConfig struct {
	ID                        string   `yaml:"id" toml:"id"`
	ClientID                  string   `yaml:"client_id" toml:"client_id"`
	ReplyTo                   string   `yaml:"reply_to" toml:"reply_to"`
	Destination               string   `yaml:"destination" toml:"destination"`
	Contributors              []string `yaml:"contributors" toml:"contributors"`
	TolerateComponentFailures bool     `yaml:"tolerate_component_failures" toml:"tolerate_component_failures"`
}

// PhaseTimeouts holds the identify and operation timeouts of one operation
type PhaseTimeouts struct {
	Identify  time.Duration `yaml:"-" toml:"-"`
	Operation time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IdentifyRaw  string `yaml:"identify" toml:"identify"`
	OperationRaw string `yaml:"operation" toml:"operation"`
}

// TimeoutsConfig holds default timeouts and per-operation overrides keyed
// by operation name (PutFile, GetChecksums, ...)
type TimeoutsConfig struct {
	PhaseTimeouts `yaml:",inline"`

	Overrides map[string]PhaseTimeouts `yaml:"overrides" toml:"overrides"`
}

// MediatorConfig holds conversation routing configuration
type MediatorConfig struct {
	ConversationTimeout time.Duration `yaml:"-" toml:"-"`
	CleanupInterval     time.Duration `yaml:"-" toml:"-"`
	DedupeTTL           time.Duration `yaml:"-" toml:"-"`
	DedupeSize          int           `yaml:"dedupe_size" toml:"dedupe_size"`

	ConversationTimeoutRaw string `yaml:"conversation_timeout" toml:"conversation_timeout"`
	CleanupIntervalRaw     string `yaml:"cleanup_interval" toml:"cleanup_interval"`
	DedupeTTLRaw           string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// BusConfig holds message bus configuration
type BusConfig struct {
	// Address is the gRPC bus server clients and pillars dial.
	Address string `yaml:"address" toml:"address"`
	// ListenAddr is where the bus command serves. Defaults to Address.
	ListenAddr     string        `yaml:"listen_addr" toml:"listen_addr"`
	PublishRate    float64       `yaml:"publish_rate" toml:"publish_rate"`
	PublishBurst   int           `yaml:"publish_burst" toml:"publish_burst"`
	ReconnectDelay time.Duration `yaml:"-" toml:"-"`

	ReconnectDelayRaw string `yaml:"reconnect_delay" toml:"reconnect_delay"`
}

// SecurityConfig holds message signing configuration
type SecurityConfig struct {
	Secret string `yaml:"secret" toml:"secret"`
	// SignMessages signs and verifies every message on the bus.
	SignMessages bool `yaml:"sign_messages" toml:"sign_messages"`
	// RequireToken makes the bus server require a bearer token.
	RequireToken bool `yaml:"require_token" toml:"require_token"`
}

// LedgerConfig holds the event ledger configuration. An empty path
// disables the ledger.
type LedgerConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// PillarConfig describes a simulated pillar run by the pillar and demo commands
type PillarConfig struct {
	ID               string        `yaml:"id" toml:"id"`
	Delay            time.Duration `yaml:"-" toml:"-"`
	TimeToDeliver    time.Duration `yaml:"-" toml:"-"`
	Silent           bool          `yaml:"silent" toml:"silent"`
	FailWith         string        `yaml:"fail_with" toml:"fail_with"`
	CorruptChecksums bool          `yaml:"corrupt_checksums" toml:"corrupt_checksums"`

	DelayRaw         string `yaml:"delay" toml:"delay"`
	TimeToDeliverRaw string `yaml:"time_to_deliver" toml:"time_to_deliver"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Collection: CollectionConfig{ID: "default", ClientID: "pillarclient"},
	}
	// Defaults always parse and validate.
	_ = cfg.finish()
	return cfg
}

func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Timeouts.IdentifyRaw == "" {
		c.Timeouts.Identify = defaultIdentifyTimeout
	}
	if c.Timeouts.OperationRaw == "" {
		c.Timeouts.Operation = defaultOperationTimeout
	}
	for op, t := range c.Timeouts.Overrides {
		if t.IdentifyRaw == "" {
			t.Identify = c.Timeouts.Identify
		}
		if t.OperationRaw == "" {
			t.Operation = c.Timeouts.Operation
		}
		c.Timeouts.Overrides[op] = t
	}
	if c.Bus.Address == "" {
		c.Bus.Address = defaultBusAddress
	}
	if c.Bus.ListenAddr == "" {
		c.Bus.ListenAddr = c.Bus.Address
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Collection.ID == "" {
		return fmt.Errorf("collection.id is required")
	}
	if c.Collection.ClientID == "" {
		return fmt.Errorf("collection.client_id is required")
	}
	seen := make(map[string]bool)
	for _, id := range c.Collection.Contributors {
		if id == "" {
			return fmt.Errorf("collection.contributors must not contain empty ids")
		}
		if seen[id] {
			return fmt.Errorf("collection.contributors lists %q twice", id)
		}
		seen[id] = true
	}

	for op := range c.Timeouts.Overrides {
		if _, err := message.ParseOperation(op); err != nil {
			return fmt.Errorf("timeouts.overrides: %w", err)
		}
	}

	if c.Security.SignMessages && c.Security.Secret == "" {
		return fmt.Errorf("security.secret is required when sign_messages is enabled")
	}
	if c.Security.RequireToken && c.Security.Secret == "" {
		return fmt.Errorf("security.secret is required when require_token is enabled")
	}

	if c.Bus.PublishRate < 0 {
		return fmt.Errorf("bus.publish_rate must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	pillarIDs := make(map[string]bool)
	for i, p := range c.Pillars {
		if p.ID == "" {
			return fmt.Errorf("pillars[%d].id is required", i)
		}
		if pillarIDs[p.ID] {
			return fmt.Errorf("pillars lists %q twice", p.ID)
		}
		pillarIDs[p.ID] = true
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.identify", cfg.Timeouts.IdentifyRaw, &cfg.Timeouts.Identify},
		{"timeouts.operation", cfg.Timeouts.OperationRaw, &cfg.Timeouts.Operation},
		{"mediator.conversation_timeout", cfg.Mediator.ConversationTimeoutRaw, &cfg.Mediator.ConversationTimeout},
		{"mediator.cleanup_interval", cfg.Mediator.CleanupIntervalRaw, &cfg.Mediator.CleanupInterval},
		{"mediator.dedupe_ttl", cfg.Mediator.DedupeTTLRaw, &cfg.Mediator.DedupeTTL},
		{"bus.reconnect_delay", cfg.Bus.ReconnectDelayRaw, &cfg.Bus.ReconnectDelay},
	}
	for _, f := range fields {
		if err := parseDuration(f.name, f.raw, f.dst); err != nil {
			return err
		}
	}

	for op, t := range cfg.Timeouts.Overrides {
		if err := parseDuration("timeouts.overrides."+op+".identify", t.IdentifyRaw, &t.Identify); err != nil {
			return err
		}
		if err := parseDuration("timeouts.overrides."+op+".operation", t.OperationRaw, &t.Operation); err != nil {
			return err
		}
		cfg.Timeouts.Overrides[op] = t
	}

	for i := range cfg.Pillars {
		p := &cfg.Pillars[i]
		if err := parseDuration(fmt.Sprintf("pillars[%d].delay", i), p.DelayRaw, &p.Delay); err != nil {
			return err
		}
		if err := parseDuration(fmt.Sprintf("pillars[%d].time_to_deliver", i), p.TimeToDeliverRaw, &p.TimeToDeliver); err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", name, raw, err)
	}
	*dst = d
	return nil
}

// ClientSettings converts the collection and timeout sections into client settings.
func (c *Config) ClientSettings() client.Settings {
	overrides := make(map[message.OperationType]client.Timeouts, len(c.Timeouts.Overrides))
	for op, t := range c.Timeouts.Overrides {
		overrides[message.OperationType(op)] = client.Timeouts{Identify: t.Identify, Operation: t.Operation}
	}
	return client.Settings{
		CollectionID:              c.Collection.ID,
		ClientID:                  c.Collection.ClientID,
		ReplyTo:                   c.Collection.ReplyTo,
		Destination:               c.Collection.Destination,
		Contributors:              c.Collection.Contributors,
		Timeouts:                  client.Timeouts{Identify: c.Timeouts.Identify, Operation: c.Timeouts.Operation},
		Overrides:                 overrides,
		TolerateComponentFailures: c.Collection.TolerateComponentFailures,
	}
}

// MediatorConfig converts the mediator section.
func (c *Config) MediatorConfig() mediator.Config {
	return mediator.Config{
		ConversationTimeout: c.Mediator.ConversationTimeout,
		CleanupInterval:     c.Mediator.CleanupInterval,
		DedupeTTL:           c.Mediator.DedupeTTL,
		DedupeSize:          c.Mediator.DedupeSize,
	}
}

// CollectionDestination is the identify broadcast topic of the collection.
func (c *Config) CollectionDestination() string {
	if c.Collection.Destination != "" {
		return c.Collection.Destination
	}
	return "collection-" + c.Collection.ID
}
