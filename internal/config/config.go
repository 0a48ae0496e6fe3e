// Package config loads beacon's configuration from a YAML file with
// environment-variable overrides for the common knobs.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/beacon/internal/exporter"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all beacon configuration.
type Config struct {
	Cluster    ClusterConfig             `yaml:"cluster"`
	Node       NodeConfig                `yaml:"node"`
	Server     ServerConfig              `yaml:"server"`
	Collection CollectionConfig          `yaml:"collection"`
	Logging    LoggingConfig             `yaml:"logging"`
	Exporters  map[string]ExporterConfig `yaml:"exporters"`
}

// ClusterConfig identifies the cluster documents are stamped with.
type ClusterConfig struct {
	UUID string `yaml:"uuid"`
	Name string `yaml:"name"`
}

// NodeConfig identifies this daemon instance. The node UUID is generated at
// startup, not configured.
type NodeConfig struct {
	Name string `yaml:"name"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// CollectionConfig holds the self-monitoring collection settings.
type CollectionConfig struct {
	Interval     Duration `yaml:"interval"`
	BufferWindow Duration `yaml:"buffer_window"`
	BufferSize   int      `yaml:"buffer_size"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ExporterConfig holds one named exporter entry.
type ExporterConfig struct {
	Type     string            `yaml:"type"`
	Disabled bool              `yaml:"disabled"`
	Settings map[string]string `yaml:"settings"`
}

// Default returns the configuration used when no file and no overrides are
// present: listen on :9600, collect every 10s, export to a local store.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":9600",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Collection: CollectionConfig{
			Interval:     Duration(10 * time.Second),
			BufferWindow: Duration(30 * time.Second),
			BufferSize:   50,
		},
		Logging: LoggingConfig{Level: "info"},
		Exporters: map[string]ExporterConfig{
			"default_local": {
				Type:     "local",
				Settings: map[string]string{"path": "data/monitoring.db"},
			},
		},
	}
}

// Load reads configuration from the given YAML file (skipped when path is
// empty), applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		// A file that names any exporter replaces the default set wholesale.
		cfg.Exporters = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Exporters == nil {
			cfg.Exporters = Default().Exporters
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the common knobs from BEACON_* environment variables.
func applyEnv(cfg *Config) {
	cfg.Cluster.UUID = getenv("BEACON_CLUSTER_UUID", cfg.Cluster.UUID)
	cfg.Cluster.Name = getenv("BEACON_CLUSTER_NAME", cfg.Cluster.Name)
	cfg.Node.Name = getenv("BEACON_NODE_NAME", cfg.Node.Name)
	cfg.Server.Addr = getenv("BEACON_LISTEN_ADDR", cfg.Server.Addr)
	cfg.Logging.Level = getenv("BEACON_LOG_LEVEL", cfg.Logging.Level)
	if v := os.Getenv("BEACON_COLLECTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Collection.Interval = Duration(d)
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the configuration, returning user-facing messages that
// name the offending field.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Collection.Interval.Std() <= 0 {
		return fmt.Errorf("collection.interval must be positive, got %s", c.Collection.Interval.Std())
	}
	if c.Collection.BufferSize <= 0 {
		return fmt.Errorf("collection.buffer_size must be positive, got %d", c.Collection.BufferSize)
	}
	for name, e := range c.Exporters {
		if e.Type == "" {
			return fmt.Errorf("exporter %q: type is required", name)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// ExporterConfigs converts the enabled exporter entries to the exporter
// package's config shape, sorted by name for deterministic builds.
func (c Config) ExporterConfigs() []exporter.Config {
	names := make([]string, 0, len(c.Exporters))
	for name, e := range c.Exporters {
		if e.Disabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]exporter.Config, 0, len(names))
	for _, name := range names {
		e := c.Exporters[name]
		out = append(out, exporter.Config{
			Name:     name,
			Type:     e.Type,
			Settings: e.Settings,
		})
	}
	return out
}

// StdoutIsSink reports whether any enabled file exporter writes to stdout,
// in which case log output must stay structured and off stdout.
func (c Config) StdoutIsSink() bool {
	for _, e := range c.Exporters {
		if !e.Disabled && e.Type == "file" && e.Settings["path"] == "-" {
			return true
		}
	}
	return false
}
