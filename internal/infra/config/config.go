package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"chatrelay/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Health   HealthConfig   `yaml:"health"`
	Network  NetworkConfig  `yaml:"network"`
	Custom   CustomConfig   `yaml:"custom"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Security SecurityConfig `yaml:"security"`

	// Agents configured statically. The gateway API can add more at
	// runtime; these seed the registry on startup.
	Agents []domain.Agent `yaml:"agents,omitempty"`
}

// GatewayConfig holds HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// RatePerSecond and RateBurst shape the per-client token bucket.
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

// StorageConfig holds SQLite settings for the queue and conversation store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig holds offline queue settings.
type QueueConfig struct {
	// MaxDepth caps queued messages; enqueue fails beyond it.
	MaxDepth int `yaml:"max_depth"`
	// MaxRetries drops a queued message after this many failed replays.
	MaxRetries int `yaml:"max_retries"`
}

// HealthConfig holds periodic health monitoring settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between sweeps, e.g. "30s".
	Interval string `yaml:"interval"`
	// Concurrency bounds parallel probes in one sweep.
	Concurrency int `yaml:"concurrency"`
}

// NetworkConfig holds connectivity probing settings.
type NetworkConfig struct {
	// CheckURL is probed to decide online/offline.
	CheckURL string `yaml:"check_url"`
	// CheckPeriod between probes, e.g. "30s".
	CheckPeriod string `yaml:"check_period"`
}

// CustomConfig holds endpoint overrides for the custom agent type.
type CustomConfig struct {
	ChatPath   string `yaml:"chat_path,omitempty"`
	ModelsPath string `yaml:"models_path,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// SecurityConfig holds credential encryption settings.
// The passphrase itself is read from CHATRELAY_CREDENTIAL_KEY.
type SecurityConfig struct {
	EncryptCredentials bool `yaml:"encrypt_credentials"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.chatrelay. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".chatrelay")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Addr:          ":8090",
			RatePerSecond: 10,
			RateBurst:     20,
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultDataDir(), "chatrelay.db"),
		},
		Queue: QueueConfig{
			MaxDepth:   100,
			MaxRetries: 3,
		},
		Health: HealthConfig{
			Enabled:     true,
			Interval:    "30s",
			Concurrency: 4,
		},
		Network: NetworkConfig{
			CheckURL:    "https://1.1.1.1",
			CheckPeriod: "30s",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CHATRELAY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATRELAY_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("CHATRELAY_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CHATRELAY_QUEUE_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.MaxDepth = n
		}
	}
	if v := os.Getenv("CHATRELAY_HEALTH_ENABLED"); v == "false" {
		cfg.Health.Enabled = false
	}
	if v := os.Getenv("CHATRELAY_HEALTH_INTERVAL"); v != "" {
		cfg.Health.Interval = v
	}
	if v := os.Getenv("CHATRELAY_NETWORK_CHECK_URL"); v != "" {
		cfg.Network.CheckURL = v
	}
	if v := os.Getenv("CHATRELAY_NETWORK_CHECK_PERIOD"); v != "" {
		cfg.Network.CheckPeriod = v
	}
	if v := os.Getenv("CHATRELAY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHATRELAY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHATRELAY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CHATRELAY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// HealthInterval parses the health sweep interval, defaulting to 30s.
func (c *Config) HealthInterval() time.Duration {
	return parseDuration(c.Health.Interval, 30*time.Second)
}

// NetworkCheckPeriod parses the connectivity probe period, defaulting to 30s.
func (c *Config) NetworkCheckPeriod() time.Duration {
	return parseDuration(c.Network.CheckPeriod, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks cross-field constraints and each configured agent.
func Validate(cfg *Config) error {
	if cfg.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr must not be empty")
	}
	if cfg.Queue.MaxDepth <= 0 {
		return fmt.Errorf("queue.max_depth must be positive")
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id must not be empty", i)
		}
		if !a.Type.Valid() {
			return fmt.Errorf("agent %q: unsupported type %q", a.ID, a.Type)
		}
		u, err := url.Parse(a.EndpointURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("agent %q: endpoint_url must be an absolute http(s) URL", a.ID)
		}
	}
	return nil
}
