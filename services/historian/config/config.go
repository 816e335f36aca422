package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8081
	defaultDataDir        = "static"
	defaultArchiveBaseURL = "https://archive.luftdaten.info/"
	defaultRequestTimeout = 60 * time.Second
	defaultCatalogTTL     = 5 * time.Minute
	defaultFetchDelay     = 500 * time.Millisecond
	defaultSchedulerTick  = time.Second
	defaultDrainTimeout   = 30 * time.Second
	defaultMaxSensorID    = 1000000
	defaultLogLevel       = "info"
)

// Config holds runtime configuration for the historian service.
type Config struct {
	Port           int           `yaml:"port"`
	DataDir        string        `yaml:"data_dir"`
	ArchiveBaseURL string        `yaml:"archive_base_url"`
	RequestTimeout time.Duration `yaml:"archive_request_timeout"`
	CatalogTTL     time.Duration `yaml:"archive_catalog_ttl"`
	FetchDelay     time.Duration `yaml:"fetch_delay"`
	SchedulerTick  time.Duration `yaml:"scheduler_tick"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	MaxSensorID    int           `yaml:"max_sensor_id"`

	// DatabaseURL enables the Postgres mirror when set.
	DatabaseURL string `yaml:"database_url"`
	BearerToken string `yaml:"api_bearer_token"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           defaultPort,
		DataDir:        defaultDataDir,
		ArchiveBaseURL: defaultArchiveBaseURL,
		RequestTimeout: defaultRequestTimeout,
		CatalogTTL:     defaultCatalogTTL,
		FetchDelay:     defaultFetchDelay,
		SchedulerTick:  defaultSchedulerTick,
		DrainTimeout:   defaultDrainTimeout,
		MaxSensorID:    defaultMaxSensorID,
		LogLevel:       defaultLogLevel,
	}
}

// Load reads configuration from environment variables (optionally .env).
// A YAML file named by HISTORIAN_CONFIG supplies base values that the
// environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("HISTORIAN_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}

	if v := env("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := env("ARCHIVE_BASE_URL"); v != "" {
		c.ArchiveBaseURL = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ARCHIVE_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"ARCHIVE_CATALOG_TTL", &c.CatalogTTL},
		{"FETCH_DELAY", &c.FetchDelay},
		{"SCHEDULER_TICK", &c.SchedulerTick},
		{"DRAIN_TIMEOUT", &c.DrainTimeout},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := env("MAX_SENSOR_ID"); v != "" {
		maxID, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_SENSOR_ID: %w", err)
		}
		c.MaxSensorID = maxID
	}

	if v := env("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := env("API_BEARER_TOKEN"); v != "" {
		c.BearerToken = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := env("LOG_JSON"); v != "" {
		c.LogJSON = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("invalid DATA_DIR: empty")
	}
	if c.ArchiveBaseURL == "" {
		return fmt.Errorf("invalid ARCHIVE_BASE_URL: empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid ARCHIVE_REQUEST_TIMEOUT: %s", c.RequestTimeout)
	}
	if c.CatalogTTL < 0 {
		return fmt.Errorf("invalid ARCHIVE_CATALOG_TTL: %s", c.CatalogTTL)
	}
	if c.FetchDelay < 0 {
		return fmt.Errorf("invalid FETCH_DELAY: %s", c.FetchDelay)
	}
	if c.SchedulerTick <= 0 {
		return fmt.Errorf("invalid SCHEDULER_TICK: %s", c.SchedulerTick)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("invalid DRAIN_TIMEOUT: %s", c.DrainTimeout)
	}
	if c.MaxSensorID < 1 {
		return fmt.Errorf("invalid MAX_SENSOR_ID: %d", c.MaxSensorID)
	}
	return nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
