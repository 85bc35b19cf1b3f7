package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config lists the tunable parameters for the telemetry server.
type Config struct {
	HTTPPort        int    `yaml:"http_port"`
	MQTTBindAddress string `yaml:"mqtt_bind"`

	DatabaseDriver string        `yaml:"db_driver"`
	DatabaseDSN    string        `yaml:"db_dsn"`
	DatabasePath   string        `yaml:"database_path"`
	StoreTimeout   time.Duration `yaml:"store_timeout"`

	MaxBatch      int   `yaml:"max_batch"`
	MaxQueryLimit int   `yaml:"max_query_limit"`
	MaxBodyBytes  int64 `yaml:"max_body_bytes"`

	// JournalDir enables POST /api/journal when set.
	JournalDir string `yaml:"journal_dir"`
	// NATSURL enables the NATS ingestion subscriber when set.
	NATSURL string `yaml:"nats_url"`
	MDNS    bool   `yaml:"mdns"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

const (
	defaultHTTPPort        = 8080
	defaultMQTTBindAddress = ":1883"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabasePath    = "data/telemetry.db"
	defaultStoreTimeout    = 5 * time.Second
	defaultMaxBatch        = 1000
	defaultMaxQueryLimit   = 1000
	defaultMaxBodyBytes    = 4 << 20
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"

	envPrefix = "DRONEPANEL_"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPPort:        defaultHTTPPort,
		MQTTBindAddress: defaultMQTTBindAddress,
		DatabaseDriver:  defaultDatabaseDriver,
		DatabasePath:    defaultDatabasePath,
		StoreTimeout:    defaultStoreTimeout,
		MaxBatch:        defaultMaxBatch,
		MaxQueryLimit:   defaultMaxQueryLimit,
		MaxBodyBytes:    defaultMaxBodyBytes,
		LogLevel:        defaultLogLevel,
		LogFormat:       defaultLogFormat,
	}
}

// Load derives configuration from defaults, then the YAML file named by
// DRONEPANEL_CONFIG, then DRONEPANEL_* environment variables.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(envPrefix + "CONFIG"); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HTTP_PORT", &c.HTTPPort},
		{"MAX_BATCH", &c.MaxBatch},
		{"MAX_QUERY_LIMIT", &c.MaxQueryLimit},
	}
	for _, f := range ints {
		if v, ok := get(f.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, f.key, err)
			}
			*f.dst = n
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"MQTT_BIND", &c.MQTTBindAddress},
		{"DB_DRIVER", &c.DatabaseDriver},
		{"DB_DSN", &c.DatabaseDSN},
		{"DATABASE_PATH", &c.DatabasePath},
		{"JOURNAL_DIR", &c.JournalDir},
		{"NATS_URL", &c.NATSURL},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
	}
	for _, f := range strs {
		if v, ok := get(f.key); ok {
			*f.dst = v
		}
	}

	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_BODY_BYTES: %w", envPrefix, err)
		}
		c.MaxBodyBytes = n
	}

	if v, ok := get("STORE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTORE_TIMEOUT: %w", envPrefix, err)
		}
		c.StoreTimeout = d
	}

	if v, ok := get("MDNS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMDNS: %w", envPrefix, err)
		}
		c.MDNS = b
	}

	return nil
}

// Validate reports configuration values the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.DatabaseDriver) {
	case "sqlite", "sqlite3":
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("database_path is required for sqlite"))
		}
	case "postgres", "postgresql", "pq":
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("db_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db_driver %q", c.DatabaseDriver))
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port %d out of range", c.HTTPPort))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if c.MaxBatch <= 0 {
		errs = append(errs, errors.New("max_batch must be positive"))
	}
	if c.MaxQueryLimit <= 0 {
		errs = append(errs, errors.New("max_query_limit must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log_format %q", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DSN returns what store.Open expects for the configured driver: the file
// path for sqlite, the connection string otherwise.
func (c Config) DSN() string {
	switch strings.ToLower(c.DatabaseDriver) {
	case "sqlite", "sqlite3":
		return c.DatabasePath
	default:
		return c.DatabaseDSN
	}
}
