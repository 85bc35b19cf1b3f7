package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.DSN() != defaultDatabasePath {
		t.Errorf("DSN = %q", cfg.DSN())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DRONEPANEL_HTTP_PORT":       "9000",
		"DRONEPANEL_MQTT_BIND":       "127.0.0.1:1884",
		"DRONEPANEL_DB_DRIVER":       "postgres",
		"DRONEPANEL_DB_DSN":          "postgres://u:p@localhost/telemetry?sslmode=disable",
		"DRONEPANEL_STORE_TIMEOUT":   "750ms",
		"DRONEPANEL_MAX_BATCH":       "50",
		"DRONEPANEL_MAX_QUERY_LIMIT": "200",
		"DRONEPANEL_MAX_BODY_BYTES":  "1024",
		"DRONEPANEL_JOURNAL_DIR":     "/tmp/journal",
		"DRONEPANEL_NATS_URL":        "nats://localhost:4222",
		"DRONEPANEL_MDNS":            "true",
		"DRONEPANEL_LOG_LEVEL":       "debug",
		"DRONEPANEL_LOG_FORMAT":      "json",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := Config{
		HTTPPort:        9000,
		MQTTBindAddress: "127.0.0.1:1884",
		DatabaseDriver:  "postgres",
		DatabaseDSN:     "postgres://u:p@localhost/telemetry?sslmode=disable",
		DatabasePath:    defaultDatabasePath,
		StoreTimeout:    750 * time.Millisecond,
		MaxBatch:        50,
		MaxQueryLimit:   200,
		MaxBodyBytes:    1024,
		JournalDir:      "/tmp/journal",
		NATSURL:         "nats://localhost:4222",
		MDNS:            true,
		LogLevel:        "debug",
		LogFormat:       "json",
	}
	if cfg != want {
		t.Errorf("got %+v\nwant %+v", cfg, want)
	}
	if cfg.DSN() != want.DatabaseDSN {
		t.Errorf("DSN = %q", cfg.DSN())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := "http_port: 7000\nstore_timeout: 2s\nmax_batch: 10\ndatabase_path: /var/lib/telemetry.db\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(env(map[string]string{
		"DRONEPANEL_CONFIG":    path,
		"DRONEPANEL_MAX_BATCH": "20",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != 7000 || cfg.StoreTimeout != 2*time.Second || cfg.DatabasePath != "/var/lib/telemetry.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MaxBatch != 20 {
		t.Errorf("env should override file, MaxBatch = %d", cfg.MaxBatch)
	}
	if cfg.MQTTBindAddress != defaultMQTTBindAddress {
		t.Errorf("unset file keys should keep defaults, got %q", cfg.MQTTBindAddress)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad port", map[string]string{"DRONEPANEL_HTTP_PORT": "http"}, "DRONEPANEL_HTTP_PORT"},
		{"bad timeout", map[string]string{"DRONEPANEL_STORE_TIMEOUT": "5"}, "DRONEPANEL_STORE_TIMEOUT"},
		{"bad mdns", map[string]string{"DRONEPANEL_MDNS": "sometimes"}, "DRONEPANEL_MDNS"},
		{"unknown driver", map[string]string{"DRONEPANEL_DB_DRIVER": "mysql"}, "unsupported db_driver"},
		{"postgres without dsn", map[string]string{"DRONEPANEL_DB_DRIVER": "postgres"}, "db_dsn is required"},
		{"zero batch", map[string]string{"DRONEPANEL_MAX_BATCH": "0"}, "max_batch"},
		{"negative limit", map[string]string{"DRONEPANEL_MAX_QUERY_LIMIT": "-1"}, "max_query_limit"},
		{"log format", map[string]string{"DRONEPANEL_LOG_FORMAT": "xml"}, "log_format"},
		{"missing file", map[string]string{"DRONEPANEL_CONFIG": "/does/not/exist.yaml"}, "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(env(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
