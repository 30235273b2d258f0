package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable applyEnvOverrides consults so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "TICKLAKE_USER", "TICKLAKE_ACCOUNT",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"REDIS_ADDR", "REDIS_PASSWORD", "WAREHOUSE_PG_PASSWORD", "KAFKA_BROKERS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticklake.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
instance:
  user: "research"
  account: "DU123"
storage:
  data_dir: "/tmp/ticklake/data"
server:
  grpc_port: 9090
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
retrieval:
  gap_skip: "2h"
  flush_threshold: 5000
  restart_time: "00:15"
  restart_pause: "7m"
warehouse:
  backend: "postgres"
  postgres:
    host: "localhost"
    name: "ticks"
    user: "collector"
queue:
  backend: "redis"
  redis:
    addr: "localhost:6379"
notify:
  backend: "kafka"
  kafka_brokers: ["localhost:9092"]
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	if cfg.Instance.User != "research" || cfg.Instance.Account != "DU123" {
		t.Errorf("Instance = %+v", cfg.Instance)
	}
	if cfg.Instance.Resolution != "tick" {
		t.Errorf("Instance.Resolution = %q, want default %q", cfg.Instance.Resolution, "tick")
	}
	if cfg.Retrieval.GapSkip != 2*time.Hour {
		t.Errorf("Retrieval.GapSkip = %s, want 2h", cfg.Retrieval.GapSkip)
	}
	if cfg.Retrieval.FlushThreshold != 5000 {
		t.Errorf("Retrieval.FlushThreshold = %d, want 5000", cfg.Retrieval.FlushThreshold)
	}
	if cfg.Retrieval.RestartPause != 7*time.Minute {
		t.Errorf("Retrieval.RestartPause = %s, want 7m", cfg.Retrieval.RestartPause)
	}
	if cfg.Retrieval.RestartBefore != DefaultRestartBefore {
		t.Errorf("Retrieval.RestartBefore = %s, want default", cfg.Retrieval.RestartBefore)
	}
	if cfg.Warehouse.Postgres.Port != DefaultDBPort {
		t.Errorf("Warehouse.Postgres.Port = %d, want %d", cfg.Warehouse.Postgres.Port, DefaultDBPort)
	}
	if cfg.Notify.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("Notify.KafkaBrokers = %v", cfg.Notify.KafkaBrokers)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/srv/ticks"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Retrieval.GapSkip != 4*time.Hour {
		t.Errorf("GapSkip = %s, want 4h", cfg.Retrieval.GapSkip)
	}
	if cfg.Retrieval.FlushThreshold != 20000 {
		t.Errorf("FlushThreshold = %d, want 20000", cfg.Retrieval.FlushThreshold)
	}
	if cfg.Source.PageSize != 1000 || cfg.Source.ProbeSize != 10 {
		t.Errorf("Source = %+v, want page 1000 probe 10", cfg.Source)
	}
	if cfg.Retrieval.RestartPause != 420*time.Second {
		t.Errorf("RestartPause = %s, want 420s", cfg.Retrieval.RestartPause)
	}
	if cfg.Queue.SQLitePath != filepath.Join("/srv/ticks", "queue.db") {
		t.Errorf("Queue.SQLitePath = %q", cfg.Queue.SQLitePath)
	}
	if cfg.Warehouse.Backend != "parquet" || cfg.Notify.Backend != "log" {
		t.Errorf("backends = %q/%q, want parquet/log", cfg.Warehouse.Backend, cfg.Notify.Backend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APCA_API_SECRET_KEY", "apca-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "apca-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "apca-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if len(cfg.Notify.KafkaBrokers) != 2 {
		t.Errorf("Notify.KafkaBrokers = %v, want 2 brokers", cfg.Notify.KafkaBrokers)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Instance: Instance{User: "u", Account: "a"},
			Alpaca:   Alpaca{APIKey: "k", APISecret: "s"},
		}
		cfg.applyDefaults()
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing user", func(c *Config) { c.Instance.User = "" }, "instance.user"},
		{"missing secret", func(c *Config) { c.Alpaca.APISecret = "" }, "alpaca.api_key"},
		{"bad restart time", func(c *Config) { c.Retrieval.RestartTime = "25:99" }, "retrieval.restart_time"},
		{"bad warehouse", func(c *Config) { c.Warehouse.Backend = "bigquery" }, "warehouse.backend"},
		{"postgres without host", func(c *Config) { c.Warehouse.Backend = "postgres" }, "warehouse.postgres.host"},
		{"redis without addr", func(c *Config) { c.Queue.Backend = "redis" }, "queue.redis.addr"},
		{"tiny gap skip", func(c *Config) { c.Retrieval.GapSkip = time.Millisecond }, "retrieval.gap_skip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildConnString(t *testing.T) {
	got := BuildConnString(DBConfig{
		Host: "db", Port: 5432, Name: "ticks", User: "u", Password: "p", SSLMode: "disable", Schema: "lake",
	})
	want := "host=db port=5432 dbname=ticks user=u sslmode=disable password=p search_path=lake"
	if got != want {
		t.Errorf("BuildConnString = %q, want %q", got, want)
	}
}

func TestNewsDefaultsFollowDataDir(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ticklake.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  data_dir: /srv/lake\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.News.InputDir != "/srv/lake/news/incoming" || cfg.News.LedgerPath != "/srv/lake/news-ledger.db" {
		t.Errorf("news paths = %q, %q", cfg.News.InputDir, cfg.News.LedgerPath)
	}
	if cfg.News.Table != DefaultNewsTable {
		t.Errorf("news table = %q", cfg.News.Table)
	}
}
