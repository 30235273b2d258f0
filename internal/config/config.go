package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the ticklake processes.
type Config struct {
	Instance  Instance        `yaml:"instance"`
	Storage   Storage         `yaml:"storage"`
	Server    Server          `yaml:"server"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Source    SourceConfig    `yaml:"source"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Queue     QueueConfig     `yaml:"queue"`
	Notify    NotifyConfig    `yaml:"notify"`
	News      NewsConfig      `yaml:"news"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   Logging         `yaml:"logging"`
}

// Instance identifies the worker slot in the doing document. Two running
// collectors must never share the same (user, account, resolution).
type Instance struct {
	User       string `yaml:"user"`
	Account    string `yaml:"account"`
	Resolution string `yaml:"resolution"`
}

// Storage holds paths for local data persistence.
type Storage struct {
	DataDir string `yaml:"data_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// SourceConfig tunes the tick source adapter.
type SourceConfig struct {
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	PageSize        int           `yaml:"page_size"`
	ProbeSize       int           `yaml:"probe_size"`
	AssetCacheTTL   time.Duration `yaml:"asset_cache_ttl"`
}

// RetrievalConfig tunes the retrieval loop.
type RetrievalConfig struct {
	GapSkip         time.Duration `yaml:"gap_skip"`
	FlushThreshold  int           `yaml:"flush_threshold"`
	HorizonYears    int           `yaml:"horizon_years"`
	RestartTime     string        `yaml:"restart_time"` // HH:MM in RestartLocation
	RestartLocation string        `yaml:"restart_location"`
	RestartBefore   time.Duration `yaml:"restart_before"`
	RestartAfter    time.Duration `yaml:"restart_after"`
	RestartPause    time.Duration `yaml:"restart_pause"`
	FetchMaxElapsed time.Duration `yaml:"fetch_max_elapsed"`
	IdleWait        time.Duration `yaml:"idle_wait"`
	ErrorCooldown   time.Duration `yaml:"error_cooldown"`
	MaxFailures     int           `yaml:"max_ticker_failures"` // before a ticker is requeued
}

// WarehouseConfig selects and configures the tick warehouse.
type WarehouseConfig struct {
	Backend  string   `yaml:"backend"` // parquet | postgres
	Dataset  string   `yaml:"dataset"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Schema   string `yaml:"schema"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// QueueConfig selects and configures the work-queue document store.
type QueueConfig struct {
	Backend    string      `yaml:"backend"` // redis | sqlite
	Redis      RedisConfig `yaml:"redis"`
	SQLitePath string      `yaml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// NotifyConfig selects the operator notification channel.
type NotifyConfig struct {
	Backend      string   `yaml:"backend"` // log | redis | kafka
	RedisAddr    string   `yaml:"redis_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	TopicPrefix  string   `yaml:"topic_prefix"`
}

// NewsConfig configures the news-file ingester.
type NewsConfig struct {
	InputDir   string `yaml:"input_dir"`
	LedgerPath string `yaml:"ledger_path"`
	Table      string `yaml:"table"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides (including any found in a .env file in the
// working directory) and fills defaults. Callers validate with Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("TICKLAKE_USER"); v != "" {
		cfg.Instance.User = v
	}
	if v := os.Getenv("TICKLAKE_ACCOUNT"); v != "" {
		cfg.Instance.Account = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Queue.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Queue.Redis.Password = v
	}

	if v := os.Getenv("WAREHOUSE_PG_PASSWORD"); v != "" {
		cfg.Warehouse.Postgres.Password = v
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notify.KafkaBrokers = strings.Split(v, ",")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence, these are the names the SDK uses.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
