package config

import (
	"path/filepath"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultDataDir         = "data"
	DefaultResolution      = "tick"
	DefaultFeed            = "sip"
	DefaultRateLimitPerMin = 180
	DefaultPageSize        = 1000
	DefaultProbeSize       = 10
	DefaultAssetCacheTTL   = 12 * time.Hour
	DefaultGapSkip         = 4 * time.Hour
	DefaultFlushThreshold  = 20000
	DefaultHorizonYears    = 4
	DefaultRestartTime     = "23:45"
	DefaultRestartLocation = "America/New_York"
	DefaultRestartBefore   = 120 * time.Second
	DefaultRestartAfter    = 30 * time.Second
	DefaultRestartPause    = 420 * time.Second
	DefaultFetchMaxElapsed = 5 * time.Minute
	DefaultIdleWait        = 1 * time.Minute
	DefaultErrorCooldown   = 30 * time.Second
	DefaultMaxFailures     = 5
	DefaultWarehouse       = "parquet"
	DefaultDataset         = "ticks"
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultDBSchema        = "public"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultQueueBackend    = "sqlite"
	DefaultRedisPrefix     = "ticklake"
	DefaultNotifyBackend   = "log"
	DefaultNewsTable       = "news"
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Instance.Resolution == "" {
		c.Instance.Resolution = DefaultResolution
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = DefaultFeed
	}

	// Source defaults
	if c.Source.RateLimitPerMin == 0 {
		c.Source.RateLimitPerMin = DefaultRateLimitPerMin
	}
	if c.Source.PageSize == 0 {
		c.Source.PageSize = DefaultPageSize
	}
	if c.Source.ProbeSize == 0 {
		c.Source.ProbeSize = DefaultProbeSize
	}
	if c.Source.AssetCacheTTL == 0 {
		c.Source.AssetCacheTTL = DefaultAssetCacheTTL
	}

	// Retrieval defaults
	r := &c.Retrieval
	if r.GapSkip == 0 {
		r.GapSkip = DefaultGapSkip
	}
	if r.FlushThreshold == 0 {
		r.FlushThreshold = DefaultFlushThreshold
	}
	if r.HorizonYears == 0 {
		r.HorizonYears = DefaultHorizonYears
	}
	if r.RestartTime == "" {
		r.RestartTime = DefaultRestartTime
	}
	if r.RestartLocation == "" {
		r.RestartLocation = DefaultRestartLocation
	}
	if r.RestartBefore == 0 {
		r.RestartBefore = DefaultRestartBefore
	}
	if r.RestartAfter == 0 {
		r.RestartAfter = DefaultRestartAfter
	}
	if r.RestartPause == 0 {
		r.RestartPause = DefaultRestartPause
	}
	if r.FetchMaxElapsed == 0 {
		r.FetchMaxElapsed = DefaultFetchMaxElapsed
	}
	if r.IdleWait == 0 {
		r.IdleWait = DefaultIdleWait
	}
	if r.ErrorCooldown == 0 {
		r.ErrorCooldown = DefaultErrorCooldown
	}
	if r.MaxFailures == 0 {
		r.MaxFailures = DefaultMaxFailures
	}

	// Warehouse defaults
	if c.Warehouse.Backend == "" {
		c.Warehouse.Backend = DefaultWarehouse
	}
	if c.Warehouse.Dataset == "" {
		c.Warehouse.Dataset = DefaultDataset
	}
	applyDBDefaults(&c.Warehouse.Postgres)

	// Queue defaults
	if c.Queue.Backend == "" {
		c.Queue.Backend = DefaultQueueBackend
	}
	if c.Queue.Redis.Prefix == "" {
		c.Queue.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Queue.SQLitePath == "" {
		c.Queue.SQLitePath = filepath.Join(c.Storage.DataDir, "queue.db")
	}

	if c.Notify.Backend == "" {
		c.Notify.Backend = DefaultNotifyBackend
	}
	if c.Notify.RedisAddr == "" {
		c.Notify.RedisAddr = c.Queue.Redis.Addr
	}

	// News defaults
	if c.News.Table == "" {
		c.News.Table = DefaultNewsTable
	}
	if c.News.InputDir == "" {
		c.News.InputDir = filepath.Join(c.Storage.DataDir, "news", "incoming")
	}
	if c.News.LedgerPath == "" {
		c.News.LedgerPath = filepath.Join(c.Storage.DataDir, "news-ledger.db")
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.Schema == "" {
		db.Schema = DefaultDBSchema
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
