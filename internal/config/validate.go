package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // restart_location must resolve in minimal containers
)

// Validate checks that all fields the tick collector needs are set and
// consistent. It expects defaults to have been applied by Load.
func (c *Config) Validate() error {
	if c.Instance.User == "" {
		return errors.New("instance.user is required")
	}
	if c.Instance.Account == "" {
		return errors.New("instance.account is required")
	}

	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return errors.New("alpaca.api_key and alpaca.api_secret are required")
	}

	if c.Source.PageSize < 1 {
		return errors.New("source.page_size must be >= 1")
	}
	if c.Source.ProbeSize < 1 {
		return errors.New("source.probe_size must be >= 1")
	}

	r := c.Retrieval
	if r.GapSkip < time.Second {
		return fmt.Errorf("retrieval.gap_skip must be >= 1s, got %s", r.GapSkip)
	}
	if r.FlushThreshold < 1 {
		return errors.New("retrieval.flush_threshold must be >= 1")
	}
	if r.HorizonYears < 0 {
		return errors.New("retrieval.horizon_years must be >= 0")
	}
	if _, _, err := ParseClock(r.RestartTime); err != nil {
		return fmt.Errorf("retrieval.restart_time: %w", err)
	}
	if _, err := time.LoadLocation(r.RestartLocation); err != nil {
		return fmt.Errorf("retrieval.restart_location: %w", err)
	}

	switch c.Warehouse.Backend {
	case "parquet":
	case "postgres":
		if err := c.Warehouse.Postgres.validate("warehouse.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("warehouse.backend must be parquet or postgres, got %q", c.Warehouse.Backend)
	}

	switch c.Queue.Backend {
	case "sqlite":
	case "redis":
		if c.Queue.Redis.Addr == "" {
			return errors.New("queue.redis.addr is required")
		}
	default:
		return fmt.Errorf("queue.backend must be redis or sqlite, got %q", c.Queue.Backend)
	}

	switch c.Notify.Backend {
	case "log":
	case "redis":
		if c.Notify.RedisAddr == "" {
			return errors.New("notify.redis_addr is required")
		}
	case "kafka":
		if len(c.Notify.KafkaBrokers) == 0 {
			return errors.New("notify.kafka_brokers is required")
		}
	default:
		return fmt.Errorf("notify.backend must be log, redis or kafka, got %q", c.Notify.Backend)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 || db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns must be between 0 and max_conns", prefix)
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// BuildConnString returns a libpq-style connection string for db.
func BuildConnString(db DBConfig) string {
	s := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		db.Host, db.Port, db.Name, db.User, db.SSLMode)
	if db.Password != "" {
		s += fmt.Sprintf(" password=%s", db.Password)
	}
	if db.Schema != "" {
		s += fmt.Sprintf(" search_path=%s", db.Schema)
	}
	return s
}
