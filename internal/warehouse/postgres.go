package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticklake/internal/config"
	"ticklake/internal/domain"
)

// Compile-time interface check.
var _ Warehouse = (*PostgresWarehouse)(nil)

// PostgresWarehouse stores tables in PostgreSQL (or TimescaleDB), loading
// batches with COPY.
type PostgresWarehouse struct {
	pool    *pgxpool.Pool
	mu      sync.Mutex
	created map[string]bool
}

// Connect creates a connection pool for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(config.BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresWarehouse wraps an open pool.
func NewPostgresWarehouse(pool *pgxpool.Pool) *PostgresWarehouse {
	return &PostgresWarehouse{pool: pool, created: make(map[string]bool)}
}

var pgTypes = map[string]string{
	"TIMESTAMP": "timestamptz",
	"INT":       "bigint",
	"FLOAT":     "double precision",
	"BOOL":      "boolean",
	"STRING":    "text",
}

// createTableSQL renders the DDL for table with cols.
func createTableSQL(table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + pgTypes[c.Type]
		if c.Required {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
}

func (w *PostgresWarehouse) ensureTable(ctx context.Context, table string, cols []Column) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created[table] {
		return nil
	}
	if _, err := w.pool.Exec(ctx, createTableSQL(table, cols)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	w.created[table] = true
	return nil
}

// TableExists asks the catalog whether table resolves on the search path.
func (w *PostgresWarehouse) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, pgx.Identifier{table}.Sanitize()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return exists, nil
}

// MaxTimestamp returns max(datetime) of table.
func (w *PostgresWarehouse) MaxTimestamp(ctx context.Context, table string) (time.Time, bool, error) {
	exists, err := w.TableExists(ctx, table)
	if err != nil || !exists {
		return time.Time{}, false, err
	}

	var ts *time.Time
	q := fmt.Sprintf(`SELECT max("datetime") FROM %s`, pgx.Identifier{table}.Sanitize())
	if err := w.pool.QueryRow(ctx, q).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("max timestamp %s: %w", table, err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Append copies ticks into table.
func (w *PostgresWarehouse) Append(ctx context.Context, table string, kind domain.TickKind, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	cols, err := Schema(kind)
	if err != nil {
		return err
	}
	if err := w.ensureTable(ctx, table, cols); err != nil {
		return writeErr(table, err)
	}

	rows := tickRows(kind, ticks)
	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, ColumnNames(cols), pgx.CopyFromRows(rows))
	if err != nil {
		return writeErr(table, err)
	}
	if int(n) != len(rows) {
		return writeErr(table, fmt.Errorf("copied %d of %d rows", n, len(rows)))
	}
	return nil
}

// AppendNews copies news records into table.
func (w *PostgresWarehouse) AppendNews(ctx context.Context, table string, records []domain.NewsRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := w.ensureTable(ctx, table, NewsSchema); err != nil {
		return writeErr(table, err)
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.ReceivedTime, r.PublicationTime, r.Ticker, r.Exchange, r.Title, r.Distributor,
			r.Headlines, r.IndustryCodes, r.Body, r.Language, r.FileName,
		}
	}
	if _, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, ColumnNames(NewsSchema), pgx.CopyFromRows(rows)); err != nil {
		return writeErr(table, err)
	}
	return nil
}

// Close closes the pool.
func (w *PostgresWarehouse) Close() error {
	w.pool.Close()
	return nil
}

// tickRows lays ticks out in schema column order.
func tickRows(kind domain.TickKind, ticks []domain.Tick) [][]any {
	rows := make([][]any, len(ticks))
	for i, t := range ticks {
		if kind == domain.TickKindQuote {
			rows[i] = []any{
				t.Timestamp, int64(t.Order), t.BidPrice, t.BidSize, t.AskPrice, t.AskSize,
				t.BidPastLow, t.AskPastHigh,
			}
			continue
		}
		rows[i] = []any{
			t.Timestamp, int64(t.Order), t.Price, t.Size, t.Exchange, t.Conditions,
		}
	}
	return rows
}
