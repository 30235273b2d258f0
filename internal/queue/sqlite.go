package queue

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps queue documents in a single SQLite table, one row per
// (document, field, ticker). The autoincrement key preserves insertion order.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS queue_entries (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	document TEXT NOT NULL,
	field    TEXT NOT NULL,
	ticker   TEXT NOT NULL,
	UNIQUE (document, field, ticker)
)`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Several collectors may share the file; serialize writers in-process
	// and let SQLite wait out the others.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Read returns every non-empty field of doc.
func (s *SQLiteStore) Read(ctx context.Context, doc Document) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, ticker FROM queue_entries WHERE document = ? ORDER BY seq`, string(doc))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", doc, err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var field, ticker string
		if err := rows.Scan(&field, &ticker); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", doc, err)
		}
		out[field] = append(out[field], ticker)
	}
	return out, rows.Err()
}

// ArrayUnion inserts missing values in one transaction.
func (s *SQLiteStore) ArrayUnion(ctx context.Context, doc Document, field string, values ...string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO queue_entries (document, field, ticker) VALUES (?, ?, ?)`,
				string(doc), field, v); err != nil {
				return fmt.Errorf("array union %s.%s: %w", doc, field, err)
			}
		}
		return nil
	})
}

// ArrayRemove deletes values in one transaction.
func (s *SQLiteStore) ArrayRemove(ctx context.Context, doc Document, field string, values ...string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM queue_entries WHERE document = ? AND field = ? AND ticker = ?`,
				string(doc), field, v); err != nil {
				return fmt.Errorf("array remove %s.%s: %w", doc, field, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
