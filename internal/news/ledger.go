package news

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Ledger records one entry per ingested file name so a file is loaded at
// most once. Repeat deliveries are appended to the entry's duplicate list.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// LedgerEntry is the ingest state of one file.
type LedgerEntry struct {
	FileName   string
	Success    bool
	Error      string
	When       time.Time
	Duplicates []time.Time
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS news_ledger (
	file_name  TEXT PRIMARY KEY,
	success    INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	duplicates TEXT NOT NULL DEFAULT '[]'
)`

// OpenLedger opens (or creates) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Get returns the entry for fileName; ok is false when there is none.
func (l *Ledger) Get(ctx context.Context, fileName string) (entry LedgerEntry, ok bool, err error) {
	var (
		success    int
		updated    string
		duplicates string
	)
	err = l.db.QueryRowContext(ctx,
		`SELECT success, error, updated_at, duplicates FROM news_ledger WHERE file_name = ?`, fileName,
	).Scan(&success, &entry.Error, &updated, &duplicates)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("reading ledger entry %s: %w", fileName, err)
	}
	entry.FileName = fileName
	entry.Success = success == 1
	entry.When, _ = time.Parse(time.RFC3339Nano, updated)
	if err := json.Unmarshal([]byte(duplicates), &entry.Duplicates); err != nil {
		return LedgerEntry{}, false, fmt.Errorf("decoding duplicates of %s: %w", fileName, err)
	}
	return entry, true, nil
}

// Ingested reports whether fileName was loaded successfully before.
func (l *Ledger) Ingested(ctx context.Context, fileName string) (bool, error) {
	e, ok, err := l.Get(ctx, fileName)
	return ok && e.Success, err
}

// MarkSuccess records a successful load.
func (l *Ledger) MarkSuccess(ctx context.Context, fileName string) error {
	return l.upsert(ctx, fileName, true, "")
}

// MarkError records a failed load with its cause.
func (l *Ledger) MarkError(ctx context.Context, fileName, cause string) error {
	return l.upsert(ctx, fileName, false, cause)
}

func (l *Ledger) upsert(ctx context.Context, fileName string, success bool, cause string) error {
	ok := 0
	if success {
		ok = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO news_ledger (file_name, success, error, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (file_name) DO UPDATE SET success = excluded.success, error = excluded.error, updated_at = excluded.updated_at`,
		fileName, ok, cause, l.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("updating ledger entry %s: %w", fileName, err)
	}
	return nil
}

// RecordDuplicate prepends the current time to the entry's duplicate list
// and returns the number of duplicate deliveries so far.
func (l *Ledger) RecordDuplicate(ctx context.Context, fileName string) (int, error) {
	e, ok, err := l.Get(ctx, fileName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no ledger entry for %s", fileName)
	}
	dups := append([]time.Time{l.now().UTC()}, e.Duplicates...)
	payload, err := json.Marshal(dups)
	if err != nil {
		return 0, err
	}
	if _, err := l.db.ExecContext(ctx,
		`UPDATE news_ledger SET duplicates = ? WHERE file_name = ?`, string(payload), fileName); err != nil {
		return 0, fmt.Errorf("recording duplicate of %s: %w", fileName, err)
	}
	return len(dups), nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }
