package warehouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"ticklake/internal/domain"
)

// Compile-time interface check.
var _ Warehouse = (*ParquetWarehouse)(nil)

// ParquetWarehouse stores every table as a directory of immutable Parquet
// part files. Each append writes one new part; nothing is rewritten.
//
//	<root>/<TABLE>/part-<maxUnixMilli>-<uuid>.parquet
//
// Embedding the part's max timestamp in its name lets MaxTimestamp answer
// from a directory listing.
type ParquetWarehouse struct {
	root string
}

// NewParquetWarehouse creates a warehouse rooted at <dataDir>/warehouse/<dataset>.
func NewParquetWarehouse(dataDir, dataset string) *ParquetWarehouse {
	return &ParquetWarehouse{root: filepath.Join(dataDir, "warehouse", dataset)}
}

// Root returns the dataset directory.
func (w *ParquetWarehouse) Root() string { return w.root }

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// QuoteRecord is the Parquet schema for BID_ASK tables.
type QuoteRecord struct {
	Datetime    int64    `parquet:"datetime,timestamp(millisecond)"` // Unix ms
	Order       int64    `parquet:"order"`
	PriceBid    *float64 `parquet:"price_bid,optional"`
	SizeBid     *int64   `parquet:"size_bid,optional"`
	PriceAsk    *float64 `parquet:"price_ask,optional"`
	SizeAsk     *int64   `parquet:"size_ask,optional"`
	BidPastLow  *bool    `parquet:"bid_past_low,optional"`
	AskPastHigh *bool    `parquet:"ask_past_high,optional"`
}

// TradeRecord is the Parquet schema for TRADES tables.
type TradeRecord struct {
	Datetime          int64    `parquet:"datetime,timestamp(millisecond)"` // Unix ms
	Order             int64    `parquet:"order"`
	Price             *float64 `parquet:"price,optional"`
	Size              *int64   `parquet:"size,optional"`
	Exchange          *string  `parquet:"exchange,optional"`
	SpecialConditions *string  `parquet:"special_conditions,optional"`
}

// NewsRow is the Parquet schema for the news table.
type NewsRow struct {
	ReceivedTime    int64  `parquet:"received_time,timestamp(millisecond)"`
	PublicationTime int64  `parquet:"publication_time,timestamp(millisecond)"`
	Ticker          string `parquet:"ticker"`
	Exchange        string `parquet:"exchange"`
	Title           string `parquet:"title"`
	Distributor     string `parquet:"distributor"`
	Headlines       string `parquet:"headlines"`
	IndustryCodes   string `parquet:"industry_codes"`
	Body            string `parquet:"body"`
	Language        string `parquet:"language"`
	FileName        string `parquet:"file_name"`
}

func toQuoteRecords(ticks []domain.Tick) []QuoteRecord {
	out := make([]QuoteRecord, len(ticks))
	for i, t := range ticks {
		out[i] = QuoteRecord{
			Datetime:    t.Timestamp.UnixMilli(),
			Order:       int64(t.Order),
			PriceBid:    ptr(t.BidPrice),
			SizeBid:     ptr(t.BidSize),
			PriceAsk:    ptr(t.AskPrice),
			SizeAsk:     ptr(t.AskSize),
			BidPastLow:  t.BidPastLow,
			AskPastHigh: t.AskPastHigh,
		}
	}
	return out
}

func toTradeRecords(ticks []domain.Tick) []TradeRecord {
	out := make([]TradeRecord, len(ticks))
	for i, t := range ticks {
		out[i] = TradeRecord{
			Datetime:          t.Timestamp.UnixMilli(),
			Order:             int64(t.Order),
			Price:             ptr(t.Price),
			Size:              ptr(t.Size),
			Exchange:          ptr(t.Exchange),
			SpecialConditions: ptr(t.Conditions),
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// Warehouse implementation
// ---------------------------------------------------------------------------

// TableExists reports whether the table directory holds at least one part.
func (w *ParquetWarehouse) TableExists(_ context.Context, table string) (bool, error) {
	parts, err := w.parts(table)
	if err != nil {
		return false, err
	}
	return len(parts) > 0, nil
}

// MaxTimestamp returns the largest max-timestamp encoded in the table's part
// names.
func (w *ParquetWarehouse) MaxTimestamp(_ context.Context, table string) (time.Time, bool, error) {
	parts, err := w.parts(table)
	if err != nil || len(parts) == 0 {
		return time.Time{}, false, err
	}
	var maxMs int64
	for _, p := range parts {
		if p.maxMs > maxMs {
			maxMs = p.maxMs
		}
	}
	return time.UnixMilli(maxMs).UTC(), true, nil
}

// Append writes ticks as a new part file.
func (w *ParquetWarehouse) Append(_ context.Context, table string, kind domain.TickKind, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	maxMs := maxTick(ticks).UnixMilli()

	var err error
	switch kind {
	case domain.TickKindQuote:
		err = writePart(w, table, maxMs, toQuoteRecords(ticks))
	case domain.TickKindTrade:
		err = writePart(w, table, maxMs, toTradeRecords(ticks))
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidTickKind, kind)
	}
	if err != nil {
		return writeErr(table, err)
	}
	return nil
}

// AppendNews writes news records as a new part file.
func (w *ParquetWarehouse) AppendNews(_ context.Context, table string, records []domain.NewsRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]NewsRow, len(records))
	var maxMs int64
	for i, r := range records {
		rows[i] = NewsRow{
			ReceivedTime:    r.ReceivedTime.UnixMilli(),
			PublicationTime: r.PublicationTime.UnixMilli(),
			Ticker:          r.Ticker,
			Exchange:        r.Exchange,
			Title:           r.Title,
			Distributor:     r.Distributor,
			Headlines:       r.Headlines,
			IndustryCodes:   r.IndustryCodes,
			Body:            r.Body,
			Language:        r.Language,
			FileName:        r.FileName,
		}
		maxMs = max(maxMs, rows[i].ReceivedTime)
	}
	if err := writePart(w, table, maxMs, rows); err != nil {
		return writeErr(table, err)
	}
	return nil
}

// Close is a no-op.
func (w *ParquetWarehouse) Close() error { return nil }

// ReadTrades returns every trade row of table ordered by (datetime, order).
func (w *ParquetWarehouse) ReadTrades(table string) ([]TradeRecord, error) {
	rows, err := readParts[TradeRecord](w, table)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Datetime != rows[j].Datetime {
			return rows[i].Datetime < rows[j].Datetime
		}
		return rows[i].Order < rows[j].Order
	})
	return rows, err
}

// ReadQuotes returns every quote row of table ordered by (datetime, order).
func (w *ParquetWarehouse) ReadQuotes(table string) ([]QuoteRecord, error) {
	rows, err := readParts[QuoteRecord](w, table)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Datetime != rows[j].Datetime {
			return rows[i].Datetime < rows[j].Datetime
		}
		return rows[i].Order < rows[j].Order
	})
	return rows, err
}

// ReadNews returns every news row of table in part order.
func (w *ParquetWarehouse) ReadNews(table string) ([]NewsRow, error) {
	return readParts[NewsRow](w, table)
}

// ---------------------------------------------------------------------------
// Part file helpers
// ---------------------------------------------------------------------------

type part struct {
	path  string
	maxMs int64
}

func (w *ParquetWarehouse) tableDir(table string) string {
	return filepath.Join(w.root, table)
}

func (w *ParquetWarehouse) parts(table string) ([]part, error) {
	entries, err := os.ReadDir(w.tableDir(table))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var parts []part
	for _, e := range entries {
		maxMs, ok := parsePartName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		parts = append(parts, part{path: filepath.Join(w.tableDir(table), e.Name()), maxMs: maxMs})
	}
	return parts, nil
}

func partName(maxMs int64) string {
	return fmt.Sprintf("part-%d-%s.parquet", maxMs, uuid.NewString())
}

// parsePartName extracts the max timestamp from "part-<ms>-<uuid>.parquet".
func parsePartName(name string) (int64, bool) {
	if !strings.HasPrefix(name, "part-") || !strings.HasSuffix(name, ".parquet") {
		return 0, false
	}
	rest := strings.TrimPrefix(name, "part-")
	ms, _, found := strings.Cut(rest, "-")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// writePart writes records to a temporary file and renames it into place so
// readers never observe a partial part.
func writePart[T any](w *ParquetWarehouse, table string, maxMs int64, records []T) error {
	dir := w.tableDir(table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	final := filepath.Join(dir, partName(maxMs))
	tmp := filepath.Join(dir, "."+filepath.Base(final)+".tmp")

	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, final)
}

func readParts[T any](w *ParquetWarehouse, table string) ([]T, error) {
	parts, err := w.parts(table)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, p := range parts {
		rows, err := parquet.ReadFile[T](p.path)
		if err != nil {
			return out, fmt.Errorf("reading %s: %w", p.path, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}
