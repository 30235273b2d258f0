// Package warehouse persists tick batches and news records into append-only
// tables, one table per (ticker, kind), and answers the maximum-timestamp
// queries the retrieval cursor is derived from.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"ticklake/internal/domain"
)

// Warehouse is an append-only table store.
type Warehouse interface {
	// TableExists reports whether table has been created.
	TableExists(ctx context.Context, table string) (bool, error)

	// MaxTimestamp returns the latest datetime stored in table. ok is false
	// when the table is missing or holds no rows.
	MaxTimestamp(ctx context.Context, table string) (ts time.Time, ok bool, err error)

	// Append adds ticks of kind to table, creating it if needed. Rows are
	// never overwritten; failures wrap domain.ErrWriteFailure.
	Append(ctx context.Context, table string, kind domain.TickKind, ticks []domain.Tick) error

	// AppendNews adds news records to table.
	AppendNews(ctx context.Context, table string, records []domain.NewsRecord) error

	Close() error
}

// Column describes one column of a table schema.
type Column struct {
	Name     string
	Type     string // TIMESTAMP | INT | FLOAT | BOOL | STRING
	Required bool
}

// QuoteSchema is the fixed schema of BID_ASK tables.
var QuoteSchema = []Column{
	{Name: "datetime", Type: "TIMESTAMP", Required: true},
	{Name: "order", Type: "INT", Required: true},
	{Name: "price_bid", Type: "FLOAT"},
	{Name: "size_bid", Type: "INT"},
	{Name: "price_ask", Type: "FLOAT"},
	{Name: "size_ask", Type: "INT"},
	{Name: "bid_past_low", Type: "BOOL"},
	{Name: "ask_past_high", Type: "BOOL"},
}

// TradeSchema is the fixed schema of TRADES tables.
var TradeSchema = []Column{
	{Name: "datetime", Type: "TIMESTAMP", Required: true},
	{Name: "order", Type: "INT", Required: true},
	{Name: "price", Type: "FLOAT"},
	{Name: "size", Type: "INT"},
	{Name: "exchange", Type: "STRING"},
	{Name: "special_conditions", Type: "STRING"},
}

// NewsSchema is the schema of the news table.
var NewsSchema = []Column{
	{Name: "received_time", Type: "TIMESTAMP", Required: true},
	{Name: "publication_time", Type: "TIMESTAMP"},
	{Name: "ticker", Type: "STRING"},
	{Name: "exchange", Type: "STRING"},
	{Name: "title", Type: "STRING"},
	{Name: "distributor", Type: "STRING"},
	{Name: "headlines", Type: "STRING"},
	{Name: "industry_codes", Type: "STRING"},
	{Name: "body", Type: "STRING"},
	{Name: "language", Type: "STRING"},
	{Name: "file_name", Type: "STRING"},
}

// Schema returns the schema for kind.
func Schema(kind domain.TickKind) ([]Column, error) {
	switch kind {
	case domain.TickKindQuote:
		return QuoteSchema, nil
	case domain.TickKindTrade:
		return TradeSchema, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTickKind, kind)
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// maxTick returns the latest timestamp in ticks. Batches are ordered, but
// the scan keeps this correct for any input.
func maxTick(ticks []domain.Tick) time.Time {
	var m time.Time
	for _, t := range ticks {
		if t.Timestamp.After(m) {
			m = t.Timestamp
		}
	}
	return m
}

func writeErr(table string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailure, table, err)
}
