package ticks

import (
	"context"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/warehouse"
)

// Batch accumulates ticks for one (ticker, kind) table and assigns each the
// 0-based order of its position within its second. Order numbering carries
// over between Append calls and across flushes, so a second split over two
// pages keeps counting.
type Batch struct {
	table string
	kind  domain.TickKind
	rows  []domain.Tick

	lastTs    time.Time
	lastOrder int
}

// NewBatch creates an empty batch bound to table.
func NewBatch(table string, kind domain.TickKind) *Batch {
	return &Batch{table: table, kind: kind}
}

// Append assigns order to ticks and adds them. Input order is preserved.
func (b *Batch) Append(ticks []domain.Tick) {
	for _, t := range ticks {
		if !b.lastTs.IsZero() && t.Timestamp.Equal(b.lastTs) {
			b.lastOrder++
		} else {
			b.lastTs = t.Timestamp
			b.lastOrder = 0
		}
		t.Order = b.lastOrder
		b.rows = append(b.rows, t)
	}
}

// Len returns the number of buffered rows.
func (b *Batch) Len() int { return len(b.rows) }

// Rows returns the buffered rows.
func (b *Batch) Rows() []domain.Tick { return b.rows }

// Table returns the destination table.
func (b *Batch) Table() string { return b.table }

// Flush appends the buffered rows to w and clears them on success. On
// failure the rows are kept for the next attempt.
func (b *Batch) Flush(ctx context.Context, w warehouse.Warehouse) (int, error) {
	n := len(b.rows)
	if n == 0 {
		return 0, nil
	}
	if err := w.Append(ctx, b.table, b.kind, b.rows); err != nil {
		return 0, err
	}
	b.rows = nil
	return n, nil
}
