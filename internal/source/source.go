// Package source adapts the brokerage market-data API into the tick source
// the retrieval loop consumes.
package source

import (
	"context"
	"time"

	"ticklake/internal/domain"
)

// TickSource returns historical ticks. Fetch returns at most maxCount ticks
// of kind in [start, end), ordered by timestamp, or an empty slice when the
// window has no data. It does not retry; transient failures wrap
// domain.ErrUpstreamUnavailable.
type TickSource interface {
	Fetch(ctx context.Context, sec domain.Security, start, end time.Time, maxCount int, kind domain.TickKind) ([]domain.Tick, error)
}

// Connector is implemented by sources holding an upstream session that must
// be dropped and re-established around scheduled upstream restarts.
type Connector interface {
	Disconnect() error
	Reconnect(ctx context.Context) error
}

// Resolver maps a ticker to the securities it could denote.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) ([]domain.Security, error)
}
