package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"ticklake/internal/domain"
	"ticklake/internal/util"
)

// Compile-time interface checks.
var _ TickSource = (*AlpacaSource)(nil)
var _ Connector = (*AlpacaSource)(nil)

// marketData is the subset of *marketdata.Client the source calls.
type marketData interface {
	GetTrades(symbol string, req marketdata.GetTradesRequest) ([]marketdata.Trade, error)
	GetQuotes(symbol string, req marketdata.GetQuotesRequest) ([]marketdata.Quote, error)
}

// AlpacaSource fetches historical trades and quotes from the Alpaca
// market-data API. Every call consumes one rate-limiter token.
type AlpacaSource struct {
	opts    marketdata.ClientOpts
	feed    marketdata.Feed
	limiter *util.RateLimiter
	dial    func(marketdata.ClientOpts) marketData
	log     *slog.Logger

	mu     sync.Mutex
	client marketData
}

// NewAlpacaSource creates a connected source. An empty dataURL uses the SDK
// default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, limiter *util.RateLimiter) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	s := &AlpacaSource{
		opts:    opts,
		feed:    marketdata.Feed(feed),
		limiter: limiter,
		dial:    func(o marketdata.ClientOpts) marketData { return marketdata.NewClient(o) },
		log:     slog.Default().With("component", "source", "provider", "alpaca"),
	}
	s.client = s.dial(opts)
	return s
}

// Fetch returns up to maxCount ticks of kind for sec in [start, end).
func (s *AlpacaSource) Fetch(ctx context.Context, sec domain.Security, start, end time.Time, maxCount int, kind domain.TickKind) ([]domain.Tick, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTickKind, kind)
	}
	if !start.Before(end) {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	client := s.current()
	if client == nil {
		return nil, domain.NewUpstreamError("fetch", errors.New("disconnected"))
	}

	switch kind {
	case domain.TickKindTrade:
		trades, err := client.GetTrades(sec.Symbol, marketdata.GetTradesRequest{
			Start:      start,
			End:        end,
			TotalLimit: maxCount,
			Feed:       s.feed,
		})
		if err != nil {
			return nil, s.wrap(ctx, "GetTrades", err)
		}
		return convertTrades(trades), nil
	default:
		quotes, err := client.GetQuotes(sec.Symbol, marketdata.GetQuotesRequest{
			Start:      start,
			End:        end,
			TotalLimit: maxCount,
			Feed:       s.feed,
		})
		if err != nil {
			return nil, s.wrap(ctx, "GetQuotes", err)
		}
		return convertQuotes(quotes), nil
	}
}

// Disconnect drops the current client. Fetch fails until Reconnect.
func (s *AlpacaSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.log.Info("disconnected")
	return nil
}

// Reconnect creates a fresh client.
func (s *AlpacaSource) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = s.dial(s.opts)
	s.log.Info("reconnected")
	return nil
}

func (s *AlpacaSource) current() marketData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// wrap classifies a client error. Cancellation passes through untouched so
// callers can tell shutdown from an outage.
func (s *AlpacaSource) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.NewUpstreamError(op, err)
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func convertTrades(in []marketdata.Trade) []domain.Tick {
	out := make([]domain.Tick, len(in))
	for i, t := range in {
		out[i] = domain.Tick{
			Timestamp:  t.Timestamp.UTC().Truncate(domain.TickResolution),
			Price:      t.Price,
			Size:       int64(t.Size),
			Exchange:   t.Exchange,
			Conditions: strings.Join(t.Conditions, ","),
		}
	}
	return out
}

func convertQuotes(in []marketdata.Quote) []domain.Tick {
	out := make([]domain.Tick, len(in))
	for i, q := range in {
		out[i] = domain.Tick{
			Timestamp: q.Timestamp.UTC().Truncate(domain.TickResolution),
			BidPrice:  q.BidPrice,
			BidSize:   int64(q.BidSize),
			AskPrice:  q.AskPrice,
			AskSize:   int64(q.AskSize),
		}
	}
	return out
}
