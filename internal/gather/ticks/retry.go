package ticks

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ticklake/internal/domain"
	"ticklake/internal/metrics"
	"ticklake/internal/source"
)

// Compile-time interface check.
var _ source.TickSource = (*RetryingSource)(nil)

// RetryingSource retries retriable failures of the wrapped source with
// exponential backoff, always re-requesting the same window. Any other error
// is returned immediately.
type RetryingSource struct {
	src         source.TickSource
	initial     time.Duration
	maxInterval time.Duration
	maxElapsed  time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// NewRetryingSource wraps src. Retrying stops once maxElapsed has passed
// since the first failure; the last upstream error is returned then.
func NewRetryingSource(src source.TickSource, maxElapsed time.Duration, m *metrics.Metrics) *RetryingSource {
	return &RetryingSource{
		src:         src,
		initial:     time.Second,
		maxInterval: time.Minute,
		maxElapsed:  maxElapsed,
		metrics:     m,
		log:         slog.Default().With("component", "source-retry"),
	}
}

// Fetch implements source.TickSource.
func (s *RetryingSource) Fetch(ctx context.Context, sec domain.Security, start, end time.Time, maxCount int, kind domain.TickKind) ([]domain.Tick, error) {
	var out []domain.Tick
	op := func() error {
		ticks, err := s.src.Fetch(ctx, sec, start, end, maxCount, kind)
		if err != nil {
			if domain.IsRetriable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = ticks
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.MaxInterval = s.maxInterval
	bo.MaxElapsedTime = s.maxElapsed

	notify := func(err error, wait time.Duration) {
		s.metrics.FetchRetry(string(kind))
		s.log.Warn("fetch failed, retrying same window",
			"symbol", sec.Symbol, "kind", kind, "start", start, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}
