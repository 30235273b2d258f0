// Package ticks implements historical tick retrieval: locating the first
// day with data, walking a cursor forward through the upstream's paginated
// history into the warehouse, and moving tickers through the work queue.
package ticks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/gather"
	"ticklake/internal/metrics"
	"ticklake/internal/notify"
	"ticklake/internal/queue"
	"ticklake/internal/source"
	"ticklake/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*Collector)(nil)

// Outcome is what happened to a ticker in one Collector step.
type Outcome string

const (
	OutcomeMaintain    Outcome = "maintain"
	OutcomeBadContract Outcome = "bad_contract"
	OutcomeRetry       Outcome = "retry"   // left in doing, resumed next step
	OutcomeRequeued    Outcome = "requeue" // sent back to the end of todo
)

// CollectorConfig holds the worker loop's tunables.
type CollectorConfig struct {
	// Kinds are retrieved in order; the primary kind must be last.
	Kinds []domain.TickKind
	// IdleWait is how long to wait before polling an empty queue again.
	// Zero makes Run return once the queue is drained.
	IdleWait time.Duration
	// ErrorCooldown is the pause after a ticker fails transiently.
	ErrorCooldown time.Duration
	// MaxTickerFailures consecutive failures on one ticker send it back to
	// todo so other tickers can progress. Zero disables requeueing.
	MaxTickerFailures int
}

// Collector is the worker loop: claim a ticker, resolve it, retrieve every
// kind, then move it to its terminal queue.
type Collector struct {
	machine   *queue.StateMachine
	resolver  source.Resolver
	retriever *Retriever
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	cfg       CollectorConfig
	sleep     func(ctx context.Context, d time.Duration) error
	log       *slog.Logger

	failTicker string
	failCount  int
}

// NewCollector wires the worker loop.
func NewCollector(machine *queue.StateMachine, resolver source.Resolver, retriever *Retriever, notifier notify.Notifier, m *metrics.Metrics, cfg CollectorConfig) *Collector {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = domain.RetrievalKinds
	}
	return &Collector{
		machine:   machine,
		resolver:  resolver,
		retriever: retriever,
		notifier:  notifier,
		metrics:   m,
		cfg:       cfg,
		sleep:     util.Sleep,
		log:       slog.Default().With("gatherer", "tick-collector"),
	}
}

// Name returns the gatherer identifier.
func (c *Collector) Name() string { return "tick-collector" }

// Run reconciles the worker slot, then processes tickers one at a time until
// the queue is drained (IdleWait == 0) or ctx is cancelled. Only fatal
// errors end the loop early.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.validateKinds(); err != nil {
		return err
	}
	if repaired, err := c.machine.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconciling queue: %w", err)
	} else if len(repaired) > 0 {
		c.log.Warn("repaired half-applied queue moves", "tickers", repaired)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, ticker, err := c.Step(ctx)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			if c.cfg.IdleWait == 0 {
				c.log.Info("queue drained")
				return nil
			}
			c.log.Debug("queue empty, waiting", "wait", c.cfg.IdleWait)
			if err := c.sleep(ctx, c.cfg.IdleWait); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrInvalidTickKind):
			c.report(ctx, ticker, "", "invalid tick kind, halting", err)
			return err
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.report(ctx, ticker, "", fmt.Sprintf("ticker %s", outcome), err)
			if err := c.sleep(ctx, c.cfg.ErrorCooldown); err != nil {
				return err
			}
		}
	}
}

// Step processes one ticker. On a non-terminal failure the returned error
// is set and the outcome says where the ticker was left.
func (c *Collector) Step(ctx context.Context) (Outcome, string, error) {
	ticker, resumed, err := c.machine.Claim(ctx)
	if err != nil {
		return "", "", err
	}
	log := c.log.With("ticker", ticker)
	log.Info("processing ticker", "resumed", resumed)

	sec, err := source.ResolveOne(ctx, c.resolver, ticker)
	if errors.Is(err, domain.ErrAmbiguousSecurity) {
		return c.reject(ctx, ticker, err)
	}
	if err != nil {
		return c.failed(ctx, ticker, fmt.Errorf("resolving %s: %w", ticker, err))
	}

	for _, kind := range c.cfg.Kinds {
		res, err := c.retriever.Run(ctx, sec, ticker, kind)
		switch {
		case errors.Is(err, domain.ErrNoDataFound):
			return c.reject(ctx, ticker, err)
		case errors.Is(err, domain.ErrInvalidTickKind):
			return OutcomeRetry, ticker, err
		case err != nil:
			return c.failed(ctx, ticker, err)
		}
		log.Info("kind caught up", "kind", kind, "table", res.Table,
			"start", res.Start, "fetched", res.Fetched, "written", res.Written)

		if kind.Primary() {
			if err := c.machine.Complete(ctx, ticker); err != nil {
				return OutcomeRetry, ticker, err
			}
			c.clearFailures(ticker)
			_ = notify.Send(ctx, c.notifier, notify.ChannelMaintain, notify.Event{
				Source: c.Name(), Ticker: ticker, Kind: string(kind),
				Message: fmt.Sprintf("caught up, %d ticks written", res.Written),
			})
			return OutcomeMaintain, ticker, nil
		}
	}
	return OutcomeRetry, ticker, fmt.Errorf("no primary kind configured for %s", ticker)
}

func (c *Collector) reject(ctx context.Context, ticker string, cause error) (Outcome, string, error) {
	c.log.Warn("rejecting ticker", "ticker", ticker, "err", cause)
	if err := c.machine.Reject(ctx, ticker); err != nil {
		return OutcomeRetry, ticker, err
	}
	c.clearFailures(ticker)
	_ = notify.Send(ctx, c.notifier, notify.ChannelBadContract, notify.Event{
		Source: c.Name(), Ticker: ticker, Message: "moved to bad_contract", Error: cause.Error(),
	})
	return OutcomeBadContract, ticker, nil
}

// failed counts a transient failure and requeues the ticker once it has
// failed MaxTickerFailures times in a row.
func (c *Collector) failed(ctx context.Context, ticker string, cause error) (Outcome, string, error) {
	if c.failTicker != ticker {
		c.failTicker, c.failCount = ticker, 0
	}
	c.failCount++
	if c.cfg.MaxTickerFailures > 0 && c.failCount >= c.cfg.MaxTickerFailures {
		if err := c.machine.Requeue(ctx, ticker); err != nil {
			return OutcomeRetry, ticker, errors.Join(cause, err)
		}
		c.clearFailures(ticker)
		return OutcomeRequeued, ticker, cause
	}
	return OutcomeRetry, ticker, cause
}

func (c *Collector) clearFailures(ticker string) {
	if c.failTicker == ticker {
		c.failTicker, c.failCount = "", 0
	}
}

func (c *Collector) report(ctx context.Context, ticker, kind, msg string, err error) {
	c.log.Error(msg, "ticker", ticker, "err", err)
	_ = notify.Send(ctx, c.notifier, notify.ChannelErrors, notify.Event{
		Source: c.Name(), Ticker: ticker, Kind: kind, Message: msg, Error: err.Error(),
	})
}

func (c *Collector) validateKinds() error {
	for i, k := range c.cfg.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidTickKind, k)
		}
		if k.Primary() && i != len(c.cfg.Kinds)-1 {
			return fmt.Errorf("%w: primary kind %s must be retrieved last", domain.ErrInvalidTickKind, k)
		}
	}
	return nil
}
