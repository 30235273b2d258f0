package ticks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/metrics"
	"ticklake/internal/source"
	"ticklake/internal/warehouse"
)

// State is a step of the per-(ticker, kind) retrieval state machine.
type State string

const (
	StateLocatingStart State = "LOCATING_START"
	StateFetching      State = "FETCHING"
	StateGapSkip       State = "GAP_SKIP"
	StateAdvancing     State = "ADVANCING"
	StateCaughtUp      State = "CAUGHT_UP"
)

// RetrieverConfig holds the loop's tunables.
type RetrieverConfig struct {
	PageSize       int           // max ticks per fetch
	FlushThreshold int           // flush once the batch holds more rows than this
	GapSkip        time.Duration // cursor advance after an empty window
}

// Result summarises one retrieval run.
type Result struct {
	Table    string
	Start    time.Time // first cursor
	Cursor   time.Time // final cursor
	State    State
	Fetches  int
	Fetched  int
	Written  int
	GapSkips int
	Pauses   int
}

// Retriever walks one (ticker, kind) from its start cursor up to now,
// appending everything it fetches to the warehouse.
type Retriever struct {
	src     source.TickSource
	wh      warehouse.Warehouse
	locator *Locator
	guard   *RestartGuard
	cfg     RetrieverConfig
	metrics *metrics.Metrics
	now     func() time.Time
	log     *slog.Logger
}

// NewRetriever wires the loop. guard may be nil.
func NewRetriever(src source.TickSource, wh warehouse.Warehouse, locator *Locator, guard *RestartGuard, cfg RetrieverConfig, m *metrics.Metrics) *Retriever {
	return &Retriever{
		src:     src,
		wh:      wh,
		locator: locator,
		guard:   guard,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		log:     slog.Default().With("component", "retriever"),
	}
}

// StartCursor derives where retrieval resumes: one tick past the newest
// persisted row when the table has data, otherwise the first day the
// locator finds.
func (r *Retriever) StartCursor(ctx context.Context, sec domain.Security, table string, kind domain.TickKind) (time.Time, error) {
	exists, err := r.wh.TableExists(ctx, table)
	if err != nil {
		return time.Time{}, fmt.Errorf("checking %s: %w", table, err)
	}
	if exists {
		maxTs, ok, err := r.wh.MaxTimestamp(ctx, table)
		if err != nil {
			return time.Time{}, fmt.Errorf("max timestamp of %s: %w", table, err)
		}
		if ok {
			return maxTs.Add(domain.TickResolution), nil
		}
	}
	return r.locator.Locate(ctx, sec, kind)
}

// Run retrieves ticks of kind for sec into the ticker's table until the
// cursor passes the current time. Upstream failures that outlast the
// source's retries end the run with the batch flushed as far as possible;
// the cursor is never advanced past a window that failed.
func (r *Retriever) Run(ctx context.Context, sec domain.Security, ticker string, kind domain.TickKind) (Result, error) {
	table := domain.TableName(ticker, kind)
	res := Result{Table: table, State: StateLocatingStart}
	log := r.log.With("ticker", ticker, "kind", kind)

	if !kind.Valid() {
		return res, fmt.Errorf("%w: %q", domain.ErrInvalidTickKind, kind)
	}

	cursor, err := r.StartCursor(ctx, sec, table, kind)
	if err != nil {
		return res, err
	}
	res.Start, res.Cursor = cursor, cursor
	res.State = StateFetching
	log.Info("retrieval started", "cursor", cursor)

	batch := NewBatch(table, kind)
	for {
		if err := ctx.Err(); err != nil {
			r.flushBestEffort(batch, &res, log)
			return res, err
		}

		now := r.now()
		if cursor.After(now) {
			if err := r.flush(ctx, batch, &res); err != nil {
				return res, err
			}
			res.State = StateCaughtUp
			log.Info("caught up", "cursor", cursor, "fetched", res.Fetched, "written", res.Written, "gap_skips", res.GapSkips)
			return res, nil
		}

		paused, err := r.guard.Check(ctx)
		if paused {
			res.Pauses++
		}
		if err != nil {
			r.flushBestEffort(batch, &res, log)
			return res, err
		}
		if paused {
			continue
		}

		ticks, err := r.src.Fetch(ctx, sec, cursor, now, r.cfg.PageSize, kind)
		res.Fetches++
		if err != nil {
			r.flushBestEffort(batch, &res, log)
			return res, fmt.Errorf("fetching %s from %s: %w", table, cursor.Format(time.RFC3339), err)
		}

		if len(ticks) == 0 {
			res.State = StateGapSkip
			res.GapSkips++
			r.metrics.GapSkip(string(kind))
			cursor = cursor.Add(r.cfg.GapSkip)
			res.Cursor = cursor
			log.Debug("empty window, skipping ahead", "cursor", cursor)
			continue
		}

		res.State = StateAdvancing
		res.Fetched += len(ticks)
		r.metrics.TicksFetched(string(kind), len(ticks))

		first, last := ticks[0].Timestamp, ticks[len(ticks)-1].Timestamp
		if len(ticks) > 1 && first.Equal(last) {
			// The page starts inside a second already returned by the
			// previous window.
			ticks = ticks[1:]
		}
		batch.Append(ticks)
		cursor = last.Add(domain.TickResolution)
		res.Cursor = cursor
		r.metrics.Cursor(string(kind), cursor.Unix())

		log.Debug("page appended", "from", first, "to", last, "page", len(ticks), "batch", batch.Len())

		if batch.Len() > r.cfg.FlushThreshold {
			if err := r.flush(ctx, batch, &res); err != nil {
				log.Error("flush failed, keeping batch", "rows", batch.Len(), "err", err)
			}
		}
		res.State = StateFetching
	}
}

func (r *Retriever) flush(ctx context.Context, batch *Batch, res *Result) error {
	n, err := batch.Flush(ctx, r.wh)
	r.metrics.Flush(string(batch.kind), n, err)
	if err != nil {
		if !errors.Is(err, domain.ErrWriteFailure) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrWriteFailure, batch.Table(), err)
		}
		return err
	}
	res.Written += n
	if n > 0 {
		r.log.Info("batch flushed", "table", batch.Table(), "rows", n)
	}
	return nil
}

// flushBestEffort persists what has been fetched before the loop exits on an
// error. It runs detached from ctx so a cancelled run still saves progress.
func (r *Retriever) flushBestEffort(batch *Batch, res *Result, log *slog.Logger) {
	if batch.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.flush(ctx, batch, res); err != nil {
		log.Error("final flush failed, rows will be re-fetched", "rows", batch.Len(), "err", err)
	}
}
