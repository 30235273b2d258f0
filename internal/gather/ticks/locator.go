package ticks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/gather"
	"ticklake/internal/source"
)

// bisectScanWidth is the candidate count at which bisection stops and the
// remainder is scanned linearly.
const bisectScanWidth = 3

// firstTrue returns the index of the earliest of n candidates for which
// probe holds, or -1 if it holds for none. probe must be monotone: once true
// for candidate i it is true for every later candidate. The candidates are
// halved into contiguous ranges until at most bisectScanWidth remain, then
// scanned in order, so the answer is always the earliest match and never a
// bisection midpoint.
func firstTrue(ctx context.Context, n int, probe func(ctx context.Context, i int) (bool, error)) (int, error) {
	if n == 0 {
		return -1, nil
	}
	ok, err := probe(ctx, n-1)
	if err != nil || !ok {
		return -1, err
	}

	// Invariant: probe(hi) is true and every candidate before lo is false.
	lo, hi := 0, n-1
	for hi-lo+1 > bisectScanWidth {
		mid := lo + (hi-lo)/2
		ok, err := probe(ctx, mid)
		if err != nil {
			return -1, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	for i := lo; i < hi; i++ {
		ok, err := probe(ctx, i)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return hi, nil
}

// Locator finds the first UTC day on which a security has ticks.
type Locator struct {
	src          source.TickSource
	probeSize    int
	horizonYears int
	now          func() time.Time
	log          *slog.Logger
}

// NewLocator creates a locator searching the current partial year plus
// horizonYears full years before it. Each probe asks src for at most
// probeSize ticks.
func NewLocator(src source.TickSource, probeSize, horizonYears int) *Locator {
	return &Locator{
		src:          src,
		probeSize:    probeSize,
		horizonYears: horizonYears,
		now:          time.Now,
		log:          slog.Default().With("component", "locator"),
	}
}

var (
	byYear  = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	byMonth = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	byDay   = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
)

// Locate returns the start of the earliest day with at least one tick of
// kind, or domain.ErrNoDataFound. The search narrows years, then months of
// the chosen year, then days of the chosen month. A candidate period "has
// data" when a small query from the horizon start to the period's end is
// non-empty, which makes the predicate monotone across candidates. The
// current year and month are clamped to the end of today.
func (l *Locator) Locate(ctx context.Context, sec domain.Security, kind domain.TickKind) (time.Time, error) {
	now := l.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	span := gather.DateRange{
		Start: time.Date(now.Year()-l.horizonYears, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   today.AddDate(0, 0, 1),
	}
	horizonStart := span.Start

	probes := make(map[time.Time]bool)
	hasDataBefore := func(ctx context.Context, end time.Time) (bool, error) {
		if v, ok := probes[end]; ok {
			return v, nil
		}
		ticks, err := l.src.Fetch(ctx, sec, horizonStart, end, l.probeSize, kind)
		if err != nil {
			return false, fmt.Errorf("probing %s before %s: %w", sec.Symbol, end.Format(time.DateOnly), err)
		}
		probes[end] = len(ticks) > 0
		return probes[end], nil
	}

	for _, step := range []func(time.Time) time.Time{byYear, byMonth, byDay} {
		candidates := span.Split(step)
		idx, err := firstTrue(ctx, len(candidates), func(ctx context.Context, i int) (bool, error) {
			return hasDataBefore(ctx, candidates[i].End)
		})
		if err != nil {
			return time.Time{}, err
		}
		if idx < 0 {
			return time.Time{}, fmt.Errorf("%w: %s %s since %s",
				domain.ErrNoDataFound, sec.Symbol, kind, horizonStart.Format(time.DateOnly))
		}
		span = candidates[idx]
	}

	l.log.Info("located first data", "symbol", sec.Symbol, "kind", kind,
		"day", span.Start.Format(time.DateOnly), "probes", len(probes))
	return span.Start, nil
}
