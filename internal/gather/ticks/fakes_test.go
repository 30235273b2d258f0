package ticks

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/gather"
)

type fetchCall struct {
	start, end time.Time
	max        int
	kind       domain.TickKind
}

// fakeSource serves ticks from memory. A positive lookahead makes it behave
// like an upstream that only scans that far past the window start.
type fakeSource struct {
	mu        sync.Mutex
	ticks     map[domain.TickKind][]domain.Tick
	lookahead time.Duration
	calls     []fetchCall
	errs      []error // returned, in order, before serving data
}

func newFakeSource() *fakeSource {
	return &fakeSource{ticks: make(map[domain.TickKind][]domain.Tick)}
}

func (f *fakeSource) add(kind domain.TickKind, ts ...time.Time) {
	for _, t := range ts {
		f.ticks[kind] = append(f.ticks[kind], domain.Tick{Timestamp: t, Price: 10, Size: 1})
	}
	sort.SliceStable(f.ticks[kind], func(i, j int) bool {
		return f.ticks[kind][i].Timestamp.Before(f.ticks[kind][j].Timestamp)
	})
}

func (f *fakeSource) Fetch(_ context.Context, _ domain.Security, start, end time.Time, maxCount int, kind domain.TickKind) ([]domain.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{start: start, end: end, max: maxCount, kind: kind})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if f.lookahead > 0 && start.Add(f.lookahead).Before(end) {
		end = start.Add(f.lookahead)
	}
	window := gather.DateRange{Start: start, End: end}
	var out []domain.Tick
	for _, t := range f.ticks[kind] {
		if window.Contains(t.Timestamp) {
			out = append(out, t)
			if len(out) == maxCount {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// scriptedSource returns canned pages in order, then empty pages.
type scriptedSource struct {
	pages [][]domain.Tick
	calls []fetchCall
}

func (s *scriptedSource) Fetch(_ context.Context, _ domain.Security, start, end time.Time, maxCount int, kind domain.TickKind) ([]domain.Tick, error) {
	s.calls = append(s.calls, fetchCall{start: start, end: end, max: maxCount, kind: kind})
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

// memWarehouse keeps tables in memory. failAppends makes that many Append
// calls fail before succeeding.
type memWarehouse struct {
	mu          sync.Mutex
	tables      map[string][]domain.Tick
	news        map[string][]domain.NewsRecord
	failAppends int
	appends     int
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{
		tables: make(map[string][]domain.Tick),
		news:   make(map[string][]domain.NewsRecord),
	}
}

func (w *memWarehouse) TableExists(_ context.Context, table string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tables[table]
	return ok, nil
}

func (w *memWarehouse) MaxTimestamp(_ context.Context, table string) (time.Time, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var max time.Time
	for _, t := range w.tables[table] {
		if t.Timestamp.After(max) {
			max = t.Timestamp
		}
	}
	return max, !max.IsZero(), nil
}

func (w *memWarehouse) Append(_ context.Context, table string, _ domain.TickKind, ticks []domain.Tick) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appends++
	if w.failAppends > 0 {
		w.failAppends--
		return domain.ErrWriteFailure
	}
	w.tables[table] = append(w.tables[table], ticks...)
	return nil
}

func (w *memWarehouse) AppendNews(_ context.Context, table string, records []domain.NewsRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.news[table] = append(w.news[table], records...)
	return nil
}

func (w *memWarehouse) Close() error { return nil }

func (w *memWarehouse) rows(table string) []domain.Tick {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Tick(nil), w.tables[table]...)
}

type fakeResolver map[string][]domain.Security

func (r fakeResolver) Resolve(_ context.Context, ticker string) ([]domain.Security, error) {
	return r[ticker], nil
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
