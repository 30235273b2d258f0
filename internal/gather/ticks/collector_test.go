package ticks

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"ticklake/internal/domain"
	"ticklake/internal/notify"
	"ticklake/internal/queue"
)

type recordedEvent struct {
	channel string
	event   notify.Event
}

type captureNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *captureNotifier) Publish(_ context.Context, channel string, payload []byte) error {
	var ev notify.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{channel: channel, event: ev})
	return nil
}

func (n *captureNotifier) Close() error { return nil }

func (n *captureNotifier) tickers(channel string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.channel == channel {
			out = append(out, e.event.Ticker)
		}
	}
	return out
}

type collectorFixture struct {
	collector *Collector
	client    *queue.Client
	src       *fakeSource
	wh        *memWarehouse
	notifier  *captureNotifier
	moves     []queue.Transition
}

func newCollectorFixture(t *testing.T, resolver fakeResolver, now time.Time) *collectorFixture {
	t.Helper()
	store, err := queue.NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &collectorFixture{
		client:   queue.NewClient(store, queue.Worker{User: "alice", Account: "paper", Resolution: "tick"}),
		src:      newFakeSource(),
		wh:       newMemWarehouse(),
		notifier: &captureNotifier{},
	}
	machine := queue.NewStateMachine(f.client, queue.WithObserver(func(tr queue.Transition) {
		f.moves = append(f.moves, tr)
	}))
	r := newTestRetriever(f.src, f.wh, now, defaultCfg)
	f.collector = NewCollector(machine, resolver, r, f.notifier, nil, CollectorConfig{MaxTickerFailures: 2})
	f.collector.sleep = noSleep
	return f
}

func (f *collectorFixture) list(t *testing.T, doc queue.Document) []string {
	t.Helper()
	got, err := f.client.List(context.Background(), doc)
	if err != nil {
		t.Fatalf("List(%s): %v", doc, err)
	}
	return got
}

func TestCollectorMovesCaughtUpTickerToMaintain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	f := newCollectorFixture(t, fakeResolver{"ACME": {acme}}, now)

	first := time.Date(2024, 6, 14, 14, 30, 0, 0, time.UTC)
	f.src.add(domain.TickKindTrade, first, first, first.Add(time.Second))
	f.src.add(domain.TickKindQuote, first)

	if err := f.client.Add(ctx, queue.Todo, "ACME"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.collector.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.list(t, queue.Maintain); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("maintain = %v", got)
	}
	if got := f.list(t, queue.Doing); len(got) != 0 {
		t.Errorf("doing = %v, want empty", got)
	}
	if n := len(f.wh.rows("ACME_T")); n != 3 {
		t.Errorf("ACME_T rows = %d, want 3", n)
	}
	if n := len(f.wh.rows("ACME_BA")); n != 1 {
		t.Errorf("ACME_BA rows = %d, want 1", n)
	}
	// Quotes are retrieved before trades.
	if f.src.calls[0].kind != domain.TickKindQuote {
		t.Errorf("first fetch kind = %s, want %s", f.src.calls[0].kind, domain.TickKindQuote)
	}
	want := []queue.Transition{
		{Ticker: "ACME", From: queue.Todo, To: queue.Doing},
		{Ticker: "ACME", From: queue.Doing, To: queue.Maintain},
	}
	if !slices.Equal(f.moves, want) {
		t.Errorf("moves = %v", f.moves)
	}
	if got := f.notifier.tickers(notify.ChannelMaintain); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("maintain notifications = %v", got)
	}
}

func TestCollectorRejectsUnresolvedTicker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	f := newCollectorFixture(t, fakeResolver{}, now)

	if err := f.client.Add(ctx, queue.Todo, "XYZ"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.collector.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.list(t, queue.BadContract); !slices.Equal(got, []string{"XYZ"}) {
		t.Errorf("bad_contract = %v", got)
	}
	if f.src.callCount() != 0 {
		t.Errorf("fetches = %d, want 0", f.src.callCount())
	}
	if got := f.notifier.tickers(notify.ChannelBadContract); !slices.Equal(got, []string{"XYZ"}) {
		t.Errorf("bad_contract notifications = %v", got)
	}
}

func TestCollectorRejectsAmbiguousAndContinues(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	twin := domain.Security{Symbol: "DUP", AssetID: "a"}
	f := newCollectorFixture(t, fakeResolver{
		"DUP":  {twin, {Symbol: "DUP", AssetID: "b"}},
		"ACME": {acme},
	}, now)
	first := time.Date(2024, 6, 14, 14, 30, 0, 0, time.UTC)
	f.src.add(domain.TickKindTrade, first)
	f.src.add(domain.TickKindQuote, first)

	if err := f.client.Add(ctx, queue.Todo, "DUP", "ACME"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.collector.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.list(t, queue.BadContract); !slices.Equal(got, []string{"DUP"}) {
		t.Errorf("bad_contract = %v", got)
	}
	if got := f.list(t, queue.Maintain); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("maintain = %v", got)
	}
}

func TestCollectorRejectsTickerWithoutHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	f := newCollectorFixture(t, fakeResolver{"ACME": {acme}}, now)
	// Trades exist but quotes never do.
	f.src.add(domain.TickKindTrade, time.Date(2024, 6, 14, 14, 30, 0, 0, time.UTC))

	if err := f.client.Add(ctx, queue.Todo, "ACME"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.collector.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.list(t, queue.BadContract); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("bad_contract = %v", got)
	}
}

func TestCollectorResumesClaimedTicker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	f := newCollectorFixture(t, fakeResolver{"ACME": {acme}, "NEXT": nil}, now)
	first := time.Date(2024, 6, 14, 14, 30, 0, 0, time.UTC)
	f.src.add(domain.TickKindTrade, first)
	f.src.add(domain.TickKindQuote, first)

	// A crash left ACME in this worker's slot and still in todo. Run
	// reconciles the duplicate and resumes ACME before claiming NEXT.
	slot := f.client.Field(queue.Doing)
	if slot != "alice.paper.tick" {
		t.Fatalf("slot field = %q", slot)
	}
	if err := f.client.Add(ctx, queue.Todo, "ACME", "NEXT"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.client.Add(ctx, queue.Doing, "ACME"); err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	if err := f.collector.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.list(t, queue.Maintain); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("maintain = %v", got)
	}
	if got := f.list(t, queue.BadContract); !slices.Equal(got, []string{"NEXT"}) {
		t.Errorf("bad_contract = %v", got)
	}
	if got := f.list(t, queue.Todo); len(got) != 0 {
		t.Errorf("todo = %v, want empty", got)
	}
	if f.moves[0] != (queue.Transition{Ticker: "ACME", From: queue.Doing, To: queue.Maintain}) {
		t.Errorf("first move = %v, want ACME resumed straight to maintain", f.moves[0])
	}
}

func TestCollectorRequeuesAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	f := newCollectorFixture(t, fakeResolver{"ACME": {acme}}, now)
	upstream := domain.NewUpstreamError("probe", errors.New("503"))
	f.src.errs = []error{upstream, upstream}

	if err := f.client.Add(ctx, queue.Todo, "ACME", "NEXT"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	outcome, _, err := f.collector.Step(ctx)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) || outcome != OutcomeRetry {
		t.Fatalf("first Step = %s, %v", outcome, err)
	}
	if got := f.list(t, queue.Doing); !slices.Equal(got, []string{"ACME"}) {
		t.Errorf("doing after one failure = %v", got)
	}

	outcome, _, err = f.collector.Step(ctx)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) || outcome != OutcomeRequeued {
		t.Fatalf("second Step = %s, %v", outcome, err)
	}
	if got := f.list(t, queue.Todo); !slices.Equal(got, []string{"NEXT", "ACME"}) {
		t.Errorf("todo = %v, want [NEXT ACME]", got)
	}
}

func TestCollectorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newCollectorFixture(t, fakeResolver{}, time.Now())
	f.collector.cfg.IdleWait = time.Hour
	f.collector.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	if err := f.collector.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestCollectorRejectsMisorderedKinds(t *testing.T) {
	f := newCollectorFixture(t, fakeResolver{}, time.Now())
	f.collector.cfg.Kinds = []domain.TickKind{domain.TickKindTrade, domain.TickKindQuote}
	if err := f.collector.Run(context.Background()); !errors.Is(err, domain.ErrInvalidTickKind) {
		t.Fatalf("Run = %v, want ErrInvalidTickKind", err)
	}
}
