package news

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ticklake/internal/domain"
	"ticklake/internal/gather"
	"ticklake/internal/notify"
	"ticklake/internal/warehouse"
)

// Compile-time interface check.
var _ gather.Gatherer = (*Ingester)(nil)

// Route classifies a news file by its name.
type Route string

const (
	RouteUSPR    Route = "uspr"
	RouteCNPR    Route = "cnpr"
	RouteSEC     Route = "sec"
	RouteUnknown Route = "unknown"
)

// RouteOf returns the route for fileName. US press releases carry "_USPR_";
// Canadian ones "CNPR" or "CANADA"; filings "SEC".
func RouteOf(fileName string) Route {
	switch {
	case strings.Contains(fileName, "_USPR_"):
		return RouteUSPR
	case strings.Contains(fileName, "CNPR"), strings.Contains(fileName, "CANADA"):
		return RouteCNPR
	case strings.Contains(fileName, "SEC"):
		return RouteSEC
	default:
		return RouteUnknown
	}
}

// Notification channels.
const (
	ChannelSuccess   = "news.success"
	ChannelError     = "news.error"
	ChannelDuplicate = "news.duplicate"
	ChannelNoTicker  = "news.no_ticker"
	ChannelCNPR      = "news.cnpr"
	ChannelSEC       = "news.sec"
	ChannelUnknown   = "news.unknown"
)

// Outcome is what happened to one file.
type Outcome string

const (
	OutcomeLoaded    Outcome = "loaded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoTicker  Outcome = "no_ticker"
	OutcomeFailed    Outcome = "failed"
	OutcomeForwarded Outcome = "forwarded"
)

// Ingester loads the news files of a directory into the warehouse.
type Ingester struct {
	wh       warehouse.Warehouse
	ledger   *Ledger
	notifier notify.Notifier
	table    string
	dir      string
	log      *slog.Logger

	summary map[Outcome]int
}

// NewIngester creates an ingester reading files under dir and appending to
// table.
func NewIngester(wh warehouse.Warehouse, ledger *Ledger, n notify.Notifier, table, dir string) *Ingester {
	return &Ingester{
		wh:       wh,
		ledger:   ledger,
		notifier: n,
		table:    table,
		dir:      dir,
		log:      slog.Default().With("gatherer", "news-ingest"),
	}
}

// Name returns the gatherer identifier.
func (in *Ingester) Name() string { return "news-ingest" }

// Run ingests every regular file under the input directory in name order.
// Per-file failures are recorded and do not stop the run.
func (in *Ingester) Run(ctx context.Context) error {
	var files []string
	err := filepath.WalkDir(in.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", in.dir, err)
	}
	sort.Strings(files)

	in.summary = make(map[Outcome]int)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, err := filepath.Rel(in.dir, path)
		if err != nil {
			name = filepath.Base(path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		outcome, err := in.Ingest(ctx, filepath.ToSlash(name), data)
		in.summary[outcome]++
		if err != nil {
			in.log.Error("ingest failed", "file", name, "err", err)
		}
	}
	in.log.Info("news ingest finished", "files", len(files), "summary", in.summary)
	return nil
}

// Summary returns per-outcome file counts of the last Run.
func (in *Ingester) Summary() map[Outcome]int { return in.summary }

// Ingest processes one file.
func (in *Ingester) Ingest(ctx context.Context, fileName string, data []byte) (Outcome, error) {
	switch RouteOf(fileName) {
	case RouteCNPR:
		in.announce(ctx, ChannelCNPR, fileName, "CNPR streaming file")
		return OutcomeForwarded, nil
	case RouteSEC:
		in.announce(ctx, ChannelSEC, fileName, "SEC streaming file")
		return OutcomeForwarded, nil
	case RouteUnknown:
		in.announce(ctx, ChannelUnknown, fileName, "unknown streaming file")
		return OutcomeForwarded, nil
	}

	done, err := in.ledger.Ingested(ctx, fileName)
	if err != nil {
		return OutcomeFailed, err
	}
	if done {
		n, err := in.ledger.RecordDuplicate(ctx, fileName)
		if err != nil {
			return OutcomeFailed, err
		}
		in.log.Warn("duplicate news file", "file", fileName, "deliveries", n+1)
		in.announce(ctx, ChannelDuplicate, fileName, "duplicate streaming file")
		return OutcomeDuplicate, nil
	}

	rec, err := Parse(data, fileName)
	if errors.Is(err, ErrNoTicker) {
		in.announce(ctx, ChannelNoTicker, fileName, "no ticker in streaming file")
		return OutcomeNoTicker, nil
	}
	if err == nil {
		err = in.wh.AppendNews(ctx, in.table, []domain.NewsRecord{rec})
	}
	if err != nil {
		if lerr := in.ledger.MarkError(ctx, fileName, err.Error()); lerr != nil {
			err = errors.Join(err, lerr)
		}
		_ = notify.Send(ctx, in.notifier, ChannelError, notify.Event{
			Source: in.Name(), File: fileName, Message: "error streaming file", Error: err.Error(),
		})
		return OutcomeFailed, err
	}

	if err := in.ledger.MarkSuccess(ctx, fileName); err != nil {
		return OutcomeFailed, err
	}
	_ = notify.Send(ctx, in.notifier, ChannelSuccess, notify.Event{
		Source: in.Name(), File: fileName, Ticker: rec.Ticker,
		Message: fmt.Sprintf("file streamed into %s", in.table),
	})
	in.log.Info("news loaded", "file", fileName, "ticker", rec.Ticker, "exchange", rec.Exchange)
	return OutcomeLoaded, nil
}

func (in *Ingester) announce(ctx context.Context, channel, fileName, msg string) {
	_ = notify.Send(ctx, in.notifier, channel, notify.Event{Source: in.Name(), File: fileName, Message: msg})
}
