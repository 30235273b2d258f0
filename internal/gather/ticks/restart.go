package ticks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticklake/internal/metrics"
	"ticklake/internal/source"
	"ticklake/internal/util"
)

// RestartGuard suspends the retrieval loop around the upstream's daily
// restart: it drops the connection, sleeps for the configured pause, then
// reconnects before letting the loop fetch again.
type RestartGuard struct {
	calendar *util.RestartCalendar
	pause    time.Duration
	conn     source.Connector
	onPause  func(paused bool)
	metrics  *metrics.Metrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// NewRestartGuard creates a guard. conn may be nil when the source keeps no
// session; onPause, if set, is told when a pause starts and ends.
func NewRestartGuard(cal *util.RestartCalendar, pause time.Duration, conn source.Connector, onPause func(bool), m *metrics.Metrics) *RestartGuard {
	return &RestartGuard{
		calendar: cal,
		pause:    pause,
		conn:     conn,
		onPause:  onPause,
		metrics:  m,
		now:      time.Now,
		sleep:    util.Sleep,
		log:      slog.Default().With("component", "restart-guard"),
	}
}

// Check blocks for the full pause when the current time is inside a restart
// window and reports whether it paused. A nil guard never pauses.
func (g *RestartGuard) Check(ctx context.Context) (bool, error) {
	if g == nil {
		return false, nil
	}
	restart, ok := g.calendar.InWindow(g.now())
	if !ok {
		return false, nil
	}

	g.log.Warn("inside upstream restart window, pausing", "restart", restart, "pause", g.pause)
	g.metrics.RestartPause()
	if g.onPause != nil {
		g.onPause(true)
		defer g.onPause(false)
	}

	if g.conn != nil {
		if err := g.conn.Disconnect(); err != nil {
			g.log.Warn("disconnect failed", "err", err)
		}
	}
	if err := g.sleep(ctx, g.pause); err != nil {
		return true, err
	}
	if g.conn != nil {
		err := util.Retry(ctx, 10, 5*time.Second, time.Minute, func(attempt int) error {
			if err := g.conn.Reconnect(ctx); err != nil {
				g.log.Warn("reconnect failed", "attempt", attempt, "err", err)
				return err
			}
			return nil
		})
		if err != nil {
			return true, fmt.Errorf("reconnecting after restart pause: %w", err)
		}
	}
	g.log.Info("resumed after restart pause")
	return true, nil
}
