package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TicksFetched("TRADES", 3)
	m.GapSkip("TRADES")
	m.Flush("TRADES", 3, nil)
	m.FetchRetry("TRADES")
	m.RestartPause()
	m.Transition("todo", "doing")
	m.Cursor("TRADES", 1)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.TicksFetched("TRADES", 5)
	m.Flush("TRADES", 5, nil)
	m.Flush("BID_ASK", 2, errors.New("disk full"))
	m.Transition("doing", "maintain")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`ticklake_ticks_fetched_total{kind="TRADES"} 5`,
		`ticklake_ticks_written_total{kind="TRADES"} 5`,
		`ticklake_flushes_total{kind="BID_ASK",result="error"} 1`,
		`ticklake_queue_transitions_total{from="doing",to="maintain"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
