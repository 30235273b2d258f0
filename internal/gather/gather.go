package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It blocks until the work is
	// exhausted or ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Split cuts r into consecutive sub-ranges whose starts advance by step. The
// last sub-range is clamped to r.End.
func (r DateRange) Split(step func(time.Time) time.Time) []DateRange {
	var out []DateRange
	for s := r.Start; s.Before(r.End); {
		e := step(s)
		if e.After(r.End) {
			e = r.End
		}
		out = append(out, DateRange{Start: s, End: e})
		s = e
	}
	return out
}
