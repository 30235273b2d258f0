package util

import (
	"time"
)

// RestartCalendar describes a daily upstream maintenance restart. The
// upstream is considered unsafe to query from Before ahead of the restart
// until After past it.
type RestartCalendar struct {
	hour, minute int
	loc          *time.Location
	before       time.Duration
	after        time.Duration
}

// NewRestartCalendar creates a calendar for a restart at hour:minute local
// time in loc. A nil loc means UTC.
func NewRestartCalendar(hour, minute int, loc *time.Location, before, after time.Duration) *RestartCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &RestartCalendar{hour: hour, minute: minute, loc: loc, before: before, after: after}
}

// restartOn returns the restart instant on the calendar day containing t.
func (c *RestartCalendar) restartOn(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.hour, c.minute, 0, 0, c.loc)
}

// InWindow reports whether now falls inside the maintenance window of the
// previous, current or next day's restart, so windows that straddle midnight
// are detected on both sides. It also returns the restart instant matched.
// A nil calendar never reports a window.
func (c *RestartCalendar) InWindow(now time.Time) (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}
	today := c.restartOn(now)
	for _, r := range []time.Time{today.AddDate(0, 0, -1), today, today.AddDate(0, 0, 1)} {
		if !now.Before(r.Add(-c.before)) && !now.After(r.Add(c.after)) {
			return r, true
		}
	}
	return time.Time{}, false
}

// Next returns the first restart instant strictly after now.
func (c *RestartCalendar) Next(now time.Time) time.Time {
	r := c.restartOn(now)
	if !r.After(now) {
		r = c.restartOn(now.In(c.loc).AddDate(0, 0, 1))
	}
	return r
}
