// Package clock produces the clinic's naive local time: the wall clock in
// the clinic time zone, carried in a time.Time whose location is UTC.
package clock

import (
	"fmt"
	"sync"
	"time"
)

type Clock struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc, now: time.Now}
}

// Now returns the current naive clinic time, truncated to the second.
func (c *Clock) Now() time.Time {
	return c.Naive(c.now())
}

// Naive converts t to the clinic zone and drops the zone.
func (c *Clock) Naive(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
}

func (c *Clock) Location() *time.Location { return c.loc }

// LoadLocation resolves a CLINIC_TIMEZONE value; "" and "Local" mean the
// host zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// Fixed is a settable clock for tests and offline runs. Its value is
// already naive.
type Fixed struct {
	mu      sync.Mutex
	current time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{current: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (f *Fixed) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	return f.current
}
