package clock

import (
	"testing"
	"time"
)

func TestClock_Naive(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	c := New(loc)
	c.now = func() time.Time { return time.Date(2026, 3, 2, 12, 30, 15, 999, time.UTC) }

	got := c.Now()
	want := time.Date(2026, 3, 2, 9, 30, 15, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected naive time in UTC, got %v", got.Location())
	}
}

func TestClock_NaiveCrossesMidnight(t *testing.T) {
	c := New(time.FixedZone("ART", -3*60*60))
	got := c.Naive(time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC))
	if got.Day() != 1 || got.Hour() != 22 {
		t.Errorf("expected 2026-03-01 22:00, got %v", got)
	}
}

func TestNew_NilLocation(t *testing.T) {
	if New(nil).Location() != time.Local {
		t.Error("expected nil location to fall back to time.Local")
	}
}

func TestLoadLocation(t *testing.T) {
	for _, name := range []string{"", "Local"} {
		loc, err := LoadLocation(name)
		if err != nil || loc != time.Local {
			t.Errorf("LoadLocation(%q) = %v, %v; want Local", name, loc, err)
		}
	}
	if loc, err := LoadLocation("UTC"); err != nil || loc.String() != "UTC" {
		t.Errorf("LoadLocation(UTC) = %v, %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestFixed(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f := NewFixed(start)
	if !f.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, f.Now())
	}
	if got := f.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("unexpected advance result %v", got)
	}
	later := start.AddDate(0, 0, 1)
	f.Set(later)
	if !f.Now().Equal(later) {
		t.Errorf("expected %v after Set, got %v", later, f.Now())
	}
}
