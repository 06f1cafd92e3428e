package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// 2026-03-02 is a Monday.
var monday = NewDate(2026, time.March, 2)

func tod(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func weekdaysTemplate(open, close string) WeeklyTemplate {
	var w WeeklyTemplate
	for wd := time.Monday; wd <= time.Friday; wd++ {
		w.Set(wd, Attending(tod(open), tod(close)))
	}
	return w
}

func newRequest(from, to Date, minutes int) GenerationRequest {
	return GenerationRequest{
		DoctorID:            uuid.New(),
		DateFrom:            from,
		DateTo:              to,
		SlotDurationMinutes: minutes,
		Week:                weekdaysTemplate("09:00", "12:00"),
	}
}

func startsOf(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.Format("2006-01-02 15:04")
	}
	return out
}

func assertStarts(t *testing.T, slots []Slot, want ...string) {
	t.Helper()
	got := startsOf(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestGenerate_SingleMonday(t *testing.T) {
	req := newRequest(monday, monday, 30)
	slots, err := Generate(req, nil, monday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots,
		"2026-03-02 09:00", "2026-03-02 09:30", "2026-03-02 10:00",
		"2026-03-02 10:30", "2026-03-02 11:00", "2026-03-02 11:30")

	for _, s := range slots {
		if s.Duration() != 30*time.Minute {
			t.Errorf("expected 30m slot, got %v", s.Duration())
		}
		if s.Status != StatusOpen || s.PatientID != nil || s.DoctorID != req.DoctorID {
			t.Errorf("expected open unbooked slot for the doctor, got %+v", s)
		}
	}
}

func TestGenerate_SkipsPastStarts(t *testing.T) {
	now := monday.At(tod("10:15"))
	slots, err := Generate(newRequest(monday, monday, 30), nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots, "2026-03-02 10:30", "2026-03-02 11:00", "2026-03-02 11:30")
}

func TestGenerate_StartEqualToNowIsKept(t *testing.T) {
	slots, err := Generate(newRequest(monday, monday, 60), nil, monday.At(tod("10:00")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots, "2026-03-02 10:00", "2026-03-02 11:00")
}

func TestGenerate_UnevenDuration(t *testing.T) {
	slots, err := Generate(newRequest(monday, monday, 45), nil, monday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots,
		"2026-03-02 09:00", "2026-03-02 09:45", "2026-03-02 10:30", "2026-03-02 11:15")
	last := slots[len(slots)-1]
	if !last.EndTime.Equal(monday.At(tod("12:00"))) {
		t.Errorf("expected last slot to end at 12:00, got %v", last.EndTime)
	}
}

func TestGenerate_DurationOverrunsClose(t *testing.T) {
	// 09:00-10:00 with 50 minutes: 09:50 still starts before close.
	req := newRequest(monday, monday, 50)
	req.Week.Set(time.Monday, Attending(tod("09:00"), tod("10:00")))
	slots, err := Generate(req, nil, monday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots, "2026-03-02 09:00", "2026-03-02 09:50")
}

func TestGenerate_SkipsExistingStarts(t *testing.T) {
	existing := NewStartSet(monday.At(tod("09:00")))
	slots, err := Generate(newRequest(monday, monday, 30), existing, monday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots,
		"2026-03-02 09:30", "2026-03-02 10:00", "2026-03-02 10:30",
		"2026-03-02 11:00", "2026-03-02 11:30")

	if existing.Len() != 1 {
		t.Errorf("caller's set must not be modified, has %d entries", existing.Len())
	}
}

func TestGenerate_NoOverlapDetection(t *testing.T) {
	// An existing 09:00 start does not block 09:15 even if that appointment
	// runs an hour; only exact starts collide.
	existing := NewStartSet(monday.At(tod("09:00")))
	slots, err := Generate(newRequest(monday, monday, 15), existing, monday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if startsOf(slots)[0] != "2026-03-02 09:15" {
		t.Errorf("expected first slot 09:15, got %s", startsOf(slots)[0])
	}
}

func TestGenerate_SkipsNonAttendingDays(t *testing.T) {
	saturday := monday.AddDays(5)
	sunday := monday.AddDays(6)
	nextMonday := monday.AddDays(7)

	slots, err := Generate(newRequest(saturday, nextMonday, 60), nil, saturday.Midnight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range slots {
		d := DateOf(s.StartTime)
		if d == saturday || d == sunday {
			t.Errorf("unexpected slot on weekend: %v", s.StartTime)
		}
	}
	assertStarts(t, slots, "2026-03-09 09:00", "2026-03-09 10:00", "2026-03-09 11:00")
}

func TestGenerate_NothingToGenerate(t *testing.T) {
	tests := []struct {
		name     string
		req      GenerationRequest
		existing StartSet
		now      time.Time
	}{
		{
			name: "weekend only",
			req:  newRequest(monday.AddDays(5), monday.AddDays(6), 30),
			now:  monday.Midnight(),
		},
		{
			name: "day already over",
			req:  newRequest(monday, monday, 30),
			now:  monday.At(tod("12:00")),
		},
		{
			name: "fully booked",
			req:  newRequest(monday, monday, 60),
			existing: NewStartSet(
				monday.At(tod("09:00")), monday.At(tod("10:00")), monday.At(tod("11:00"))),
			now: monday.Midnight(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := Generate(tt.req, tt.existing, tt.now)
			if !errors.Is(err, ErrNothingToGenerate) {
				t.Fatalf("expected ErrNothingToGenerate, got %v", err)
			}
			if len(slots) != 0 {
				t.Errorf("expected no slots, got %d", len(slots))
			}
			var verrs ValidationErrors
			if errors.As(err, &verrs) {
				t.Error("nothing to generate must not be a validation error")
			}
		})
	}
}

func TestGenerate_Properties(t *testing.T) {
	week := WeeklyTemplate{}
	week.Set(time.Monday, Attending(tod("08:00"), tod("12:30")))
	week.Set(time.Wednesday, Attending(tod("14:10"), tod("19:00")))
	week.Set(time.Saturday, Attending(tod("09:00"), tod("09:20")))

	existing := NewStartSet(
		monday.At(tod("08:00")),
		monday.AddDays(2).At(tod("14:10")),
		monday.AddDays(7).At(tod("08:21")), // irregular, never a candidate
	)
	now := monday.At(tod("09:07"))

	for _, minutes := range []int{1, 7, 13, 20, 45, 60, 97, 480} {
		req := GenerationRequest{
			DoctorID:            uuid.New(),
			DateFrom:            monday,
			DateTo:              monday.AddDays(20),
			SlotDurationMinutes: minutes,
			Week:                week,
		}
		slots, err := Generate(req, existing, now)
		if err != nil {
			t.Fatalf("duration %d: unexpected error: %v", minutes, err)
		}

		seen := NewStartSet()
		for i, s := range slots {
			if s.EndTime.Sub(s.StartTime) != time.Duration(minutes)*time.Minute {
				t.Errorf("duration %d: slot %v has wrong length", minutes, s.StartTime)
			}
			open, close, ok := week.Day(s.StartTime.Weekday()).Hours()
			d := DateOf(s.StartTime)
			if !ok || s.StartTime.Before(d.At(open)) || !s.StartTime.Before(d.At(close)) {
				t.Errorf("duration %d: slot %v outside office hours", minutes, s.StartTime)
			}
			if seen.Has(s.StartTime) {
				t.Errorf("duration %d: duplicate start %v", minutes, s.StartTime)
			}
			seen.Add(s.StartTime)
			if existing.Has(s.StartTime) {
				t.Errorf("duration %d: slot %v collides with existing start", minutes, s.StartTime)
			}
			if s.StartTime.Before(now) {
				t.Errorf("duration %d: slot %v is in the past", minutes, s.StartTime)
			}
			if i > 0 && !slots[i-1].StartTime.Before(s.StartTime) {
				t.Errorf("duration %d: slots not ascending at %d", minutes, i)
			}
		}
	}
}

func TestGenerate_DateToBeforeDateFrom(t *testing.T) {
	slots, err := Generate(newRequest(monday.AddDays(1), monday, 30), nil, monday.Midnight())
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots, got %d", len(slots))
	}
	if !hasField(verrs, "date_to") {
		t.Errorf("expected date_to error, got %v", verrs)
	}
}

func hasField(errs ValidationErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	today := monday
	valid := newRequest(monday, monday.AddDays(30), 30)

	tests := []struct {
		name   string
		mutate func(r *GenerationRequest)
		fields []string
	}{
		{"valid", func(r *GenerationRequest) {}, nil},
		{"missing doctor", func(r *GenerationRequest) { r.DoctorID = uuid.Nil }, []string{"doctor_id"}},
		{"missing dates", func(r *GenerationRequest) { r.DateFrom, r.DateTo = Date{}, Date{} }, []string{"date_from", "date_to"}},
		{"from in the past", func(r *GenerationRequest) { r.DateFrom = today.AddDays(-1) }, []string{"date_from"}},
		{"from today is fine", func(r *GenerationRequest) { r.DateFrom = today }, nil},
		{"span of 366 days", func(r *GenerationRequest) { r.DateTo = r.DateFrom.AddDays(365) }, nil},
		{"span of 367 days", func(r *GenerationRequest) { r.DateTo = r.DateFrom.AddDays(366) }, []string{"date_to"}},
		{"zero duration", func(r *GenerationRequest) { r.SlotDurationMinutes = 0 }, []string{"slot_duration_minutes"}},
		{"max duration", func(r *GenerationRequest) { r.SlotDurationMinutes = 480 }, nil},
		{"duration too long", func(r *GenerationRequest) { r.SlotDurationMinutes = 481 }, []string{"slot_duration_minutes"}},
		{"no attending day", func(r *GenerationRequest) { r.Week = WeeklyTemplate{} }, []string{"week"}},
		{"attending without hours", func(r *GenerationRequest) {
			r.Week.Set(time.Saturday, DayTemplate{Attends: true})
		}, []string{"week.saturday.open", "week.saturday.close"}},
		{"close before open", func(r *GenerationRequest) {
			r.Week.Set(time.Tuesday, Attending(tod("12:00"), tod("09:00")))
		}, []string{"week.tuesday.close"}},
		{"close equals open", func(r *GenerationRequest) {
			r.Week.Set(time.Friday, Attending(tod("09:00"), tod("09:00")))
		}, []string{"week.friday.close"}},
		{"hours on non-attending day are ignored", func(r *GenerationRequest) {
			open, close := tod("12:00"), tod("09:00")
			r.Week.Set(time.Sunday, DayTemplate{Open: &open, Close: &close})
		}, nil},
		{"several at once", func(r *GenerationRequest) {
			r.DateFrom = today.AddDays(-3)
			r.SlotDurationMinutes = 1000
		}, []string{"date_from", "slot_duration_minutes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			errs := Validate(req, today)
			if len(errs) != len(tt.fields) {
				t.Fatalf("expected %d errors %v, got %v", len(tt.fields), tt.fields, errs)
			}
			for _, f := range tt.fields {
				if !hasField(errs, f) {
					t.Errorf("expected error on %s, got %v", f, errs)
				}
			}
		})
	}
}

func TestValidate_NoAttendingDayShortCircuits(t *testing.T) {
	req := newRequest(monday, monday, 30)
	req.Week = WeeklyTemplate{}
	errs := Validate(req, monday)
	if len(errs) != 1 || errs[0].Field != "week" {
		t.Errorf("expected only the week error, got %v", errs)
	}
}

func TestValidate_PerDayOrderIsMondayFirst(t *testing.T) {
	req := newRequest(monday, monday, 30)
	req.Week.Set(time.Sunday, DayTemplate{Attends: true})
	req.Week.Set(time.Monday, DayTemplate{Attends: true})
	errs := Validate(req, monday)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %v", errs)
	}
	if errs[0].Field != "week.monday.open" || errs[3].Field != "week.sunday.close" {
		t.Errorf("unexpected order %v", errs)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "date_to", Message: "must be on or after date_from"},
		{Message: "bad request"},
	}
	want := "date_to: must be on or after date_from; bad request"
	if errs.Error() != want {
		t.Errorf("expected %q, got %q", want, errs.Error())
	}
	if (ValidationErrors{}).Err() != nil {
		t.Error("empty ValidationErrors must convert to a nil error")
	}
}

func TestStartSet(t *testing.T) {
	a := monday.At(tod("09:00"))
	s := NewStartSet(a)
	c := s.Clone()
	c.Add(monday.At(tod("10:00")))

	if !s.Has(a) || s.Len() != 1 {
		t.Errorf("unexpected original set %v", s)
	}
	if c.Len() != 2 {
		t.Errorf("expected clone to have 2 entries, got %d", c.Len())
	}
	if StartSet(nil).Clone() == nil {
		t.Error("clone of nil set must be usable")
	}
}
