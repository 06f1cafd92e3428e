package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MaxRangeDays   = 366
	MinSlotMinutes = 1
	MaxSlotMinutes = 480
)

// StartSet is a set of naive slot start timestamps.
type StartSet map[int64]struct{}

func NewStartSet(starts ...time.Time) StartSet {
	s := make(StartSet, len(starts))
	for _, t := range starts {
		s.Add(t)
	}
	return s
}

func (s StartSet) Has(t time.Time) bool {
	_, ok := s[t.Unix()]
	return ok
}

func (s StartSet) Add(t time.Time) { s[t.Unix()] = struct{}{} }

func (s StartSet) Len() int { return len(s) }

func (s StartSet) Clone() StartSet {
	out := make(StartSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// weekOrder is the order in which per-day template errors are reported.
var weekOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Validate checks req against today's calendar date and returns every
// violation found. A template with no attending day stops the per-day checks.
func Validate(req GenerationRequest, today Date) ValidationErrors {
	var errs ValidationErrors

	if req.DoctorID == uuid.Nil {
		errs.add("doctor_id", "is required")
	}
	if req.DateFrom.IsZero() {
		errs.add("date_from", "is required")
	}
	if req.DateTo.IsZero() {
		errs.add("date_to", "is required")
	}
	if !req.DateFrom.IsZero() && !req.DateTo.IsZero() {
		if req.DateTo.Before(req.DateFrom) {
			errs.add("date_to", "must be on or after date_from")
		} else if req.DateFrom.DaysUntil(req.DateTo)+1 > MaxRangeDays {
			errs.add("date_to", fmt.Sprintf("range cannot exceed %d days", MaxRangeDays))
		}
	}
	if !req.DateFrom.IsZero() && req.DateFrom.Before(today) {
		errs.add("date_from", "cannot be in the past")
	}
	if req.SlotDurationMinutes < MinSlotMinutes || req.SlotDurationMinutes > MaxSlotMinutes {
		errs.add("slot_duration_minutes",
			fmt.Sprintf("must be between %d and %d", MinSlotMinutes, MaxSlotMinutes))
	}

	if !req.Week.AttendsAny() {
		errs.add("week", "at least one day must be attended")
		return errs
	}
	for _, wd := range weekOrder {
		day := req.Week.Day(wd)
		if !day.Attends {
			continue
		}
		field := "week." + weekdayKey(wd)
		if day.Open == nil {
			errs.add(field+".open", "is required on an attended day")
		}
		if day.Close == nil {
			errs.add(field+".close", "is required on an attended day")
		}
		if day.Open != nil && day.Close != nil && *day.Close <= *day.Open {
			errs.add(field+".close", "must be after open")
		}
	}
	return errs
}

// Generate returns the open slots to create for req, in ascending start
// order. Starts present in existing or before now are skipped; existing is
// not modified. The error is a ValidationErrors value when req is invalid
// and ErrNothingToGenerate when nothing is left to create.
func Generate(req GenerationRequest, existing StartSet, now time.Time) ([]Slot, error) {
	if errs := Validate(req, DateOf(now)); len(errs) > 0 {
		return nil, errs
	}

	seen := existing.Clone()
	if seen == nil {
		seen = NewStartSet()
	}
	step := req.slotDuration()

	var slots []Slot
	for d := req.DateFrom; !d.After(req.DateTo); d = d.AddDays(1) {
		var day []Slot
		day, seen = generateDay(req.DoctorID, d, req.Week.Day(d.Weekday()), step, now, seen)
		slots = append(slots, day...)
	}
	if len(slots) == 0 {
		return nil, ErrNothingToGenerate
	}
	return slots, nil
}

func generateDay(doctorID uuid.UUID, d Date, tmpl DayTemplate, step time.Duration, now time.Time, seen StartSet) ([]Slot, StartSet) {
	open, close, ok := tmpl.Hours()
	if !ok {
		return nil, seen
	}
	var out []Slot
	end := d.At(close)
	for cursor := d.At(open); cursor.Before(end); cursor = cursor.Add(step) {
		if cursor.Before(now) || seen.Has(cursor) {
			continue
		}
		seen.Add(cursor)
		out = append(out, NewOpenSlot(doctorID, cursor, step))
	}
	return out, seen
}
