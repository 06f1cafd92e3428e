package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the lifecycle state of an appointment slot.
type SlotStatus string

const (
	StatusOpen      SlotStatus = "open"
	StatusConfirmed SlotStatus = "confirmed"
	StatusCompleted SlotStatus = "completed"
	StatusCancelled SlotStatus = "cancelled"
	StatusNoShow    SlotStatus = "no_show"
)

var validSlotStatuses = map[SlotStatus]bool{
	StatusOpen: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

func (s SlotStatus) Valid() bool { return validSlotStatuses[s] }

func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Slot maps to the appointment table. StartTime and EndTime are naive
// clinic wall-clock timestamps.
type Slot struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   time.Time  `db:"end_time" json:"end_time"`
	Status    SlotStatus `db:"status" json:"status"`
	Reason    *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// NewOpenSlot returns an unbooked slot for doctorID covering [start, start+d).
func NewOpenSlot(doctorID uuid.UUID, start time.Time, d time.Duration) Slot {
	return Slot{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(d),
		Status:    StatusOpen,
	}
}

func (s Slot) Booked() bool { return s.PatientID != nil }

func (s Slot) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// MarshalJSON writes start and end without a zone designator.
func (s Slot) MarshalJSON() ([]byte, error) {
	type alias Slot
	return json.Marshal(struct {
		alias
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}{
		alias:     alias(s),
		StartTime: formatNaive(s.StartTime),
		EndTime:   formatNaive(s.EndTime),
	})
}

// Doctor is the directory view of a physician.
type Doctor struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	LicenseNumber string    `db:"license_number" json:"license_number"`
	Specialty     *string   `db:"specialty" json:"specialty,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (d *Doctor) FullName() string { return d.LastName + " " + d.FirstName }

type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	DocumentNumber string    `db:"document_number" json:"document_number"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (p *Patient) FullName() string { return p.LastName + " " + p.FirstName }

// GenerationRequest asks for open slots for one doctor over an inclusive
// date range.
type GenerationRequest struct {
	DoctorID            uuid.UUID      `json:"doctor_id" yaml:"doctor_id"`
	DateFrom            Date           `json:"date_from" yaml:"-"`
	DateTo              Date           `json:"date_to" yaml:"-"`
	SlotDurationMinutes int            `json:"slot_duration_minutes" yaml:"slot_duration_minutes"`
	Week                WeeklyTemplate `json:"week" yaml:"week"`
}

func (r GenerationRequest) slotDuration() time.Duration {
	return time.Duration(r.SlotDurationMinutes) * time.Minute
}

// GenerationResult reports what a generation run produced and what the
// store kept. Dropped counts slots rejected by the (doctor, start) unique
// constraint at insert time.
type GenerationResult struct {
	Requested int    `json:"requested"`
	Created   []Slot `json:"slots"`
	Dropped   int    `json:"dropped"`
}

// SlotFilter narrows slot listings. Nil fields are not applied; From is
// inclusive and To exclusive.
type SlotFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *SlotStatus
	From      *time.Time
	To        *time.Time
}

// CalendarView is the month view of a doctor's agenda.
type CalendarView struct {
	Year          int        `json:"year"`
	Month         time.Month `json:"month"`
	Selected      Date       `json:"selected"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	DaysWithSlots []int      `json:"days_with_slots"`
	DaySlots      []*Slot    `json:"day_slots"`
}
