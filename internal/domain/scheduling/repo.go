package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type SlotRepository interface {
	// ExistingStarts returns the start of every slot of doctorID in [from, to).
	ExistingStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (StartSet, error)
	// InsertOpenSlots stores slots, silently skipping any whose
	// (doctor, start) already exists, and returns the rows actually created.
	InsertOpenSlots(ctx context.Context, slots []Slot) ([]Slot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	List(ctx context.Context, filter SlotFilter, limit, offset int) ([]*Slot, int, error)
	// DaysWithSlots returns the distinct days of month, ascending, that have
	// at least one slot in [from, to). A nil doctorID covers every doctor.
	DaysWithSlots(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]int, error)
	// AssignPatient books an unassigned slot. It returns ErrSlotAlreadyAssigned
	// when the slot already has a patient.
	AssignPatient(ctx context.Context, id, patientID uuid.UUID, reason string) (*Slot, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SlotStatus) (*Slot, error)
	// DeleteOpen removes a slot with no patient and returns it. A booked
	// slot is left in place and ErrSlotBooked returned.
	DeleteOpen(ctx context.Context, id uuid.UUID) (*Slot, error)
}

// TxRunner runs fn inside a single storage transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CalendarCache stores the days-with-slots list of a calendar month.
// GetDays reports the cache version it read; SetDays writes under that
// version so a fill racing an Invalidate is discarded.
type CalendarCache interface {
	GetDays(ctx context.Context, doctorID *uuid.UUID, year int, month time.Month) (days []int, version int64, ok bool, err error)
	SetDays(ctx context.Context, doctorID *uuid.UUID, year int, month time.Month, version int64, days []int) error
	Invalidate(ctx context.Context, doctorID uuid.UUID) error
}

// Clock supplies the current naive clinic time.
type Clock interface {
	Now() time.Time
}
