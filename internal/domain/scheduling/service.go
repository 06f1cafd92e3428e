package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinica/clinica/internal/platform/metrics"
)

const (
	DefaultReason  = "Consulta"
	MaxReasonRunes = 200

	// maxDaySlots bounds the selected-day listing of the calendar view: one
	// slot per minute of the day.
	maxDaySlots = 24 * 60
)

// Recorder receives scheduling metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveGeneration(outcome string, created, dropped int, d time.Duration)
	IncAssignment(result string)
	IncStatusChange(status string)
	IncCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveGeneration(string, int, int, time.Duration) {}
func (nopRecorder) IncAssignment(string)                              {}
func (nopRecorder) IncStatusChange(string)                            {}
func (nopRecorder) IncCacheLookup(bool)                               {}

type Service struct {
	doctors  DoctorDirectory
	patients PatientDirectory
	slots    SlotRepository
	tx       TxRunner
	clock    Clock

	cache   CalendarCache
	metrics Recorder
	log     zerolog.Logger
}

type Option func(*Service)

func WithCalendarCache(c CalendarCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(doctors DoctorDirectory, patients PatientDirectory, slots SlotRepository, tx TxRunner, clock Clock, opts ...Option) *Service {
	s := &Service{
		doctors:  doctors,
		patients: patients,
		slots:    slots,
		tx:       tx,
		clock:    clock,
		metrics:  nopRecorder{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Generation --

// GenerateSlots validates req, snapshots the doctor's existing starts and
// stores the generated slots in one transaction. Slots that lose a race on
// the (doctor, start) constraint are counted in Dropped.
func (s *Service) GenerateSlots(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	started := time.Now()
	now := s.clock.Now()

	if errs := Validate(req, DateOf(now)); len(errs) > 0 {
		s.metrics.ObserveGeneration(metrics.OutcomeInvalid, 0, 0, time.Since(started))
		return nil, errs
	}

	if _, err := s.doctors.GetDoctor(ctx, req.DoctorID); err != nil {
		if !errors.Is(err, ErrDoctorNotFound) {
			s.metrics.ObserveGeneration(metrics.OutcomeError, 0, 0, time.Since(started))
			return nil, fmt.Errorf("look up doctor: %w", err)
		}
		s.metrics.ObserveGeneration(metrics.OutcomeInvalid, 0, 0, time.Since(started))
		return nil, err
	}

	var result GenerationResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.slots.ExistingStarts(ctx, req.DoctorID,
			req.DateFrom.Midnight(), req.DateTo.AddDays(1).Midnight())
		if err != nil {
			return fmt.Errorf("load existing slots: %w", err)
		}

		slots, err := Generate(req, existing, now)
		if err != nil {
			return err
		}

		created, err := s.slots.InsertOpenSlots(ctx, slots)
		if err != nil {
			return fmt.Errorf("store slots: %w", err)
		}
		result = GenerationResult{
			Requested: len(slots),
			Created:   created,
			Dropped:   len(slots) - len(created),
		}
		return nil
	})

	logEvt := s.log.With().
		Str("doctor_id", req.DoctorID.String()).
		Str("date_from", req.DateFrom.String()).
		Str("date_to", req.DateTo.String()).
		Int("slot_duration_minutes", req.SlotDurationMinutes).
		Logger()

	switch {
	case errors.Is(err, ErrNothingToGenerate):
		s.metrics.ObserveGeneration(metrics.OutcomeNothingToGenerate, 0, 0, time.Since(started))
		logEvt.Info().Msg("slot generation produced nothing")
		return nil, err
	case err != nil:
		s.metrics.ObserveGeneration(metrics.OutcomeError, 0, 0, time.Since(started))
		logEvt.Error().Err(err).Msg("slot generation failed")
		return nil, err
	}

	s.metrics.ObserveGeneration(metrics.OutcomeCreated, len(result.Created), result.Dropped, time.Since(started))
	if len(result.Created) > 0 {
		s.invalidateCalendar(ctx, req.DoctorID)
	}
	logEvt.Info().
		Int("requested", result.Requested).
		Int("created", len(result.Created)).
		Int("dropped", result.Dropped).
		Msg("slots generated")
	return &result, nil
}

// PreviewSlots returns the slots GenerateSlots would create right now
// without storing anything.
func (s *Service) PreviewSlots(ctx context.Context, req GenerationRequest) ([]Slot, error) {
	now := s.clock.Now()
	if errs := Validate(req, DateOf(now)); len(errs) > 0 {
		return nil, errs
	}
	if _, err := s.doctors.GetDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}
	existing, err := s.slots.ExistingStarts(ctx, req.DoctorID,
		req.DateFrom.Midnight(), req.DateTo.AddDays(1).Midnight())
	if err != nil {
		return nil, fmt.Errorf("load existing slots: %w", err)
	}
	return Generate(req, existing, now)
}

func (s *Service) invalidateCalendar(ctx context.Context, doctorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, doctorID); err != nil {
		s.log.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("calendar cache invalidation failed")
	}
}

// -- Queries --

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Service) ListSlots(ctx context.Context, filter SlotFilter, limit, offset int) ([]*Slot, int, error) {
	return s.slots.List(ctx, filter, limit, offset)
}

// CalendarMonth returns the days of selected's month that have slots and
// the slots of selected itself. A zero selected date means today. A nil
// doctorID covers every doctor.
func (s *Service) CalendarMonth(ctx context.Context, doctorID *uuid.UUID, selected Date) (*CalendarView, error) {
	if selected.IsZero() {
		selected = DateOf(s.clock.Now())
	}
	if doctorID != nil {
		if _, err := s.doctors.GetDoctor(ctx, *doctorID); err != nil {
			return nil, err
		}
	}

	days, err := s.daysWithSlots(ctx, doctorID, selected)
	if err != nil {
		return nil, err
	}

	from := selected.Midnight()
	to := selected.AddDays(1).Midnight()
	daySlots, _, err := s.slots.List(ctx, SlotFilter{DoctorID: doctorID, From: &from, To: &to}, maxDaySlots, 0)
	if err != nil {
		return nil, fmt.Errorf("list day slots: %w", err)
	}
	if daySlots == nil {
		daySlots = []*Slot{}
	}

	return &CalendarView{
		Year:          selected.Year,
		Month:         selected.Month,
		Selected:      selected,
		DoctorID:      doctorID,
		DaysWithSlots: days,
		DaySlots:      daySlots,
	}, nil
}

func (s *Service) daysWithSlots(ctx context.Context, doctorID *uuid.UUID, selected Date) ([]int, error) {
	year, month := selected.Year, selected.Month
	var (
		version int64
		fill    bool
	)
	if s.cache != nil {
		days, ver, ok, err := s.cache.GetDays(ctx, doctorID, year, month)
		if err != nil {
			s.log.Warn().Err(err).Msg("calendar cache read failed")
		}
		s.metrics.IncCacheLookup(ok)
		if ok {
			return days, nil
		}
		// The fill is pinned to the version the miss saw.
		version, fill = ver, err == nil
	}

	first := selected.FirstOfMonth()
	days, err := s.slots.DaysWithSlots(ctx, doctorID, first.Midnight(), first.Midnight().AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("list days with slots: %w", err)
	}
	if days == nil {
		days = []int{}
	}

	if fill {
		if err := s.cache.SetDays(ctx, doctorID, year, month, version, days); err != nil {
			s.log.Warn().Err(err).Msg("calendar cache write failed")
		}
	}
	return days, nil
}

// -- Booking --

// AssignPatient books an open future slot for patientID. An empty reason
// becomes DefaultReason.
func (s *Service) AssignPatient(ctx context.Context, slotID, patientID uuid.UUID, reason string) (*Slot, error) {
	slot, err := s.assignPatient(ctx, slotID, patientID, reason)
	s.metrics.IncAssignment(assignmentResult(err))
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("slot_id", slot.ID.String()).
		Str("patient_id", patientID.String()).
		Msg("patient assigned to slot")
	return slot, nil
}

func (s *Service) assignPatient(ctx context.Context, slotID, patientID uuid.UUID, reason string) (*Slot, error) {
	var errs ValidationErrors
	if patientID == uuid.Nil {
		errs.add("patient_id", "is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonRunes {
		errs.add("reason", fmt.Sprintf("must be at most %d characters", MaxReasonRunes))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Booked() {
		return nil, ErrSlotAlreadyAssigned
	}
	if slot.StartTime.Before(s.clock.Now()) {
		return nil, ErrSlotInPast
	}
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.slots.AssignPatient(ctx, slotID, patientID, reason)
}

func assignmentResult(err error) string {
	var verrs ValidationErrors
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verrs):
		return "invalid"
	case errors.Is(err, ErrSlotAlreadyAssigned):
		return "conflict"
	case errors.Is(err, ErrSlotInPast):
		return "past"
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrPatientNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// ChangeStatus sets any valid status on a slot.
func (s *Service) ChangeStatus(ctx context.Context, slotID uuid.UUID, status SlotStatus) (*Slot, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	slot, err := s.slots.UpdateStatus(ctx, slotID, status)
	if err != nil {
		return nil, err
	}
	s.metrics.IncStatusChange(string(status))
	return slot, nil
}

// DeleteSlot removes an unbooked slot and drops the doctor's cached
// calendar months.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	slot, err := s.slots.DeleteOpen(ctx, slotID)
	if err != nil {
		return err
	}
	s.invalidateCalendar(ctx, slot.DoctorID)
	s.log.Info().
		Str("slot_id", slot.ID.String()).
		Str("doctor_id", slot.DoctorID.String()).
		Time("start", slot.StartTime).
		Msg("slot deleted")
	return nil
}
