package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinica/clinica/internal/platform/db"
)

const pgForeignKeyViolation = "23503"

// =========== Directory ===========

type DirectoryRepoPG struct{ pool *pgxpool.Pool }

// NewDirectoryRepoPG returns a read-only view over the doctor and patient tables.
func NewDirectoryRepoPG(pool *pgxpool.Pool) *DirectoryRepoPG { return &DirectoryRepoPG{pool: pool} }

func (r *DirectoryRepoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, first_name, last_name, license_number, specialty, created_at
		FROM doctor WHERE id = $1`, id).
		Scan(&d.ID, &d.FirstName, &d.LastName, &d.LicenseNumber, &d.Specialty, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &d, nil
}

func (r *DirectoryRepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, first_name, last_name, document_number, created_at
		FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.DocumentNumber, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

const slotCols = `id, doctor_id, patient_id, start_time, end_time, status, reason, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.PatientID, &s.StartTime, &s.EndTime,
		&s.Status, &s.Reason, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *slotRepoPG) ExistingStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (StartSet, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT start_time FROM appointment
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3`,
		doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query existing starts: %w", err)
	}
	defer rows.Close()

	starts := NewStartSet()
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan start time: %w", err)
		}
		starts.Add(t)
	}
	return starts, rows.Err()
}

// InsertOpenSlots queues one conditional insert per slot. Rows that hit the
// (doctor_id, start_time) unique constraint return nothing and are left out
// of the result.
func (r *slotRepoPG) InsertOpenSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	pending := make([]Slot, len(slots))
	for i, s := range slots {
		s.ID = uuid.New()
		pending[i] = s
		batch.Queue(`
			INSERT INTO appointment (id, doctor_id, patient_id, start_time, end_time, status, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (doctor_id, start_time) DO NOTHING
			RETURNING created_at, updated_at`,
			s.ID, s.DoctorID, s.PatientID, s.StartTime, s.EndTime, s.Status, s.Reason)
	}

	br := db.Conn(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()

	created := make([]Slot, 0, len(pending))
	for i := range pending {
		s := pending[i]
		err := br.QueryRow().Scan(&s.CreatedAt, &s.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert slot %s: %w", formatNaive(s.StartTime), err)
		}
		created = append(created, s)
	}
	return created, nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+slotCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

func (r *slotRepoPG) List(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	where, args := slotWhere(f)

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}

	query := `SELECT ` + slotCols + ` FROM appointment WHERE 1=1` + where +
		fmt.Sprintf(` ORDER BY start_time, doctor_id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var items []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan slot: %w", err)
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// slotWhere builds the AND clauses for f with positional args starting at $1.
func slotWhere(f SlotFilter) (string, []interface{}) {
	var (
		where string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.From != nil {
		add("start_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("start_time < $%d", *f.To)
	}
	return where, args
}

func (r *slotRepoPG) DaysWithSlots(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]int, error) {
	where, args := slotWhere(SlotFilter{DoctorID: doctorID, From: &from, To: &to})
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT EXTRACT(DAY FROM start_time)::int AS day
		FROM appointment WHERE 1=1`+where+` ORDER BY day`, args...)
	if err != nil {
		return nil, fmt.Errorf("query days with slots: %w", err)
	}
	defer rows.Close()

	days := []int{}
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (r *slotRepoPG) AssignPatient(ctx context.Context, id, patientID uuid.UUID, reason string) (*Slot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET patient_id = $2, reason = $3, updated_at = NOW()
		WHERE id = $1 AND patient_id IS NULL
		RETURNING `+slotCols, id, patientID, reason))
	if err == nil {
		return s, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return nil, ErrPatientNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("assign patient: %w", err)
	}
	// Nothing updated: the slot is gone or already booked.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrSlotAlreadyAssigned
}

func (r *slotRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status SlotStatus) (*Slot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+slotCols, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return s, nil
}

func (r *slotRepoPG) DeleteOpen(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx, `
		DELETE FROM appointment
		WHERE id = $1 AND patient_id IS NULL
		RETURNING `+slotCols, id))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("delete slot: %w", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrSlotBooked
}
