package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/vaccination-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.patient_id, a.hospital_id, a.vaccine_id, a.start_at, a.end_at, a.duration_min,
	a.dose_number, a.doses_required, a.charges, a.status, a.notes, a.created_at, a.updated_at`

const detailColumns = appointmentColumns + `,
	h.name, h.address, v.name, u.name, u.email`

const detailJoins = `
	FROM appointments a
	JOIN hospitals h ON h.id = a.hospital_id
	JOIN vaccines v ON v.id = a.vaccine_id
	JOIN users u ON u.id = a.patient_id`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Address,
		&h.Type,
		&h.Charges,
		&h.Contact,
		&h.Approved,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, err
	}
	return &h, nil
}

func scanVaccine(row pgx.Row) (*Vaccine, error) {
	var v Vaccine
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Type,
		&v.Price,
		&v.DosesRequired,
		&v.Origin,
		&v.SideEffects,
		&v.StrainsCovered,
		&v.OtherInfo,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVaccineNotFound
		}
		return nil, err
	}
	return &v, nil
}

func appointmentDest(a *Appointment, notes *[]byte) []any {
	return []any{
		&a.ID,
		&a.PatientID,
		&a.HospitalID,
		&a.VaccineID,
		&a.StartAt,
		&a.EndAt,
		&a.DurationMin,
		&a.DoseNumber,
		&a.DosesRequired,
		&a.Charges,
		&a.Status,
		notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func decodeNotes(a *Appointment, raw []byte) error {
	a.Notes = nil
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &a.Notes); err != nil {
		return fmt.Errorf("decode notes of appointment %s: %w", a.ID, err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes []byte

	if err := row.Scan(appointmentDest(&a, &notes)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if err := decodeNotes(&a, notes); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var notes []byte

	dest := append(appointmentDest(&d.Appointment, &notes),
		&d.HospitalName,
		&d.HospitalAddress,
		&d.VaccineName,
		&d.PatientName,
		&d.PatientEmail,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if err := decodeNotes(&d.Appointment, notes); err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, approved
		FROM users
		WHERE id = $1 AND role = 'PATIENT'
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, type, charges, contact, approved, created_at, updated_at
		FROM hospitals
		WHERE id = $1
	`, id)
	return scanHospital(row)
}

func (r *PgRepository) ListHospitals(ctx context.Context) ([]Hospital, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, address, type, charges, contact, approved, created_at, updated_at
		FROM hospitals
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetVaccineByID(ctx context.Context, id uuid.UUID) (*Vaccine, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, type, price, doses_required, origin, side_effects, strains_covered,
		       other_info, created_at, updated_at
		FROM vaccines
		WHERE id = $1
	`, id)
	return scanVaccine(row)
}

func (r *PgRepository) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, type, price, doses_required, origin, side_effects, strains_covered,
		       other_info, created_at, updated_at
		FROM vaccines
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListBlockingStarts(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at
		FROM appointments
		WHERE hospital_id = $1
		  AND start_at >= $2
		  AND start_at < $3
		  AND status = ANY($4)
		ORDER BY start_at
	`, hospitalID, from, to, statusStrings(BlockingStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountCompletedDoses(ctx context.Context, patientID, vaccineID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = $1 AND vaccine_id = $2 AND status = 'COMPLETED'
	`, patientID, vaccineID).Scan(&n)
	return n, err
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	notes, err := json.Marshal(a.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, hospital_id, vaccine_id, start_at, end_at, duration_min,
		                          dose_number, doses_required, charges, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.PatientID, a.HospitalID, a.VaccineID, a.StartAt, a.EndAt, a.DurationMin,
		a.DoseNumber, a.DosesRequired, a.Charges, a.Status, notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, db.ConstraintSlotBlocking) {
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+`
		WHERE a.patient_id = $1
		ORDER BY a.start_at
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListAppointmentsByStatus(ctx context.Context, status Status) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+`
		WHERE a.status = $1
		ORDER BY a.start_at
	`, status)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

// TransitionStatus is a single conditional UPDATE, so concurrent transitions of the
// same appointment cannot both succeed.
func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, note Note) (*Appointment, error) {
	entry, err := json.Marshal([]Note{note})
	if err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments a
		SET status = $2,
		    notes = a.notes || $4::jsonb,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = ANY($3)
		RETURNING `+appointmentColumns, id, to, statusStrings(from), entry)
	appt, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, db.ConstraintSlotBlocking) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func statusStrings(list []Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}
