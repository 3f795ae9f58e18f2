package payment

import (
	"context"
	"errors"
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

const paymentColumns = `
	p.id, p.appointment_id, p.patient_id, p.amount, p.method, p.reference, p.status,
	p.hospital_name, p.vaccine_name, p.dose_number, p.confirmed_at, p.created_at, p.updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.PatientID,
		&p.Amount,
		&p.Method,
		&p.Reference,
		&p.Status,
		&p.HospitalName,
		&p.VaccineName,
		&p.DoseNumber,
		&p.ConfirmedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertPayment(ctx context.Context, p *Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, patient_id, amount, method, reference, status,
		                      hospital_name, vaccine_name, dose_number, confirmed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.AppointmentID, p.PatientID, p.Amount, p.Method, p.Reference, p.Status,
		p.HospitalName, p.VaccineName, p.DoseNumber, p.ConfirmedAt, p.CreatedAt, p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, db.ConstraintPaymentReference):
		return ErrReferenceTaken
	case db.IsUniqueViolation(err, db.ConstraintPaymentOnePending):
		return ErrPendingExists
	default:
		return err
	}
}

func (r *PgRepository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.reference = $1`, reference)
	return scanPayment(row)
}

func (r *PgRepository) GetPendingPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.appointment_id = $1 AND p.status = 'PENDING'
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.patient_id = $1
		ORDER BY p.created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PgRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, at time.Time) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payments p
		SET status = 'CONFIRMED',
		    confirmed_at = $2,
		    updated_at = now()
		WHERE p.id = $1
		  AND p.status = 'PENDING'
		RETURNING `+paymentColumns, id, at)
	return scanPayment(row)
}

func (r *PgRepository) FailPendingPayments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = 'FAILED',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'PENDING'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) ListConfirmedUnsettled(ctx context.Context) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		WHERE p.status = 'CONFIRMED'
		  AND a.status = 'SCHEDULED'
		ORDER BY p.confirmed_at
	`)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}
