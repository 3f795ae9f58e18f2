package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/apperr"
)

var (
	ErrPaymentNotFound = apperr.NotFound("payment_not_found", "payment not found")

	// Returned by InsertPayment for the two uniqueness constraints on payments.
	ErrReferenceTaken = apperr.Conflict("payment_reference_taken", "payment reference already in use")
	ErrPendingExists  = apperr.Conflict("pending_payment_exists", "appointment already has a pending payment")
)

type Repository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	GetPendingPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Payment, error)

	// ConfirmPayment moves a PENDING payment to CONFIRMED. ErrPaymentNotFound means
	// no PENDING payment had that id.
	ConfirmPayment(ctx context.Context, id uuid.UUID, at time.Time) (*Payment, error)
	// FailPendingPayments marks every PENDING payment of an appointment FAILED.
	FailPendingPayments(ctx context.Context, appointmentID uuid.UUID) (int, error)

	// ListConfirmedUnsettled finds CONFIRMED payments whose appointment is still SCHEDULED.
	ListConfirmedUnsettled(ctx context.Context) ([]Payment, error)
}

// Appointments is the part of the appointment store the payment flow reads and writes.
type Appointments interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	GetHospitalByID(ctx context.Context, id uuid.UUID) (*appointment.Hospital, error)
	GetVaccineByID(ctx context.Context, id uuid.UUID) (*appointment.Vaccine, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []appointment.Status, to appointment.Status, note appointment.Note) (*appointment.Appointment, error)
}
