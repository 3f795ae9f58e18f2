package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/apperr"
)

var (
	ErrPatientNotFound     = apperr.NotFound("patient_not_found", "patient not found")
	ErrHospitalNotFound    = apperr.NotFound("hospital_not_found", "hospital not found")
	ErrVaccineNotFound     = apperr.NotFound("vaccine_not_found", "vaccine not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment_not_found", "appointment not found")

	// ErrSlotTaken is what the store returns when the (hospital, startAt) uniqueness
	// constraint over blocking statuses rejects an insert.
	ErrSlotTaken = apperr.Conflict("slot_already_booked", "slot already booked")
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Catalog
	GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	ListHospitals(ctx context.Context) ([]Hospital, error)
	GetVaccineByID(ctx context.Context, id uuid.UUID) (*Vaccine, error)
	ListVaccines(ctx context.Context) ([]Vaccine, error)

	// Availability and dose sequencing
	ListBlockingStarts(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]time.Time, error)
	CountCompletedDoses(ctx context.Context, patientID, vaccineID uuid.UUID) (int, error)

	// InsertAppointment must return ErrSlotTaken when another blocking appointment already
	// holds the same hospital and start instant.
	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListAppointmentsByStatus(ctx context.Context, status Status) ([]AppointmentDetail, error)

	// TransitionStatus moves an appointment whose current status is one of from to the status
	// to and appends note, as a single conditional update. ErrAppointmentNotFound means no
	// row matched id and from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, note Note) (*Appointment, error)
}
