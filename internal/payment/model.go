package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

const MethodQR = "QR"

// Payment is one mock QR payment attempt for an appointment.
// Amount and the name fields are snapshots taken when the attempt was created.
type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Amount        decimal.Decimal
	Method        string
	Reference     string
	Status        Status
	HospitalName  string
	VaccineName   string
	DoseNumber    int
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
