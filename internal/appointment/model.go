package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled        Status = "SCHEDULED"
	StatusPaid             Status = "PAID"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelledPatient Status = "CANCELLED_PATIENT"
	StatusCancelledAdmin   Status = "CANCELLED_ADMIN"
	StatusNoShow           Status = "NO_SHOW"
)

// BlockingStatuses occupy their slot; every other status releases it.
var BlockingStatuses = []Status{StatusScheduled, StatusPaid, StatusCompleted}

func (s Status) Blocking() bool {
	switch s {
	case StatusScheduled, StatusPaid, StatusCompleted:
		return true
	default:
		return false
	}
}

type NoteAuthor string

const (
	AuthorSystem  NoteAuthor = "system"
	AuthorPatient NoteAuthor = "patient"
	AuthorAdmin   NoteAuthor = "admin"
)

type Note struct {
	At      time.Time  `json:"at"`
	By      NoteAuthor `json:"by"`
	Message string     `json:"message"`
}

type HospitalType string

const (
	HospitalGovt    HospitalType = "GOVT"
	HospitalPrivate HospitalType = "PRIVATE"
)

type Hospital struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Type      HospitalType
	Charges   decimal.Decimal
	Contact   *string
	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Vaccine struct {
	ID             uuid.UUID
	Name           string
	Type           string
	Price          decimal.Decimal
	DosesRequired  int
	Origin         *string
	SideEffects    []string
	StrainsCovered []string
	OtherInfo      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Patient is the slice of a user account that booking needs.
type Patient struct {
	ID       uuid.UUID
	Name     string
	Email    string
	Approved bool
}

type Appointment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	HospitalID    uuid.UUID
	VaccineID     uuid.UUID
	StartAt       time.Time
	EndAt         time.Time
	DurationMin   int
	DoseNumber    int
	DosesRequired int
	Charges       decimal.Decimal
	Status        Status
	Notes         []Note
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppointmentDetail is an appointment with the names a listing displays.
type AppointmentDetail struct {
	Appointment
	HospitalName    string
	HospitalAddress string
	VaccineName     string
	PatientName     string
	PatientEmail    string
}
