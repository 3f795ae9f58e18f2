package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/apperr"
)

var (
	ErrUserNotFound    = apperr.NotFound("user_not_found", "user not found")
	ErrPatientNotFound = apperr.NotFound("patient_not_found", "patient not found")
	ErrEmailTaken      = apperr.Conflict("email_taken", "email already registered")
)

type Repository interface {
	// CreateUser returns ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUnapprovedPatients(ctx context.Context) ([]User, error)
	// ApprovePatient sets the approval flag of a PATIENT user. Non-patients yield ErrPatientNotFound.
	ApprovePatient(ctx context.Context, id uuid.UUID) (*User, error)
}
