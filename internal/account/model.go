package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/auth"
)

// User is an account of any role. The password fields never leave this package's callers
// through the API layer.
type User struct {
	ID           uuid.UUID
	Email        string
	Role         auth.Role
	PasswordHash string
	PasswordSalt string
	Name         string
	Age          *int
	Gender       string
	Contact      string
	Address      string
	Approved     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{SubjectID: u.ID, Role: u.Role, Approved: u.Approved}
}
