package account

import (
	"context"
	"errors"

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

const userColumns = `
	id, email, role, password_hash, password_salt, name, age,
	COALESCE(gender, ''), COALESCE(contact, ''), COALESCE(address, ''),
	approved, created_at, updated_at`

func scanUser(row pgx.Row, notFound error) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Role,
		&u.PasswordHash,
		&u.PasswordSalt,
		&u.Name,
		&u.Age,
		&u.Gender,
		&u.Contact,
		&u.Address,
		&u.Approved,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgRepository) CreateUser(ctx context.Context, u *User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, role, password_hash, password_salt, name, age, gender,
		                   contact, address, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, u.ID, u.Email, u.Role, u.PasswordHash, u.PasswordSalt, u.Name, u.Age, u.Gender,
		u.Contact, u.Address, u.Approved, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, db.ConstraintUsersEmail) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, ErrUserNotFound)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, ErrUserNotFound)
}

func (r *PgRepository) ListUnapprovedPatients(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'PATIENT' AND approved = FALSE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows, ErrUserNotFound)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

func (r *PgRepository) ApprovePatient(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET approved = TRUE,
		    updated_at = now()
		WHERE id = $1 AND role = 'PATIENT'
		RETURNING `+userColumns, id)
	return scanUser(row, ErrPatientNotFound)
}
