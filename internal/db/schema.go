package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Constraint names the repositories translate into conflicts.
const (
	ConstraintUsersEmail        = "users_email_key"
	ConstraintSlotBlocking      = "appointments_slot_blocking_uidx"
	ConstraintPaymentReference  = "payments_reference_key"
	ConstraintPaymentOnePending = "payments_one_pending_uidx"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('ADMIN', 'HOSPITAL', 'PATIENT')),
	password_hash TEXT NOT NULL,
	password_salt TEXT NOT NULL,
	name          TEXT NOT NULL,
	age           INT,
	gender        TEXT,
	contact       TEXT,
	address       TEXT,
	approved      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT users_email_key UNIQUE (email)
);`

const createHospitalsTable = `
CREATE TABLE IF NOT EXISTS hospitals (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	type       TEXT NOT NULL CHECK (type IN ('GOVT', 'PRIVATE')),
	charges    NUMERIC(12,2) NOT NULL CHECK (charges >= 0),
	contact    TEXT,
	approved   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createVaccinesTable = `
CREATE TABLE IF NOT EXISTS vaccines (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	type            TEXT NOT NULL DEFAULT '',
	price           NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	doses_required  INT NOT NULL CHECK (doses_required >= 1),
	origin          TEXT,
	side_effects    TEXT[] NOT NULL DEFAULT '{}',
	strains_covered TEXT[] NOT NULL DEFAULT '{}',
	other_info      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createAppointmentsTable = `
CREATE TABLE IF NOT EXISTS appointments (
	id             UUID PRIMARY KEY,
	patient_id     UUID NOT NULL REFERENCES users(id),
	hospital_id    UUID NOT NULL REFERENCES hospitals(id),
	vaccine_id     UUID NOT NULL REFERENCES vaccines(id),
	start_at       TIMESTAMPTZ NOT NULL,
	end_at         TIMESTAMPTZ NOT NULL,
	duration_min   INT NOT NULL DEFAULT 30,
	dose_number    INT NOT NULL,
	doses_required INT NOT NULL,
	charges        NUMERIC(12,2) NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('SCHEDULED', 'PAID', 'COMPLETED', 'CANCELLED_PATIENT', 'CANCELLED_ADMIN', 'NO_SHOW')),
	notes          JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (end_at > start_at),
	CHECK (dose_number BETWEEN 1 AND doses_required)
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
	id             UUID PRIMARY KEY,
	appointment_id UUID NOT NULL REFERENCES appointments(id),
	patient_id     UUID NOT NULL REFERENCES users(id),
	amount         NUMERIC(12,2) NOT NULL,
	method         TEXT NOT NULL DEFAULT 'QR',
	reference      TEXT NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('PENDING', 'CONFIRMED', 'FAILED')),
	hospital_name  TEXT NOT NULL DEFAULT '',
	vaccine_name   TEXT NOT NULL DEFAULT '',
	dose_number    INT NOT NULL DEFAULT 1,
	confirmed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT payments_reference_key UNIQUE (reference)
);`

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_slot_blocking_uidx
		ON appointments (hospital_id, start_at)
		WHERE status IN ('SCHEDULED', 'PAID', 'COMPLETED');`,
	`CREATE INDEX IF NOT EXISTS appointments_patient_vaccine_idx ON appointments (patient_id, vaccine_id, status);`,
	`CREATE INDEX IF NOT EXISTS appointments_status_start_idx ON appointments (status, start_at);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_pending_uidx
		ON payments (appointment_id)
		WHERE status = 'PENDING';`,
	`CREATE INDEX IF NOT EXISTS payments_patient_idx ON payments (patient_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status);`,
}

// CreateSchema applies the tables and indexes. Every statement is idempotent.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	tables := []string{
		createUsersTable,
		createHospitalsTable,
		createVaccinesTable,
		createAppointmentsTable,
		createPaymentsTable,
	}

	for _, stmt := range tables {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, stmt := range indexes {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	logger.Info().Int("tables", len(tables)).Int("indexes", len(indexes)).Msg("database schema ready")
	return nil
}
