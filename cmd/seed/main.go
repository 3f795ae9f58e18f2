package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/db"
	"github.com/hackgods/vaccination-booking/internal/logging"
)

var vaccineCatalog = []struct {
	name   string
	kind   string
	doses  int
	origin string
}{
	{"Covishield", "Viral vector", 2, "India"},
	{"Covaxin", "Inactivated", 2, "India"},
	{"Hepatitis B", "Recombinant", 3, "USA"},
	{"Influenza (Quadrivalent)", "Inactivated", 1, "France"},
	{"HPV", "Recombinant", 2, "USA"},
	{"Typhoid Conjugate", "Conjugate", 1, "India"},
	{"MMR", "Live attenuated", 2, "UK"},
	{"Tdap", "Toxoid", 1, "Belgium"},
}

var sideEffects = []string{"fever", "fatigue", "headache", "sore arm", "chills", "nausea", "muscle pain"}

func main() {
	_ = godotenv.Load()
	logger := logging.New("seed", os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV"))

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.CreateSchema(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("create schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedHospitals(ctx, pool, 12, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed hospitals")
	}
	if err := seedVaccines(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed vaccines")
	}
	if err := seedUsers(ctx, account.NewPgRepository(pool), 25, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed users")
	}

	logger.Info().Msg("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		kind := "PRIVATE"
		charges := decimal.NewFromInt(int64(gofakeit.Number(10, 60)))
		if gofakeit.Bool() {
			kind = "GOVT"
			charges = decimal.Zero
		}
		addr := gofakeit.Address()
		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, address, type, charges, contact, approved, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, uuid.New(), gofakeit.Company()+" Hospital", addr.Address, kind, charges, gofakeit.Phone(), i%4 != 3)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info().Int("count", count).Msg("hospitals seeded")
	return nil
}

func seedVaccines(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, v := range vaccineCatalog {
		n := gofakeit.Number(1, 3)
		effects := make([]string, 0, n)
		for j := 0; j < n; j++ {
			effects = append(effects, sideEffects[gofakeit.Number(0, len(sideEffects)-1)])
		}
		price := decimal.NewFromFloat(gofakeit.Price(5, 80)).Round(2)

		_, err := tx.Exec(ctx, `
			INSERT INTO vaccines (id, name, type, price, doses_required, origin, side_effects, strains_covered, other_info, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, uuid.New(), v.name, v.kind, price, v.doses, v.origin, effects, []string{}, "Manufacturer: "+gofakeit.Company())
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info().Int("count", len(vaccineCatalog)).Msg("vaccines seeded")
	return nil
}

// seedUsers creates the well-known admin and patient logins plus fake patients, half approved.
func seedUsers(ctx context.Context, repo account.Repository, count int, logger zerolog.Logger) error {
	hasher := auth.NewPasswordHasher()

	create := func(email, password, name string, role auth.Role, approved bool) error {
		hash, salt, err := hasher.Hash(password)
		if err != nil {
			return err
		}
		age := gofakeit.Number(18, 80)
		now := time.Now().UTC()
		err = repo.CreateUser(ctx, &account.User{
			ID:           uuid.New(),
			Email:        account.NormalizeEmail(email),
			Role:         role,
			PasswordHash: hash,
			PasswordSalt: salt,
			Name:         name,
			Age:          &age,
			Gender:       gofakeit.RandomString([]string{"male", "female", "other"}),
			Contact:      gofakeit.Phone(),
			Address:      gofakeit.Address().Address,
			Approved:     approved,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if errors.Is(err, account.ErrEmailTaken) {
			logger.Debug().Str("email", email).Msg("user exists, skipping")
			return nil
		}
		return err
	}

	if err := create("admin@vax.local", "Admin@123", "Site Admin", auth.RoleAdmin, true); err != nil {
		return err
	}
	if err := create("patient@vax.local", "Patient@123", "Demo Patient", auth.RolePatient, true); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := create(gofakeit.Email(), "Patient@123", gofakeit.Name(), auth.RolePatient, i%2 == 0); err != nil {
			return err
		}
	}

	logger.Info().Int("count", count+2).Msg("users seeded")
	return nil
}
