package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/metrics"
)

var (
	ErrInvalidCredentials = apperr.Unauthenticated("invalid_credentials", "invalid credentials")
	ErrAdminOnly          = apperr.Forbidden("admin_only", "admin role required")
	ErrRoleNotAllowed     = apperr.Forbidden("role_not_allowed", "accounts can only be registered as PATIENT or HOSPITAL")
)

type RegisterInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=128"`
	Role     string `validate:"omitempty"`
	Name     string `validate:"omitempty,max=120"`
	Age      *int   `validate:"omitempty,min=0,max=120"`
	Gender   string `validate:"omitempty,oneof=male female other unspecified"`
	Contact  string `validate:"omitempty,max=120"`
	Address  string `validate:"omitempty,max=500"`
}

// Session is what a successful register or login hands back.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

type Service struct {
	repo     Repository
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
	validate *validator.Validate
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tokens *auth.TokenManager, hasher *auth.PasswordHasher, m *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		hasher:   hasher,
		validate: validator.New(),
		metrics:  m,
		logger:   logger.With().Str("component", "accounts").Logger(),
		now:      time.Now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unapproved PATIENT (default) or HOSPITAL account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	role := auth.RolePatient
	if in.Role != "" {
		r, err := auth.ParseRole(in.Role)
		if err != nil {
			return nil, apperr.InvalidInput("invalid_role", err.Error())
		}
		role = r
	}
	switch role {
	case auth.RolePatient, auth.RoleHospital:
	case auth.RoleAdmin:
		return nil, ErrRoleNotAllowed
	default:
		return nil, ErrRoleNotAllowed
	}

	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	gender := in.Gender
	if gender == "" {
		gender = "unspecified"
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.New(),
		Email:        in.Email,
		Role:         role,
		PasswordHash: hash,
		PasswordSalt: salt,
		Name:         strings.TrimSpace(in.Name),
		Age:          in.Age,
		Gender:       gender,
		Contact:      strings.TrimSpace(in.Contact),
		Address:      strings.TrimSpace(in.Address),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.metrics.RecordAuthAttempt("register", "conflict")
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.RecordAuthAttempt("register", "success")
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.InvalidInput("missing_credentials", "email and password are required")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.metrics.RecordAuthAttempt("login", "failure")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash, u.PasswordSalt) {
		s.metrics.RecordAuthAttempt("login", "failure")
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordAuthAttempt("login", "success")
	return s.session(u)
}

func (s *Service) session(u *User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) Me(ctx context.Context, p auth.Principal) (*User, error) {
	return s.repo.GetUserByID(ctx, p.SubjectID)
}

func (s *Service) ListPendingPatients(ctx context.Context, p auth.Principal) ([]User, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	out, err := s.repo.ListUnapprovedPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending patients: %w", err)
	}
	return out, nil
}

// ApprovePatient is idempotent: approving an approved patient returns it unchanged.
func (s *Service) ApprovePatient(ctx context.Context, p auth.Principal, id uuid.UUID) (*User, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	u, err := s.repo.ApprovePatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", id.String()).Str("admin_id", p.SubjectID.String()).Msg("patient approved")
	return u, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.InvalidInput("invalid_input", err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperr.InvalidInput("invalid_input", strings.Join(fields, "; "))
}
