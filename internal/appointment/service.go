package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/metrics"
	"github.com/hackgods/vaccination-booking/internal/notify"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

var (
	ErrPatientsOnly        = apperr.Forbidden("patients_only", "only patients can book appointments")
	ErrPatientNotApproved  = apperr.Forbidden("patient_not_approved", "patient is not approved for booking")
	ErrHospitalNotApproved = apperr.Forbidden("hospital_not_approved", "hospital is not approved")
	ErrAdminOnly           = apperr.Forbidden("admin_only", "admin role required")
	ErrNotOwner            = apperr.Forbidden("not_owner", "appointment belongs to another patient")

	ErrInvalidDate     = apperr.InvalidInput("invalid_date", "date must be YYYY-MM-DD")
	ErrInvalidStartAt  = apperr.InvalidInput("invalid_start_at", "startAt must be an ISO-8601 instant")
	ErrOutOfWindow     = apperr.InvalidInput("out_of_window", "startAt must fall within 09:00-18:00 and end by 18:00")
	ErrMisalignedStart = apperr.InvalidInput("misaligned_start", "startAt must be on a 30-minute boundary")

	ErrInvalidTransition = apperr.Conflict("invalid_status_transition", "appointment is not in a state that allows this action")
)

// PaymentVoider fails any pending payment left on an appointment that no longer needs paying.
type PaymentVoider interface {
	FailPendingPayments(ctx context.Context, appointmentID uuid.UUID) (int, error)
}

type Option func(*Service)

func WithPaymentVoider(v PaymentVoider) Option { return func(s *Service) { s.voider = v } }
func WithMetrics(m *metrics.Collector) Option  { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }

type Service struct {
	repo    Repository
	grid    slot.Grid
	sender  notify.Sender
	voider  PaymentVoider
	metrics *metrics.Collector
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, grid slot.Grid, sender notify.Sender, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		grid:   grid,
		sender: sender,
		logger: logger.With().Str("component", "appointments").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Availability struct {
	HospitalID uuid.UUID
	Date       string
	Slots      []slot.Slot
}

// Availability lists the open slots of a hospital for one civic day.
func (s *Service) Availability(ctx context.Context, hospitalID uuid.UUID, date string) (*Availability, error) {
	h, err := s.repo.GetHospitalByID(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if !h.Approved {
		return nil, ErrHospitalNotApproved
	}

	day, err := s.grid.ParseDate(date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	dayStart, dayNext := s.grid.Day(day)

	taken, err := s.repo.ListBlockingStarts(ctx, hospitalID, dayStart, dayNext)
	if err != nil {
		return nil, fmt.Errorf("list booked starts: %w", err)
	}
	booked := make(map[int64]struct{}, len(taken))
	for _, t := range taken {
		booked[t.Unix()] = struct{}{}
	}

	open := make([]slot.Slot, 0)
	for _, sl := range s.grid.Generate(day, slot.DefaultDurationMin) {
		if _, ok := booked[sl.StartAt.Unix()]; ok {
			continue
		}
		open = append(open, sl)
	}

	return &Availability{HospitalID: hospitalID, Date: date, Slots: open}, nil
}

type BookRequest struct {
	HospitalID uuid.UUID
	VaccineID  uuid.UUID
	StartAt    string
}

// Book validates a booking end to end and inserts it. The insert is the only
// serialization point: when several callers race for one slot, exactly one wins
// and the rest get ErrSlotTaken.
func (s *Service) Book(ctx context.Context, p auth.Principal, req BookRequest) (*Appointment, error) {
	appt, patient, names, err := s.prepareBooking(ctx, p, req)
	if err != nil {
		s.metrics.RecordBooking("rejected")
		return nil, err
	}

	if err := s.repo.InsertAppointment(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.RecordBooking("conflict")
			s.logger.Info().
				Str("hospital_id", appt.HospitalID.String()).
				Time("start_at", appt.StartAt).
				Msg("slot already booked")
			return nil, err
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	s.metrics.RecordBooking("created")

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Str("hospital_id", appt.HospitalID.String()).
		Int("dose", appt.DoseNumber).
		Time("start_at", appt.StartAt).
		Msg("appointment booked")

	msg := notify.BookingScheduled(notify.BookingInfo{
		PatientEmail:  patient.Email,
		PatientName:   patient.Name,
		HospitalName:  names.hospital,
		VaccineName:   names.vaccine,
		AppointmentID: appt.ID.String(),
		StartAt:       slot.FormatInstant(appt.StartAt),
		DoseNumber:    appt.DoseNumber,
		DosesRequired: appt.DosesRequired,
		Charges:       appt.Charges,
	})
	s.metrics.RecordNotification(msg.Kind, notify.Dispatch(ctx, s.logger, s.sender, msg))

	return appt, nil
}

type bookingNames struct {
	hospital string
	vaccine  string
}

func (s *Service) prepareBooking(ctx context.Context, p auth.Principal, req BookRequest) (*Appointment, *Patient, bookingNames, error) {
	var names bookingNames

	if err := RequirePatient(p); err != nil {
		return nil, nil, names, err
	}
	patient, err := s.repo.GetPatientByID(ctx, p.SubjectID)
	if err != nil {
		return nil, nil, names, err
	}
	if !patient.Approved {
		return nil, nil, names, ErrPatientNotApproved
	}

	h, err := s.repo.GetHospitalByID(ctx, req.HospitalID)
	if err != nil {
		return nil, nil, names, err
	}
	if !h.Approved {
		return nil, nil, names, ErrHospitalNotApproved
	}

	v, err := s.repo.GetVaccineByID(ctx, req.VaccineID)
	if err != nil {
		return nil, nil, names, err
	}

	sl, err := s.fitStart(req.StartAt)
	if err != nil {
		return nil, nil, names, err
	}

	dose, err := NextDose(ctx, s.repo, patient.ID, v)
	if err != nil {
		return nil, nil, names, err
	}

	now := s.now().UTC()
	appt := &Appointment{
		ID:            uuid.New(),
		PatientID:     patient.ID,
		HospitalID:    h.ID,
		VaccineID:     v.ID,
		StartAt:       sl.StartAt,
		EndAt:         sl.EndAt,
		DurationMin:   sl.DurationMin,
		DoseNumber:    dose,
		DosesRequired: v.DosesRequired,
		Charges:       h.Charges.Add(v.Price).Round(2),
		Status:        StatusScheduled,
		Notes:         []Note{{At: now, By: AuthorSystem, Message: "Booked by patient"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	names = bookingNames{hospital: h.Name, vaccine: v.Name}
	return appt, patient, names, nil
}

// RequirePatient admits only patients to the booking and payment flows.
func RequirePatient(p auth.Principal) error {
	switch p.Role {
	case auth.RolePatient:
		return nil
	case auth.RoleAdmin, auth.RoleHospital:
		return ErrPatientsOnly
	default:
		return fmt.Errorf("unknown role %q: %w", p.Role, ErrPatientsOnly)
	}
}

func (s *Service) fitStart(raw string) (slot.Slot, error) {
	startAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return slot.Slot{}, ErrInvalidStartAt
	}
	sl, err := s.grid.Place(startAt, slot.DefaultDurationMin)
	switch {
	case errors.Is(err, slot.ErrOutOfWindow):
		return slot.Slot{}, ErrOutOfWindow
	case errors.Is(err, slot.ErrMisaligned):
		return slot.Slot{}, ErrMisalignedStart
	case err != nil:
		return slot.Slot{}, err
	}
	return sl, nil
}

// ListMine returns the caller's appointments in chronological order.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]AppointmentDetail, error) {
	out, err := s.repo.ListAppointmentsByPatient(ctx, p.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	sortChronological(out)
	return out, nil
}

// ListPendingCompletion returns PAID appointments waiting for an admin to complete them.
func (s *Service) ListPendingCompletion(ctx context.Context, p auth.Principal) ([]AppointmentDetail, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	out, err := s.repo.ListAppointmentsByStatus(ctx, StatusPaid)
	if err != nil {
		return nil, fmt.Errorf("list paid appointments: %w", err)
	}
	sortChronological(out)
	return out, nil
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && appt.PatientID != p.SubjectID {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// Complete moves a PAID appointment to COMPLETED. There is no path from SCHEDULED.
func (s *Service) Complete(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.transition(ctx, id, []Status{StatusPaid}, StatusCompleted,
		Note{By: AuthorAdmin, Message: "Marked completed by admin"},
		"only PAID appointments can be completed")
}

// MarkNoShow releases the slot of a patient who did not turn up.
func (s *Service) MarkNoShow(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	appt, err := s.transition(ctx, id, []Status{StatusScheduled, StatusPaid}, StatusNoShow,
		Note{By: AuthorAdmin, Message: "Marked no-show by admin"},
		"only SCHEDULED or PAID appointments can be marked no-show")
	if err != nil {
		return nil, err
	}
	s.voidPayments(ctx, appt.ID)
	return appt, nil
}

// Cancel lets the owning patient or an admin cancel before completion.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	var (
		to   Status
		note Note
	)
	switch p.Role {
	case auth.RoleAdmin:
		to, note = StatusCancelledAdmin, Note{By: AuthorAdmin, Message: "Cancelled by admin"}
	case auth.RolePatient:
		current, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.PatientID != p.SubjectID {
			return nil, ErrNotOwner
		}
		to, note = StatusCancelledPatient, Note{By: AuthorPatient, Message: "Cancelled by patient"}
	default:
		return nil, ErrNotOwner
	}

	appt, err := s.transition(ctx, id, []Status{StatusScheduled, StatusPaid}, to, note,
		"only SCHEDULED or PAID appointments can be cancelled")
	if err != nil {
		return nil, err
	}
	s.voidPayments(ctx, appt.ID)
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from []Status, to Status, note Note, conflictMsg string) (*Appointment, error) {
	if _, err := s.repo.GetAppointmentByID(ctx, id); err != nil {
		return nil, err
	}

	note.At = s.now().UTC()
	appt, err := s.repo.TransitionStatus(ctx, id, from, to, note)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition.WithMessage("%s", conflictMsg)
		}
		return nil, fmt.Errorf("transition appointment to %s: %w", to, err)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment status changed")
	return appt, nil
}

func (s *Service) voidPayments(ctx context.Context, appointmentID uuid.UUID) {
	if s.voider == nil {
		return
	}
	n, err := s.voider.FailPendingPayments(ctx, appointmentID)
	if err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appointmentID.String()).Msg("failed to void pending payments")
		return
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Str("appointment_id", appointmentID.String()).Msg("pending payments voided")
	}
}

// ListHospitals shows approved hospitals; admins also see unapproved ones.
func (s *Service) ListHospitals(ctx context.Context, p auth.Principal) ([]Hospital, error) {
	all, err := s.repo.ListHospitals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	if p.IsAdmin() {
		return all, nil
	}
	out := make([]Hospital, 0, len(all))
	for _, h := range all {
		if h.Approved {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.repo.GetHospitalByID(ctx, id)
}

func (s *Service) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	out, err := s.repo.ListVaccines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	return out, nil
}

func (s *Service) GetVaccine(ctx context.Context, id uuid.UUID) (*Vaccine, error) {
	return s.repo.GetVaccineByID(ctx, id)
}

func sortChronological(list []AppointmentDetail) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartAt.Before(list[j].StartAt)
	})
}
