package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/metrics"
	"github.com/hackgods/vaccination-booking/internal/notify"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

var (
	ErrNotOwner          = apperr.Forbidden("not_owner", "appointment belongs to another patient")
	ErrNotPayable        = apperr.Conflict("appointment_not_payable", "appointment is not awaiting payment")
	ErrPaymentNotPending = apperr.Conflict("payment_not_pending", "payment is not pending")
)

const referenceAttempts = 5

type Option func(*Service)

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }

// WithReferenceGenerator replaces the random reference source.
func WithReferenceGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newReference = gen }
}

type Service struct {
	repo         Repository
	appointments Appointments
	sender       notify.Sender
	metrics      *metrics.Collector
	logger       zerolog.Logger
	now          func() time.Time
	newReference func() (string, error)
}

func NewService(repo Repository, appointments Appointments, sender notify.Sender, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		appointments: appointments,
		sender:       sender,
		logger:       logger.With().Str("component", "payments").Logger(),
		now:          time.Now,
		newReference: NewReference,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiated is the result of Initiate. Created is false when an existing
// PENDING payment was handed back.
type Initiated struct {
	Payment   *Payment
	QRPayload string
	Created   bool
}

type Confirmation struct {
	Payment           *Payment
	AppointmentStatus appointment.Status
}

// Initiate opens a PENDING payment for a SCHEDULED appointment, or returns the one
// already open.
func (s *Service) Initiate(ctx context.Context, p auth.Principal, appointmentID uuid.UUID) (*Initiated, error) {
	if err := appointment.RequirePatient(p); err != nil {
		return nil, err
	}
	appt, err := s.appointments.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != p.SubjectID {
		return nil, ErrNotOwner
	}
	patient, err := s.appointments.GetPatientByID(ctx, p.SubjectID)
	if err != nil {
		return nil, err
	}
	if !patient.Approved {
		return nil, appointment.ErrPatientNotApproved
	}
	if appt.Status != appointment.StatusScheduled {
		return nil, ErrNotPayable.WithMessage("appointment is %s, not SCHEDULED", appt.Status)
	}

	existing, err := s.repo.GetPendingPayment(ctx, appt.ID)
	switch {
	case err == nil:
		s.metrics.RecordPayment("initiate", "reused")
		return &Initiated{Payment: existing, QRPayload: QRPayload(existing)}, nil
	case !errors.Is(err, ErrPaymentNotFound):
		return nil, fmt.Errorf("load pending payment: %w", err)
	}

	pay, err := s.createPending(ctx, appt)
	if errors.Is(err, ErrPendingExists) {
		// Lost a race with a concurrent initiate; hand back the winner.
		existing, err := s.repo.GetPendingPayment(ctx, appt.ID)
		if err != nil {
			return nil, fmt.Errorf("load pending payment: %w", err)
		}
		s.metrics.RecordPayment("initiate", "reused")
		return &Initiated{Payment: existing, QRPayload: QRPayload(existing)}, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment("initiate", "created")
	s.logger.Info().
		Str("payment_id", pay.ID.String()).
		Str("reference", pay.Reference).
		Str("appointment_id", appt.ID.String()).
		Str("amount", pay.Amount.StringFixed(2)).
		Msg("payment initiated")
	return &Initiated{Payment: pay, QRPayload: QRPayload(pay), Created: true}, nil
}

func (s *Service) createPending(ctx context.Context, appt *appointment.Appointment) (*Payment, error) {
	var hospitalName, vaccineName string
	if h, err := s.appointments.GetHospitalByID(ctx, appt.HospitalID); err == nil {
		hospitalName = h.Name
	} else if !errors.Is(err, appointment.ErrHospitalNotFound) {
		return nil, fmt.Errorf("load hospital: %w", err)
	}
	if v, err := s.appointments.GetVaccineByID(ctx, appt.VaccineID); err == nil {
		vaccineName = v.Name
	} else if !errors.Is(err, appointment.ErrVaccineNotFound) {
		return nil, fmt.Errorf("load vaccine: %w", err)
	}

	now := s.now().UTC()
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		ref, err := s.newReference()
		if err != nil {
			return nil, fmt.Errorf("generate payment reference: %w", err)
		}
		pay := &Payment{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			Amount:        appt.Charges,
			Method:        MethodQR,
			Reference:     ref,
			Status:        StatusPending,
			HospitalName:  hospitalName,
			VaccineName:   vaccineName,
			DoseNumber:    appt.DoseNumber,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = s.repo.InsertPayment(ctx, pay)
		if err == nil {
			return pay, nil
		}
		if !errors.Is(err, ErrReferenceTaken) {
			return nil, err
		}
		s.logger.Warn().Str("reference", ref).Int("attempt", attempt).Msg("payment reference collision")
	}
	return nil, fmt.Errorf("no unique payment reference after %d attempts", referenceAttempts)
}

// Confirm settles a PENDING payment and then moves its appointment from SCHEDULED to PAID.
// The payment is written first so a crash in between leaves a CONFIRMED payment on a
// SCHEDULED appointment, which the reconciler or the next confirm repairs. Confirming an
// already settled payment writes nothing.
func (s *Service) Confirm(ctx context.Context, p auth.Principal, reference string) (*Confirmation, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	pay, err := s.repo.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if pay.PatientID != p.SubjectID {
		return nil, ErrPaymentNotFound
	}

	switch pay.Status {
	case StatusConfirmed:
		return s.alreadyConfirmed(ctx, pay)
	case StatusPending:
	default:
		s.metrics.RecordPayment("confirm", "rejected")
		return nil, ErrPaymentNotPending.WithMessage("payment is %s", pay.Status)
	}

	appt, err := s.appointments.GetAppointmentByID(ctx, pay.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled {
		s.metrics.RecordPayment("confirm", "rejected")
		return nil, ErrNotPayable.WithMessage("appointment is %s, not SCHEDULED", appt.Status)
	}

	now := s.now().UTC()
	confirmed, err := s.repo.ConfirmPayment(ctx, pay.ID, now)
	if errors.Is(err, ErrPaymentNotFound) {
		// Someone else moved it first.
		current, err := s.repo.GetPaymentByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if current.Status == StatusConfirmed {
			return s.alreadyConfirmed(ctx, current)
		}
		return nil, ErrPaymentNotPending.WithMessage("payment is %s", current.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	var status appointment.Status
	note := appointment.Note{At: now, By: appointment.AuthorSystem, Message: "Payment confirmed (mock)"}
	updated, err := s.appointments.TransitionStatus(ctx, appt.ID, []appointment.Status{appointment.StatusScheduled}, appointment.StatusPaid, note)
	switch {
	case err == nil:
		status = updated.Status
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		current, getErr := s.appointments.GetAppointmentByID(ctx, appt.ID)
		if getErr != nil {
			return nil, getErr
		}
		status = current.Status
		s.logger.Warn().
			Str("reference", reference).
			Str("appointment_id", appt.ID.String()).
			Str("status", string(status)).
			Msg("appointment changed while payment was confirmed")
	default:
		s.logger.Error().Err(err).
			Str("reference", reference).
			Str("appointment_id", appt.ID.String()).
			Msg("payment confirmed but appointment not updated; left for reconciliation")
		return nil, fmt.Errorf("mark appointment paid: %w", err)
	}

	s.metrics.RecordPayment("confirm", "confirmed")
	s.logger.Info().
		Str("reference", reference).
		Str("appointment_id", appt.ID.String()).
		Msg("payment confirmed")

	s.notifyConfirmed(ctx, confirmed, appt)
	return &Confirmation{Payment: confirmed, AppointmentStatus: status}, nil
}

// alreadyConfirmed answers a repeated confirm. An appointment still SCHEDULED means an
// earlier confirm stopped between its two writes, so the second write is retried here.
func (s *Service) alreadyConfirmed(ctx context.Context, pay *Payment) (*Confirmation, error) {
	appt, err := s.appointments.GetAppointmentByID(ctx, pay.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled {
		s.metrics.RecordPayment("confirm", "idempotent")
		return &Confirmation{Payment: pay, AppointmentStatus: appt.Status}, nil
	}

	note := appointment.Note{At: s.now().UTC(), By: appointment.AuthorSystem, Message: "Payment confirmed (mock)"}
	updated, err := s.appointments.TransitionStatus(ctx, appt.ID, []appointment.Status{appointment.StatusScheduled}, appointment.StatusPaid, note)
	switch {
	case err == nil:
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		// Settled or cancelled concurrently.
		updated, err = s.appointments.GetAppointmentByID(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("mark appointment paid: %w", err)
	}

	s.metrics.RecordPayment("confirm", "settled")
	s.logger.Info().
		Str("reference", pay.Reference).
		Str("appointment_id", appt.ID.String()).
		Msg("appointment settled on repeated confirm")
	return &Confirmation{Payment: pay, AppointmentStatus: updated.Status}, nil
}

func (s *Service) notifyConfirmed(ctx context.Context, pay *Payment, appt *appointment.Appointment) {
	patient, err := s.appointments.GetPatientByID(ctx, pay.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", pay.Reference).Msg("skip payment notification")
		return
	}
	msg := notify.PaymentConfirmed(notify.PaymentInfo{
		PatientEmail:  patient.Email,
		PatientName:   patient.Name,
		Reference:     pay.Reference,
		Amount:        pay.Amount,
		AppointmentID: appt.ID.String(),
		StartAt:       slot.FormatInstant(appt.StartAt),
		HospitalName:  pay.HospitalName,
		VaccineName:   pay.VaccineName,
	})
	s.metrics.RecordNotification(msg.Kind, notify.Dispatch(ctx, s.logger, s.sender, msg))
}

// FailPendingPayments voids open payment attempts of an appointment that was cancelled.
func (s *Service) FailPendingPayments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	n, err := s.repo.FailPendingPayments(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("fail pending payments: %w", err)
	}
	if n > 0 {
		s.metrics.RecordPayment("void", "failed")
	}
	return n, nil
}

// ListMine returns the caller's payments, newest first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]Payment, error) {
	out, err := s.repo.ListPaymentsByPatient(ctx, p.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// NewReference returns 12 upper-case hex characters from crypto/rand.
func NewReference() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b[:])), nil
}

// QRPayload is the string the mock QR code encodes.
func QRPayload(p *Payment) string {
	return strings.Join([]string{"VXPAY", p.Reference, p.Amount.StringFixed(2), p.AppointmentID.String()}, "|")
}
