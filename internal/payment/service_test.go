package payment_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/memstore"
	"github.com/hackgods/vaccination-booking/internal/notify"
	"github.com/hackgods/vaccination-booking/internal/payment"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fixture struct {
	store    *memstore.Store
	bookings *appointment.Service
	payments *payment.Service
	sender   *MockSender
	patient  auth.Principal
	admin    auth.Principal
	appt     *appointment.Appointment
}

func newFixture(t *testing.T, opts ...payment.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	f := &fixture{store: store, sender: &MockSender{}}
	f.sender.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	hospital := appointment.Hospital{ID: uuid.New(), Name: "City Clinic", Charges: decimal.RequireFromString("20"), Approved: true}
	vaccine := appointment.Vaccine{ID: uuid.New(), Name: "ImmunoX", Price: decimal.RequireFromString("15"), DosesRequired: 2}
	store.PutHospital(hospital)
	store.PutVaccine(vaccine)

	f.patient = addUser(t, store, auth.RolePatient)
	f.admin = addUser(t, store, auth.RoleAdmin)

	f.payments = payment.NewService(store, store, f.sender, zerolog.Nop(), opts...)
	f.bookings = appointment.NewService(store, slot.NewGrid(time.UTC), f.sender, zerolog.Nop(),
		appointment.WithPaymentVoider(f.payments))

	appt, err := f.bookings.Book(ctx, f.patient, appointment.BookRequest{
		HospitalID: hospital.ID,
		VaccineID:  vaccine.ID,
		StartAt:    "2030-05-06T10:00:00Z",
	})
	require.NoError(t, err)
	f.appt = appt
	return f
}

func addUser(t *testing.T, store *memstore.Store, role auth.Role) auth.Principal {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.CreateUser(context.Background(), &account.User{
		ID:       id,
		Email:    id.String() + "@vax.local",
		Role:     role,
		Name:     "Test " + string(role),
		Approved: true,
	}))
	return auth.Principal{SubjectID: id, Role: role, Approved: true}
}

func TestInitiate_ReusesPendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, payment.StatusPending, first.Payment.Status)
	assert.Equal(t, "35.00", first.Payment.Amount.StringFixed(2))
	assert.Equal(t, "City Clinic", first.Payment.HospitalName)
	assert.Len(t, first.Payment.Reference, 12)
	assert.Equal(t, fmt.Sprintf("VXPAY|%s|35.00|%s", first.Payment.Reference, f.appt.ID), first.QRPayload)

	second, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Payment.Reference, second.Payment.Reference)

	list, err := f.payments.ListMine(ctx, f.patient)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInitiate_ConcurrentCallersShareOnePayment(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	refs := make([]string, 10)
	errs := make([]error, 10)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.payments.Initiate(context.Background(), f.patient, f.appt.ID)
			errs[i] = err
			if err == nil {
				refs[i] = res.Payment.Reference
			}
		}(i)
	}
	wg.Wait()

	for i := range refs {
		require.NoError(t, errs[i])
		assert.Equal(t, refs[0], refs[i])
	}
}

func TestInitiate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.Initiate(ctx, f.patient, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	stranger := addUser(t, f.store, auth.RolePatient)
	_, err = f.payments.Initiate(ctx, stranger, f.appt.ID)
	assert.ErrorIs(t, err, payment.ErrNotOwner)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.payments.Initiate(ctx, f.admin, f.appt.ID)
	assert.ErrorIs(t, err, appointment.ErrPatientsOnly)

	_, err = f.payments.Initiate(ctx, auth.Principal{SubjectID: f.patient.SubjectID, Role: "ROOT"}, f.appt.ID)
	assert.ErrorIs(t, err, appointment.ErrPatientsOnly)

	_, err = f.bookings.Cancel(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)
	_, err = f.payments.Initiate(ctx, f.patient, f.appt.ID)
	assert.ErrorIs(t, err, payment.ErrNotPayable)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestInitiate_RetriesReferenceCollision(t *testing.T) {
	refs := []string{"AAAAAAAAAAAA", "AAAAAAAAAAAA", "BBBBBBBBBBBB"}
	var n int
	gen := func() (string, error) {
		r := refs[n]
		n++
		return r, nil
	}
	f := newFixture(t, payment.WithReferenceGenerator(gen))
	ctx := context.Background()

	first, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAA", first.Payment.Reference)

	// A second appointment forces a new payment whose first reference collides.
	other, err := f.bookings.Book(ctx, f.patient, appointment.BookRequest{
		HospitalID: f.appt.HospitalID,
		VaccineID:  f.appt.VaccineID,
		StartAt:    "2030-05-06T11:00:00Z",
	})
	require.NoError(t, err)

	second, err := f.payments.Initiate(ctx, f.patient, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBBBB", second.Payment.Reference)
}

func TestConfirm_PaysAppointmentOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	first, err := f.payments.Confirm(ctx, f.patient, strings.ToLower(started.Payment.Reference))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusConfirmed, first.Payment.Status)
	require.NotNil(t, first.Payment.ConfirmedAt)
	assert.Equal(t, appointment.StatusPaid, first.AppointmentStatus)

	appt, err := f.store.GetAppointmentByID(ctx, f.appt.ID)
	require.NoError(t, err)
	notesAfterFirst := len(appt.Notes)
	assert.Equal(t, "Payment confirmed (mock)", appt.Notes[notesAfterFirst-1].Message)

	second, err := f.payments.Confirm(ctx, f.patient, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusConfirmed, second.Payment.Status)
	assert.Equal(t, appointment.StatusPaid, second.AppointmentStatus)
	assert.Equal(t, *first.Payment.ConfirmedAt, *second.Payment.ConfirmedAt)

	appt, err = f.store.GetAppointmentByID(ctx, f.appt.ID)
	require.NoError(t, err)
	assert.Len(t, appt.Notes, notesAfterFirst)

	// No new pending attempt can be opened once paid.
	_, err = f.payments.Initiate(ctx, f.patient, f.appt.ID)
	assert.ErrorIs(t, err, payment.ErrNotPayable)
}

// flakyAppointments fails the next TransitionStatus call once.
type flakyAppointments struct {
	payment.Appointments
	failNext bool
}

func (f *flakyAppointments) TransitionStatus(ctx context.Context, id uuid.UUID, from []appointment.Status, to appointment.Status, note appointment.Note) (*appointment.Appointment, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("connection reset")
	}
	return f.Appointments.TransitionStatus(ctx, id, from, to, note)
}

func TestConfirm_RetrySettlesHalfAppliedConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

	flaky := &flakyAppointments{Appointments: f.store, failNext: true}
	svc := payment.NewService(f.store, flaky, f.sender, zerolog.Nop(),
		payment.WithClock(func() time.Time { return at }))

	started, err := svc.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, f.patient, started.Payment.Reference)
	require.ErrorContains(t, err, "connection reset")

	pay, err := f.store.GetPaymentByReference(ctx, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusConfirmed, pay.Status)
	require.NotNil(t, pay.ConfirmedAt)
	assert.True(t, at.Equal(*pay.ConfirmedAt))

	retry, err := svc.Confirm(ctx, f.patient, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusConfirmed, retry.Payment.Status)
	assert.Equal(t, appointment.StatusPaid, retry.AppointmentStatus)

	appt, err := f.store.GetAppointmentByID(ctx, f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPaid, appt.Status)
	last := appt.Notes[len(appt.Notes)-1]
	assert.Equal(t, "Payment confirmed (mock)", last.Message)
	assert.True(t, at.Equal(last.At))
	notes := len(appt.Notes)

	again, err := svc.Confirm(ctx, f.patient, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPaid, again.AppointmentStatus)

	appt, err = f.store.GetAppointmentByID(ctx, f.appt.ID)
	require.NoError(t, err)
	assert.Len(t, appt.Notes, notes)
}

func TestConfirm_SendsNotification(t *testing.T) {
	sender := &MockSender{}
	f := newFixture(t)
	svc := payment.NewService(f.store, f.store, sender, zerolog.Nop())
	ctx := context.Background()

	started, err := svc.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Kind == notify.KindPaymentConfirmed && strings.Contains(m.Subject, started.Payment.Reference)
	})).Return(errors.New("smtp timeout")).Once()

	res, err := svc.Confirm(ctx, f.patient, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPaid, res.AppointmentStatus)
	sender.AssertExpectations(t)
}

func TestConfirm_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.Confirm(ctx, f.patient, "NOPE")
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

	started, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	stranger := addUser(t, f.store, auth.RolePatient)
	_, err = f.payments.Confirm(ctx, stranger, started.Payment.Reference)
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

	// Cancelling voids the pending payment; confirming it afterwards is a conflict.
	_, err = f.bookings.Cancel(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	voided, err := f.store.GetPaymentByReference(ctx, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, voided.Status)

	_, err = f.payments.Confirm(ctx, f.patient, started.Payment.Reference)
	assert.ErrorIs(t, err, payment.ErrPaymentNotPending)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestConfirm_AppointmentNoLongerScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	// Move the appointment without going through cancel, so the payment stays PENDING.
	_, err = f.store.TransitionStatus(ctx, f.appt.ID,
		[]appointment.Status{appointment.StatusScheduled}, appointment.StatusNoShow,
		appointment.Note{By: appointment.AuthorAdmin, Message: "no-show"})
	require.NoError(t, err)

	_, err = f.payments.Confirm(ctx, f.patient, started.Payment.Reference)
	assert.ErrorIs(t, err, payment.ErrNotPayable)

	still, err := f.store.GetPaymentByReference(ctx, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, still.Status)
}

func TestReconciler_RepairsHalfConfirmedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.payments.Initiate(ctx, f.patient, f.appt.ID)
	require.NoError(t, err)

	// Simulate a crash after the payment write.
	_, err = f.store.ConfirmPayment(ctx, started.Payment.ID, time.Now())
	require.NoError(t, err)

	rec := payment.NewReconciler(f.store, f.store, nil, zerolog.Nop())
	n, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	appt, err := f.store.GetAppointmentByID(ctx, f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPaid, appt.Status)

	n, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Completion is possible once reconciled.
	done, err := f.bookings.Complete(ctx, f.admin, f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)
}

func TestNewReference(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref, err := payment.NewReference()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9A-F]{12}$`, ref)
		seen[ref] = true
	}
	assert.Len(t, seen, 100)
}
