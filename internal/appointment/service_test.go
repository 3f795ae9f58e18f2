package appointment_test

import (
	"context"
	"errors"
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
	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/memstore"
	"github.com/hackgods/vaccination-booking/internal/notify"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockVoider struct {
	mock.Mock
}

func (m *MockVoider) FailPendingPayments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	args := m.Called(ctx, appointmentID)
	return args.Int(0), args.Error(1)
}

const bookingDate = "2030-03-11"

type fixture struct {
	store    *memstore.Store
	svc      *appointment.Service
	sender   *MockSender
	hospital appointment.Hospital
	vaccine  appointment.Vaccine
	patient  auth.Principal
	admin    auth.Principal
}

func newFixture(t *testing.T, opts ...appointment.Option) *fixture {
	t.Helper()

	store := memstore.New()
	f := &fixture{store: store, sender: &MockSender{}}
	f.sender.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.hospital = appointment.Hospital{
		ID:       uuid.New(),
		Name:     "Front Range Health",
		Address:  "1 Main St",
		Type:     appointment.HospitalPrivate,
		Charges:  decimal.RequireFromString("20"),
		Approved: true,
	}
	f.vaccine = appointment.Vaccine{
		ID:            uuid.New(),
		Name:          "ImmunoX",
		Price:         decimal.RequireFromString("15"),
		DosesRequired: 2,
	}
	store.PutHospital(f.hospital)
	store.PutVaccine(f.vaccine)

	f.patient = addUser(t, store, auth.RolePatient, true)
	f.admin = addUser(t, store, auth.RoleAdmin, true)

	f.svc = appointment.NewService(store, slot.NewGrid(time.UTC), f.sender, zerolog.Nop(), opts...)
	return f
}

func addUser(t *testing.T, store *memstore.Store, role auth.Role, approved bool) auth.Principal {
	t.Helper()
	id := uuid.New()
	err := store.CreateUser(context.Background(), &account.User{
		ID:       id,
		Email:    id.String() + "@vax.local",
		Role:     role,
		Name:     "User " + id.String()[:8],
		Approved: approved,
	})
	require.NoError(t, err)
	return auth.Principal{SubjectID: id, Role: role, Approved: approved}
}

func (f *fixture) book(p auth.Principal, startAt string) (*appointment.Appointment, error) {
	return f.svc.Book(context.Background(), p, appointment.BookRequest{
		HospitalID: f.hospital.ID,
		VaccineID:  f.vaccine.ID,
		StartAt:    startAt,
	})
}

// settle walks an appointment to COMPLETED the way payment and admin would.
func (f *fixture) settle(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := f.store.TransitionStatus(context.Background(), id,
		[]appointment.Status{appointment.StatusScheduled}, appointment.StatusPaid,
		appointment.Note{By: appointment.AuthorSystem, Message: "paid"})
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), f.admin, id)
	require.NoError(t, err)
}

func TestBook_Snapshot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, "35.00", appt.Charges.StringFixed(2))
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.Equal(t, 1, appt.DoseNumber)
	assert.Equal(t, 2, appt.DosesRequired)
	assert.Equal(t, 30, appt.DurationMin)
	assert.Equal(t, time.Date(2030, 3, 11, 9, 30, 0, 0, time.UTC), appt.EndAt)
	require.Len(t, appt.Notes, 1)
	assert.Equal(t, appointment.AuthorSystem, appt.Notes[0].By)

	// Later price changes do not touch the booked charges.
	f.hospital.Charges = decimal.RequireFromString("99")
	f.store.PutHospital(f.hospital)

	stored, err := f.store.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, stored.Charges.Equal(decimal.RequireFromString("35")))
}

func TestNotes_UseServiceClock(t *testing.T) {
	at := time.Date(2030, 3, 1, 7, 45, 0, 0, time.UTC)
	f := newFixture(t, appointment.WithClock(func() time.Time { return at }))

	appt, err := f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)
	assert.True(t, at.Equal(appt.CreatedAt))
	require.Len(t, appt.Notes, 1)
	assert.True(t, at.Equal(appt.Notes[0].At))

	cancelled, err := f.svc.Cancel(context.Background(), f.patient, appt.ID)
	require.NoError(t, err)
	require.Len(t, cancelled.Notes, 2)
	assert.Equal(t, appointment.AuthorPatient, cancelled.Notes[1].By)
	assert.True(t, at.Equal(cancelled.Notes[1].At))
}

func TestBook_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unapprovedHospital := appointment.Hospital{ID: uuid.New(), Name: "Pending", Charges: decimal.Zero}
	f.store.PutHospital(unapprovedHospital)

	unapproved := addUser(t, f.store, auth.RolePatient, false)

	tests := []struct {
		name    string
		who     auth.Principal
		req     appointment.BookRequest
		wantErr error
	}{
		{
			name:    "admin cannot book",
			who:     f.admin,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: f.vaccine.ID, StartAt: "2030-03-11T09:00:00Z"},
			wantErr: appointment.ErrPatientsOnly,
		},
		{
			name:    "unapproved patient is checked before the hospital",
			who:     unapproved,
			req:     appointment.BookRequest{HospitalID: uuid.New(), VaccineID: uuid.New(), StartAt: "garbage"},
			wantErr: appointment.ErrPatientNotApproved,
		},
		{
			name:    "unknown hospital",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: uuid.New(), VaccineID: uuid.New(), StartAt: "garbage"},
			wantErr: appointment.ErrHospitalNotFound,
		},
		{
			name:    "unapproved hospital",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: unapprovedHospital.ID, VaccineID: uuid.New(), StartAt: "garbage"},
			wantErr: appointment.ErrHospitalNotApproved,
		},
		{
			name:    "unknown vaccine",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: uuid.New(), StartAt: "garbage"},
			wantErr: appointment.ErrVaccineNotFound,
		},
		{
			name:    "unparseable start",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: f.vaccine.ID, StartAt: "tomorrow at nine"},
			wantErr: appointment.ErrInvalidStartAt,
		},
		{
			name:    "before the window",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: f.vaccine.ID, StartAt: "2030-03-11T08:30:00Z"},
			wantErr: appointment.ErrOutOfWindow,
		},
		{
			name:    "ends after the window",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: f.vaccine.ID, StartAt: "2030-03-11T18:00:00Z"},
			wantErr: appointment.ErrOutOfWindow,
		},
		{
			name:    "off the grid",
			who:     f.patient,
			req:     appointment.BookRequest{HospitalID: f.hospital.ID, VaccineID: f.vaccine.ID, StartAt: "2030-03-11T09:15:00Z"},
			wantErr: appointment.ErrMisalignedStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tt.who, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.book(f.patient, "2030-03-11T18:00:00Z")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	_, err = f.book(unapproved, "2030-03-11T10:00:00Z")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	const callers = 25
	patients := make([]auth.Principal, callers)
	for i := range patients {
		patients[i] = addUser(t, f.store, auth.RolePatient, true)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(p auth.Principal) {
			defer wg.Done()
			<-start
			_, err := f.book(p, "2030-03-11T10:30:00Z")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, appointment.ErrSlotTaken):
				conflicts++
			default:
				others = append(others, err)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(appointment.ErrSlotTaken))
}

func TestBook_DoseSequence(t *testing.T) {
	f := newFixture(t)

	first, err := f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 1, first.DoseNumber)
	f.settle(t, first.ID)

	second, err := f.book(f.patient, "2030-03-11T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2, second.DoseNumber)
	f.settle(t, second.ID)

	_, err = f.book(f.patient, "2030-03-11T10:00:00Z")
	assert.ErrorIs(t, err, appointment.ErrAllDosesCompleted)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestBook_DoseNotAdvancedByScheduledBookings(t *testing.T) {
	f := newFixture(t)

	a, err := f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)
	b, err := f.book(f.patient, "2030-03-11T11:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, 1, a.DoseNumber)
	assert.Equal(t, 1, b.DoseNumber)
}

func TestBook_NotificationFailureIgnored(t *testing.T) {
	f := newFixture(t)
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Kind == notify.KindBookingScheduled
	})).Return(errors.New("mail relay down")).Once()
	svc := appointment.NewService(f.store, slot.NewGrid(time.UTC), sender, zerolog.Nop())

	appt, err := svc.Book(context.Background(), f.patient, appointment.BookRequest{
		HospitalID: f.hospital.ID,
		VaccineID:  f.vaccine.ID,
		StartAt:    "2030-03-11T12:00:00Z",
	})

	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	sender.AssertExpectations(t)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avail, err := f.svc.Availability(ctx, f.hospital.ID, bookingDate)
	require.NoError(t, err)
	require.Len(t, avail.Slots, 18)
	assert.Equal(t, time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC), avail.Slots[0].StartAt)
	assert.Equal(t, time.Date(2030, 3, 11, 17, 30, 0, 0, time.UTC), avail.Slots[17].StartAt)

	appt, err := f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)

	avail, err = f.svc.Availability(ctx, f.hospital.ID, bookingDate)
	require.NoError(t, err)
	require.Len(t, avail.Slots, 17)
	assert.Equal(t, time.Date(2030, 3, 11, 9, 30, 0, 0, time.UTC), avail.Slots[0].StartAt)

	// Other days are unaffected.
	next, err := f.svc.Availability(ctx, f.hospital.ID, "2030-03-12")
	require.NoError(t, err)
	assert.Len(t, next.Slots, 18)

	_, err = f.svc.Cancel(ctx, f.patient, appt.ID)
	require.NoError(t, err)

	avail, err = f.svc.Availability(ctx, f.hospital.ID, bookingDate)
	require.NoError(t, err)
	assert.Len(t, avail.Slots, 18)
}

func TestAvailability_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := appointment.Hospital{ID: uuid.New(), Name: "Pending"}
	f.store.PutHospital(pending)

	_, err := f.svc.Availability(ctx, uuid.New(), bookingDate)
	assert.ErrorIs(t, err, appointment.ErrHospitalNotFound)

	_, err = f.svc.Availability(ctx, pending.ID, bookingDate)
	assert.ErrorIs(t, err, appointment.ErrHospitalNotApproved)

	_, err = f.svc.Availability(ctx, f.hospital.ID, "11/03/2030")
	assert.ErrorIs(t, err, appointment.ErrInvalidDate)
}

func TestCancel_FreesSlotForRebooking(t *testing.T) {
	voider := &MockVoider{}
	f := newFixture(t, appointment.WithPaymentVoider(voider))
	ctx := context.Background()

	appt, err := f.book(f.patient, "2030-03-11T14:00:00Z")
	require.NoError(t, err)
	voider.On("FailPendingPayments", mock.Anything, appt.ID).Return(1, nil).Once()

	stranger := addUser(t, f.store, auth.RolePatient, true)
	_, err = f.svc.Cancel(ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrNotOwner)

	cancelled, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelledPatient, cancelled.Status)
	assert.Equal(t, appointment.AuthorPatient, cancelled.Notes[len(cancelled.Notes)-1].By)

	_, err = f.svc.Cancel(ctx, f.patient, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	_, err = f.book(stranger, "2030-03-11T14:00:00Z")
	assert.NoError(t, err)

	voider.AssertExpectations(t)
}

func TestCancel_ByAdmin(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(f.patient, "2030-03-11T15:00:00Z")
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), f.admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelledAdmin, cancelled.Status)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.book(f.patient, "2030-03-11T16:00:00Z")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.patient, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAdminOnly)

	_, err = f.svc.Complete(ctx, f.admin, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.svc.Complete(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	_, err = f.store.TransitionStatus(ctx, appt.ID,
		[]appointment.Status{appointment.StatusScheduled}, appointment.StatusPaid,
		appointment.Note{By: appointment.AuthorSystem, Message: "paid"})
	require.NoError(t, err)

	pending, err := f.svc.ListPendingCompletion(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ImmunoX", pending[0].VaccineName)

	done, err := f.svc.Complete(ctx, f.admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)
	last := done.Notes[len(done.Notes)-1]
	assert.Equal(t, appointment.AuthorAdmin, last.By)
	assert.Equal(t, "Marked completed by admin", last.Message)
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.book(f.patient, "2030-03-11T17:00:00Z")
	require.NoError(t, err)

	_, err = f.svc.MarkNoShow(ctx, f.patient, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAdminOnly)

	noShow, err := f.svc.MarkNoShow(ctx, f.admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, noShow.Status)
	assert.False(t, noShow.Status.Blocking())
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(f.patient, "2030-03-11T13:00:00Z")
	require.NoError(t, err)
	_, err = f.book(f.patient, "2030-03-11T09:00:00Z")
	require.NoError(t, err)

	list, err := f.svc.ListMine(ctx, f.patient)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].StartAt.Before(list[1].StartAt))
	assert.Equal(t, "Front Range Health", list[0].HospitalName)
	assert.Equal(t, "ImmunoX", list[0].VaccineName)

	other := addUser(t, f.store, auth.RolePatient, true)
	list, err = f.svc.ListMine(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListHospitals_HidesUnapproved(t *testing.T) {
	f := newFixture(t)
	f.store.PutHospital(appointment.Hospital{ID: uuid.New(), Name: "Awaiting Review"})

	list, err := f.svc.ListHospitals(context.Background(), f.patient)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListHospitals(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
