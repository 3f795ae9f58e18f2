// Package memstore keeps every collection in process memory behind one mutex.
// It enforces the same uniqueness rules as the Postgres schema: one blocking
// appointment per hospital and start, one PENDING payment per appointment, unique
// payment references and unique emails.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/payment"
)

type slotKey struct {
	hospitalID uuid.UUID
	startUnix  int64
}

type Store struct {
	mu sync.RWMutex

	users  map[uuid.UUID]*account.User
	emails map[string]uuid.UUID

	hospitals map[uuid.UUID]*appointment.Hospital
	vaccines  map[uuid.UUID]*appointment.Vaccine

	appointments map[uuid.UUID]*appointment.Appointment
	blocking     map[slotKey]uuid.UUID

	payments   map[uuid.UUID]*payment.Payment
	references map[string]uuid.UUID
	pending    map[uuid.UUID]uuid.UUID // appointment id -> pending payment id
}

var (
	_ appointment.Repository = (*Store)(nil)
	_ payment.Repository     = (*Store)(nil)
	_ payment.Appointments   = (*Store)(nil)
	_ account.Repository     = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]*account.User),
		emails:       make(map[string]uuid.UUID),
		hospitals:    make(map[uuid.UUID]*appointment.Hospital),
		vaccines:     make(map[uuid.UUID]*appointment.Vaccine),
		appointments: make(map[uuid.UUID]*appointment.Appointment),
		blocking:     make(map[slotKey]uuid.UUID),
		payments:     make(map[uuid.UUID]*payment.Payment),
		references:   make(map[string]uuid.UUID),
		pending:      make(map[uuid.UUID]uuid.UUID),
	}
}

// Ping always succeeds; it lets the store stand in for a database in readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

// Catalog writes

func (s *Store) PutHospital(h appointment.Hospital) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := h
	s.hospitals[h.ID] = &cp
}

func (s *Store) PutVaccine(v appointment.Vaccine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyVaccine(&v)
	s.vaccines[v.ID] = &cp
}

// Appointment repository

func (s *Store) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.Role != auth.RolePatient {
		return nil, appointment.ErrPatientNotFound
	}
	return &appointment.Patient{ID: u.ID, Name: u.Name, Email: u.Email, Approved: u.Approved}, nil
}

func (s *Store) GetHospitalByID(_ context.Context, id uuid.UUID) (*appointment.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hospitals[id]
	if !ok {
		return nil, appointment.ErrHospitalNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *Store) ListHospitals(context.Context) ([]appointment.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.Hospital, 0, len(s.hospitals))
	for _, h := range s.hospitals {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetVaccineByID(_ context.Context, id uuid.UUID) (*appointment.Vaccine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaccines[id]
	if !ok {
		return nil, appointment.ErrVaccineNotFound
	}
	cp := copyVaccine(v)
	return &cp, nil
}

func (s *Store) ListVaccines(context.Context) ([]appointment.Vaccine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.Vaccine, 0, len(s.vaccines))
	for _, v := range s.vaccines {
		out = append(out, copyVaccine(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListBlockingStarts(_ context.Context, hospitalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []time.Time
	for _, a := range s.appointments {
		if a.HospitalID != hospitalID || !a.Status.Blocking() {
			continue
		}
		if a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		out = append(out, a.StartAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) CountCompletedDoses(_ context.Context, patientID, vaccineID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.appointments {
		if a.PatientID == patientID && a.VaccineID == vaccineID && a.Status == appointment.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertAppointment(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slotKey{hospitalID: a.HospitalID, startUnix: a.StartAt.Unix()}
	if a.Status.Blocking() {
		if _, taken := s.blocking[key]; taken {
			return appointment.ErrSlotTaken
		}
		s.blocking[key] = a.ID
	}
	cp := copyAppointment(a)
	s.appointments[a.ID] = &cp
	return nil
}

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := copyAppointment(a)
	return &cp, nil
}

func (s *Store) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]appointment.AppointmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.details(func(a *appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *Store) ListAppointmentsByStatus(_ context.Context, status appointment.Status) ([]appointment.AppointmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.details(func(a *appointment.Appointment) bool { return a.Status == status }), nil
}

func (s *Store) details(keep func(*appointment.Appointment) bool) []appointment.AppointmentDetail {
	out := make([]appointment.AppointmentDetail, 0)
	for _, a := range s.appointments {
		if !keep(a) {
			continue
		}
		d := appointment.AppointmentDetail{Appointment: copyAppointment(a)}
		if h, ok := s.hospitals[a.HospitalID]; ok {
			d.HospitalName, d.HospitalAddress = h.Name, h.Address
		}
		if v, ok := s.vaccines[a.VaccineID]; ok {
			d.VaccineName = v.Name
		}
		if u, ok := s.users[a.PatientID]; ok {
			d.PatientName, d.PatientEmail = u.Name, u.Email
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (s *Store) TransitionStatus(_ context.Context, id uuid.UUID, from []appointment.Status, to appointment.Status, note appointment.Note) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, appointment.ErrAppointmentNotFound
	}

	key := slotKey{hospitalID: a.HospitalID, startUnix: a.StartAt.Unix()}
	switch {
	case a.Status.Blocking() && !to.Blocking():
		delete(s.blocking, key)
	case !a.Status.Blocking() && to.Blocking():
		if _, taken := s.blocking[key]; taken {
			return nil, appointment.ErrSlotTaken
		}
		s.blocking[key] = a.ID
	}

	a.Status = to
	a.Notes = append(a.Notes, note)
	a.UpdatedAt = time.Now().UTC()
	cp := copyAppointment(a)
	return &cp, nil
}

// Payment repository

func (s *Store) InsertPayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.references[p.Reference]; taken {
		return payment.ErrReferenceTaken
	}
	if p.Status == payment.StatusPending {
		if _, open := s.pending[p.AppointmentID]; open {
			return payment.ErrPendingExists
		}
		s.pending[p.AppointmentID] = p.ID
	}
	cp := copyPayment(p)
	s.payments[p.ID] = &cp
	s.references[p.Reference] = p.ID
	return nil
}

func (s *Store) GetPaymentByReference(_ context.Context, reference string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.references[reference]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := copyPayment(s.payments[id])
	return &cp, nil
}

func (s *Store) GetPendingPayment(_ context.Context, appointmentID uuid.UUID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pending[appointmentID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := copyPayment(s.payments[id])
	return &cp, nil
}

func (s *Store) ListPaymentsByPatient(_ context.Context, patientID uuid.UUID) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payment.Payment, 0)
	for _, p := range s.payments {
		if p.PatientID == patientID {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ConfirmPayment(_ context.Context, id uuid.UUID, at time.Time) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != payment.StatusPending {
		return nil, payment.ErrPaymentNotFound
	}
	confirmedAt := at
	p.Status = payment.StatusConfirmed
	p.ConfirmedAt = &confirmedAt
	p.UpdatedAt = time.Now().UTC()
	delete(s.pending, p.AppointmentID)
	cp := copyPayment(p)
	return &cp, nil
}

func (s *Store) FailPendingPayments(_ context.Context, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[appointmentID]
	if !ok {
		return 0, nil
	}
	p := s.payments[id]
	p.Status = payment.StatusFailed
	p.UpdatedAt = time.Now().UTC()
	delete(s.pending, appointmentID)
	return 1, nil
}

func (s *Store) ListConfirmedUnsettled(context.Context) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payment.Payment, 0)
	for _, p := range s.payments {
		if p.Status != payment.StatusConfirmed {
			continue
		}
		if a, ok := s.appointments[p.AppointmentID]; ok && a.Status == appointment.StatusScheduled {
			out = append(out, copyPayment(p))
		}
	}
	return out, nil
}

// Account repository

func (s *Store) CreateUser(_ context.Context, u *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return account.ErrEmailTaken
	}
	cp := copyUser(u)
	s.users[u.ID] = &cp
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	cp := copyUser(u)
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	cp := copyUser(s.users[id])
	return &cp, nil
}

func (s *Store) ListUnapprovedPatients(context.Context) ([]account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]account.User, 0)
	for _, u := range s.users {
		if u.Role == auth.RolePatient && !u.Approved {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ApprovePatient(_ context.Context, id uuid.UUID) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Role != auth.RolePatient {
		return nil, account.ErrPatientNotFound
	}
	u.Approved = true
	u.UpdatedAt = time.Now().UTC()
	cp := copyUser(u)
	return &cp, nil
}

// copies

func containsStatus(list []appointment.Status, s appointment.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func copyAppointment(a *appointment.Appointment) appointment.Appointment {
	cp := *a
	cp.Notes = append([]appointment.Note(nil), a.Notes...)
	return cp
}

func copyVaccine(v *appointment.Vaccine) appointment.Vaccine {
	cp := *v
	cp.SideEffects = append([]string(nil), v.SideEffects...)
	cp.StrainsCovered = append([]string(nil), v.StrainsCovered...)
	return cp
}

func copyPayment(p *payment.Payment) payment.Payment {
	cp := *p
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return cp
}

func copyUser(u *account.User) account.User {
	cp := *u
	if u.Age != nil {
		age := *u.Age
		cp.Age = &age
	}
	return cp
}
