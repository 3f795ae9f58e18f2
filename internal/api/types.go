package api

import (
	"time"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/payment"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

// Requests

type BookAppointmentRequest struct {
	HospitalID string `json:"hospitalId" validate:"required,uuid"`
	VaccineID  string `json:"vaccineId" validate:"required,uuid"`
	StartAt    string `json:"startAt" validate:"required"`
}

type InitiatePaymentRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
}

type ConfirmPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Age      *int   `json:"age"`
	Gender   string `json:"gender"`
	Contact  string `json:"contact"`
	Address  string `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Responses

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SlotResponse struct {
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	DurationMin int    `json:"durationMin"`
}

type AvailabilityResponse struct {
	HospitalID string         `json:"hospitalId"`
	Date       string         `json:"date"`
	Available  []SlotResponse `json:"available"`
}

type NoteResponse struct {
	At      string `json:"at"`
	By      string `json:"by"`
	Message string `json:"message"`
}

type NamedRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

type AppointmentResponse struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patientId"`
	HospitalID    string         `json:"hospitalId"`
	VaccineID     string         `json:"vaccineId"`
	StartAt       string         `json:"startAt"`
	EndAt         string         `json:"endAt"`
	DurationMin   int            `json:"durationMin"`
	DoseNumber    int            `json:"doseNumber"`
	DosesRequired int            `json:"dosesRequired"`
	Charges       string         `json:"charges"`
	Status        string         `json:"status"`
	Notes         []NoteResponse `json:"notes"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`

	Hospital *NamedRef `json:"hospital,omitempty"`
	Vaccine  *NamedRef `json:"vaccine,omitempty"`
	Patient  *NamedRef `json:"patient,omitempty"`
}

type PaymentResponse struct {
	ID            string  `json:"id"`
	AppointmentID string  `json:"appointmentId"`
	PatientID     string  `json:"patientId"`
	Amount        string  `json:"amount"`
	Method        string  `json:"method"`
	Reference     string  `json:"reference"`
	Status        string  `json:"status"`
	HospitalName  string  `json:"hospitalName,omitempty"`
	VaccineName   string  `json:"vaccineName,omitempty"`
	DoseNumber    int     `json:"doseNumber"`
	ConfirmedAt   *string `json:"confirmedAt"`
	CreatedAt     string  `json:"createdAt"`
}

type InitiatePaymentResponse struct {
	Payment   PaymentResponse `json:"payment"`
	QRPayload string          `json:"qrPayload"`
}

type ConfirmPaymentResponse struct {
	Payment           PaymentResponse `json:"payment"`
	AppointmentStatus string          `json:"appointmentStatus"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Age       *int   `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Contact   string `json:"contact,omitempty"`
	Address   string `json:"address,omitempty"`
	Approved  bool   `json:"approved"`
	CreatedAt string `json:"createdAt"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

type HospitalResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Type     string  `json:"type"`
	Charges  string  `json:"charges"`
	Contact  *string `json:"contact,omitempty"`
	Approved bool    `json:"approved"`
}

type VaccineResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type,omitempty"`
	Price          string   `json:"price"`
	DosesRequired  int      `json:"dosesRequired"`
	Origin         *string  `json:"origin,omitempty"`
	SideEffects    []string `json:"sideEffects"`
	StrainsCovered []string `json:"strainsCovered"`
	OtherInfo      *string  `json:"otherInfo,omitempty"`
}

// Mapping

func toSlots(list []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(list))
	for _, s := range list {
		out = append(out, SlotResponse{
			StartAt:     slot.FormatInstant(s.StartAt),
			EndAt:       slot.FormatInstant(s.EndAt),
			DurationMin: s.DurationMin,
		})
	}
	return out
}

func toAppointment(a *appointment.Appointment) AppointmentResponse {
	notes := make([]NoteResponse, 0, len(a.Notes))
	for _, n := range a.Notes {
		notes = append(notes, NoteResponse{At: slot.FormatInstant(n.At), By: string(n.By), Message: n.Message})
	}
	return AppointmentResponse{
		ID:            a.ID.String(),
		PatientID:     a.PatientID.String(),
		HospitalID:    a.HospitalID.String(),
		VaccineID:     a.VaccineID.String(),
		StartAt:       slot.FormatInstant(a.StartAt),
		EndAt:         slot.FormatInstant(a.EndAt),
		DurationMin:   a.DurationMin,
		DoseNumber:    a.DoseNumber,
		DosesRequired: a.DosesRequired,
		Charges:       a.Charges.StringFixed(2),
		Status:        string(a.Status),
		Notes:         notes,
		CreatedAt:     slot.FormatInstant(a.CreatedAt),
		UpdatedAt:     slot.FormatInstant(a.UpdatedAt),
	}
}

func toAppointmentDetails(list []appointment.AppointmentDetail, withPatient bool) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		d := &list[i]
		resp := toAppointment(&d.Appointment)
		resp.Hospital = &NamedRef{ID: d.HospitalID.String(), Name: d.HospitalName, Address: d.HospitalAddress}
		resp.Vaccine = &NamedRef{ID: d.VaccineID.String(), Name: d.VaccineName}
		if withPatient {
			resp.Patient = &NamedRef{ID: d.PatientID.String(), Name: d.PatientName, Email: d.PatientEmail}
		}
		out = append(out, resp)
	}
	return out
}

func toPayment(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID.String(),
		AppointmentID: p.AppointmentID.String(),
		PatientID:     p.PatientID.String(),
		Amount:        p.Amount.StringFixed(2),
		Method:        p.Method,
		Reference:     p.Reference,
		Status:        string(p.Status),
		HospitalName:  p.HospitalName,
		VaccineName:   p.VaccineName,
		DoseNumber:    p.DoseNumber,
		CreatedAt:     slot.FormatInstant(p.CreatedAt),
	}
	if p.ConfirmedAt != nil {
		at := slot.FormatInstant(*p.ConfirmedAt)
		resp.ConfirmedAt = &at
	}
	return resp
}

func toUser(u *account.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Role:      string(u.Role),
		Name:      u.Name,
		Age:       u.Age,
		Gender:    u.Gender,
		Contact:   u.Contact,
		Address:   u.Address,
		Approved:  u.Approved,
		CreatedAt: slot.FormatInstant(u.CreatedAt),
	}
}

func toAuth(s *account.Session) AuthResponse {
	return AuthResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUser(s.User),
	}
}

func toHospital(h *appointment.Hospital) HospitalResponse {
	return HospitalResponse{
		ID:       h.ID.String(),
		Name:     h.Name,
		Address:  h.Address,
		Type:     string(h.Type),
		Charges:  h.Charges.StringFixed(2),
		Contact:  h.Contact,
		Approved: h.Approved,
	}
}

func toVaccine(v *appointment.Vaccine) VaccineResponse {
	resp := VaccineResponse{
		ID:             v.ID.String(),
		Name:           v.Name,
		Type:           v.Type,
		Price:          v.Price.StringFixed(2),
		DosesRequired:  v.DosesRequired,
		Origin:         v.Origin,
		SideEffects:    v.SideEffects,
		StrainsCovered: v.StrainsCovered,
		OtherInfo:      v.OtherInfo,
	}
	if resp.SideEffects == nil {
		resp.SideEffects = []string{}
	}
	if resp.StrainsCovered == nil {
		resp.StrainsCovered = []string{}
	}
	return resp
}

// Envelopes

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type PaymentListResponse struct {
	Payments []PaymentResponse `json:"payments"`
}

type HospitalListResponse struct {
	Hospitals []HospitalResponse `json:"hospitals"`
}

type HospitalEnvelope struct {
	Hospital HospitalResponse `json:"hospital"`
}

type VaccineListResponse struct {
	Vaccines []VaccineResponse `json:"vaccines"`
}

type VaccineEnvelope struct {
	Vaccine VaccineResponse `json:"vaccine"`
}

type UserEnvelope struct {
	User UserResponse `json:"user"`
}

type ApprovePatientResponse struct {
	Message string       `json:"message"`
	Patient UserResponse `json:"patient"`
}
