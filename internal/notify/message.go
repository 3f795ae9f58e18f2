package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindBookingScheduled = "BOOKING_SCHEDULED"
	KindPaymentConfirmed = "PAYMENT_CONFIRMED"
)

// Message is a rendered, email-like notification.
type Message struct {
	Kind          string    `json:"kind"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type BookingInfo struct {
	PatientEmail  string
	PatientName   string
	HospitalName  string
	VaccineName   string
	AppointmentID string
	StartAt       string
	DoseNumber    int
	DosesRequired int
	Charges       decimal.Decimal
}

type PaymentInfo struct {
	PatientEmail  string
	PatientName   string
	Reference     string
	Amount        decimal.Decimal
	AppointmentID string
	StartAt       string
	HospitalName  string
	VaccineName   string
}

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s,", name)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func BookingScheduled(p BookingInfo) Message {
	body := strings.Join([]string{
		greeting(p.PatientName),
		"",
		"Your appointment has been scheduled:",
		"• Hospital: " + p.HospitalName,
		"• Vaccine:  " + p.VaccineName,
		"• When:     " + p.StartAt,
		fmt.Sprintf("• Dose:     %d of %d", p.DoseNumber, p.DosesRequired),
		"• Charges:  $" + p.Charges.StringFixed(2),
		"",
		"Appointment ID: " + p.AppointmentID,
		"",
		"Thank you!",
	}, "\n")

	return Message{
		Kind:          KindBookingScheduled,
		To:            p.PatientEmail,
		Subject:       fmt.Sprintf("Your vaccine appointment is scheduled (%s)", p.StartAt),
		Body:          body,
		AppointmentID: p.AppointmentID,
		CreatedAt:     time.Now().UTC(),
	}
}

func PaymentConfirmed(p PaymentInfo) Message {
	body := strings.Join([]string{
		greeting(p.PatientName),
		"",
		"We received your payment.",
		"• Amount:   $" + p.Amount.StringFixed(2),
		"• Ref:      " + p.Reference,
		"",
		"Appointment:",
		"• ID:       " + p.AppointmentID,
		"• When:     " + p.StartAt,
		"• Hospital: " + orDash(p.HospitalName),
		"• Vaccine:  " + orDash(p.VaccineName),
		"",
		"See you at your appointment!",
	}, "\n")

	return Message{
		Kind:          KindPaymentConfirmed,
		To:            p.PatientEmail,
		Subject:       "Payment confirmed - Ref " + p.Reference,
		Body:          body,
		AppointmentID: p.AppointmentID,
		CreatedAt:     time.Now().UTC(),
	}
}
