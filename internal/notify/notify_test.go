package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestBookingScheduled(t *testing.T) {
	msg := BookingScheduled(BookingInfo{
		PatientEmail:  "pat@vax.local",
		HospitalName:  "Front Range Health",
		VaccineName:   "ImmunoX",
		AppointmentID: "appt-1",
		StartAt:       "2025-03-10T09:00:00Z",
		DoseNumber:    1,
		DosesRequired: 2,
		Charges:       decimal.RequireFromString("35"),
	})

	assert.Equal(t, KindBookingScheduled, msg.Kind)
	assert.Equal(t, "pat@vax.local", msg.To)
	assert.Equal(t, "Your vaccine appointment is scheduled (2025-03-10T09:00:00Z)", msg.Subject)
	assert.Contains(t, msg.Body, "Hi there,")
	assert.Contains(t, msg.Body, "• Dose:     1 of 2")
	assert.Contains(t, msg.Body, "• Charges:  $35.00")
}

func TestPaymentConfirmed(t *testing.T) {
	msg := PaymentConfirmed(PaymentInfo{
		PatientEmail:  "pat@vax.local",
		PatientName:   "Test Patient",
		Reference:     "A1B2C3D4E5F6",
		Amount:        decimal.RequireFromString("19.5"),
		AppointmentID: "appt-1",
	})

	assert.Equal(t, "Payment confirmed - Ref A1B2C3D4E5F6", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Test Patient,")
	assert.Contains(t, msg.Body, "• Amount:   $19.50")
	assert.Contains(t, msg.Body, "• Hospital: -")
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewLogMailer(zerolog.New(&buf))

	err := mailer.Send(context.Background(), Message{Kind: KindBookingScheduled, To: "a@b.c", Subject: "hello", Body: "body"})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "MOCK EMAIL")
	assert.Contains(t, buf.String(), `"to":"a@b.c"`)

	err = mailer.Send(context.Background(), Message{Subject: "no recipient"})
	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestDispatch_SwallowsFailure(t *testing.T) {
	var buf bytes.Buffer
	sender := &MockSender{}
	msg := Message{Kind: KindPaymentConfirmed, To: "a@b.c", Subject: "s", AppointmentID: "appt-9"}
	sender.On("Send", mock.Anything, msg).Return(errors.New("smtp down"))

	ok := Dispatch(context.Background(), zerolog.New(&buf), sender, msg)

	assert.False(t, ok)
	assert.Contains(t, buf.String(), "notification failed")
	assert.Contains(t, buf.String(), "smtp down")
	sender.AssertExpectations(t)
}

func TestDispatch_NilSender(t *testing.T) {
	assert.False(t, Dispatch(context.Background(), zerolog.Nop(), nil, Message{}))
}
