package api

import (
	"net/http"

	"github.com/hackgods/vaccination-booking/internal/payment"
)

func initiatePaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitiatePaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		appointmentID, err := parseUUID(req.AppointmentID, "appointmentId")
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		started, err := svc.Initiate(r.Context(), principal(r), appointmentID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, InitiatePaymentResponse{
			Payment:   toPayment(started.Payment),
			QRPayload: started.QRPayload,
		})
	}
}

func confirmPaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}

		conf, err := svc.Confirm(r.Context(), principal(r), req.Reference)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ConfirmPaymentResponse{
			Payment:           toPayment(conf.Payment),
			AppointmentStatus: string(conf.AppointmentStatus),
		})
	}
}

func myPaymentsHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListMine(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out := make([]PaymentResponse, 0, len(list))
		for i := range list {
			out = append(out, toPayment(&list[i]))
		}
		writeJSON(w, http.StatusOK, PaymentListResponse{Payments: out})
	}
}
