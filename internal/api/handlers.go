package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/apperr"
	"github.com/hackgods/vaccination-booking/internal/auth"
)

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hospitalId") == "" || q.Get("date") == "" {
			writeError(w, http.StatusBadRequest, "invalid_query", "hospitalId and date are required")
			return
		}
		hospitalID, err := parseUUID(q.Get("hospitalId"), "hospitalId")
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		avail, err := svc.Availability(r.Context(), hospitalID, q.Get("date"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			HospitalID: avail.HospitalID.String(),
			Date:       avail.Date,
			Available:  toSlots(avail.Slots),
		})
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		hospitalID, err := parseUUID(req.HospitalID, "hospitalId")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		vaccineID, err := parseUUID(req.VaccineID, "vaccineId")
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), principal(r), appointment.BookRequest{
			HospitalID: hospitalID,
			VaccineID:  vaccineID,
			StartAt:    req.StartAt,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointment(appt))
	}
}

func myAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListMine(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{Appointments: toAppointmentDetails(list, false)})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		appt, err := svc.Get(r.Context(), principal(r), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointment(appt))
	}
}

func pendingCompletionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPendingCompletion(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDetails(list, true))
	}
}

type appointmentAction func(ctx context.Context, p auth.Principal, id uuid.UUID) (*appointment.Appointment, error)

// transitionHandler serves the PATCH endpoints that move an appointment along its lifecycle.
func transitionHandler(do appointmentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		appt, err := do(r.Context(), principal(r), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointment(appt))
	}
}

// Catalog

func listHospitalsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListHospitals(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out := make([]HospitalResponse, 0, len(list))
		for i := range list {
			out = append(out, toHospital(&list[i]))
		}
		writeJSON(w, http.StatusOK, HospitalListResponse{Hospitals: out})
	}
}

func getHospitalHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		h, err := svc.GetHospital(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if !h.Approved && !principal(r).IsAdmin() {
			writeAppError(w, r, appointment.ErrHospitalNotFound)
			return
		}
		writeJSON(w, http.StatusOK, HospitalEnvelope{Hospital: toHospital(h)})
	}
}

func listVaccinesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListVaccines(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out := make([]VaccineResponse, 0, len(list))
		for i := range list {
			out = append(out, toVaccine(&list[i]))
		}
		writeJSON(w, http.StatusOK, VaccineListResponse{Vaccines: out})
	}
}

func getVaccineHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		v, err := svc.GetVaccine(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, VaccineEnvelope{Vaccine: toVaccine(v)})
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	e := apperr.NotFound("route_not_found", "no route for "+r.Method+" "+r.URL.Path)
	writeError(w, http.StatusNotFound, e.Code, e.Message)
}
