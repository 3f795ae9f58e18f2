package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/vaccination-booking/internal/account"
)

func registerHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}

		sess, err := svc.Register(r.Context(), account.RegisterInput{
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
			Name:     req.Name,
			Age:      req.Age,
			Gender:   req.Gender,
			Contact:  req.Contact,
			Address:  req.Address,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAuth(sess))
	}
}

func loginHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		sess, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAuth(sess))
	}
}

func meHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Me(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, UserEnvelope{User: toUser(u)})
	}
}

func pendingPatientsHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPendingPatients(r.Context(), principal(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out := make([]UserResponse, 0, len(list))
		for i := range list {
			out = append(out, toUser(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func approvePatientHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		u, err := svc.ApprovePatient(r.Context(), principal(r), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ApprovePatientResponse{Message: "Patient approved successfully", Patient: toUser(u)})
	}
}
