package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/metrics"
	"github.com/hackgods/vaccination-booking/internal/payment"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Payments     *payment.Service
	Accounts     *account.Service
	Tokens       *auth.TokenManager

	Store     Pinger
	StoreName string
	Redis     *redis.Client // optional
	Metrics   *metrics.Collector
	Logger    zerolog.Logger

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(Identify(cfg.Tokens))

	r.NotFound(notFoundHandler)

	health := NewHealthHandler(cfg.Store, cfg.StoreName, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", registerHandler(cfg.Accounts))
		r.Post("/login", loginHandler(cfg.Accounts))
		r.With(RequireAuth).Get("/me", meHandler(cfg.Accounts))
	})

	// Catalog and availability are public.
	r.Get("/hospitals", listHospitalsHandler(cfg.Appointments))
	r.Get("/hospitals/{id}", getHospitalHandler(cfg.Appointments))
	r.Get("/vaccines", listVaccinesHandler(cfg.Appointments))
	r.Get("/vaccines/{id}", getVaccineHandler(cfg.Appointments))
	r.Get("/availability", availabilityHandler(cfg.Appointments))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/my", myAppointmentsHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/appointments/{id}/cancel", transitionHandler(cfg.Appointments.Cancel))

		r.Post("/payments/initiate", initiatePaymentHandler(cfg.Payments))
		r.Post("/payments/confirm", confirmPaymentHandler(cfg.Payments))
		r.Get("/payments/my", myPaymentsHandler(cfg.Payments))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAuth)
		r.Use(RequireRole(auth.RoleAdmin))

		r.Get("/pending-patients", pendingPatientsHandler(cfg.Accounts))
		r.Patch("/patients/{id}/approve", approvePatientHandler(cfg.Accounts))

		r.Get("/appointments/pending-completion", pendingCompletionHandler(cfg.Appointments))
		r.Patch("/appointments/{id}/complete", transitionHandler(cfg.Appointments.Complete))
		r.Patch("/appointments/{id}/cancel", transitionHandler(cfg.Appointments.Cancel))
		r.Patch("/appointments/{id}/no-show", transitionHandler(cfg.Appointments.MarkNoShow))
	})

	return r
}
