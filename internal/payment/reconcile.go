package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/vaccination-booking/internal/redis"

	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/metrics"
)

// Reconciler repairs the window between the two confirm writes: a CONFIRMED
// payment whose appointment is still SCHEDULED gets its appointment moved to PAID.
type Reconciler struct {
	repo         Repository
	appointments Appointments
	metrics      *metrics.Collector
	logger       zerolog.Logger
	now          func() time.Time
}

func NewReconciler(repo Repository, appointments Appointments, m *metrics.Collector, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:         repo,
		appointments: appointments,
		metrics:      m,
		logger:       logger.With().Str("component", "reconciler").Logger(),
		now:          time.Now,
	}
}

// RunOnce performs one pass and reports how many appointments were repaired.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	unsettled, err := r.repo.ListConfirmedUnsettled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsettled payments: %w", err)
	}

	repaired := 0
	for _, pay := range unsettled {
		note := appointment.Note{
			At:      r.now().UTC(),
			By:      appointment.AuthorSystem,
			Message: "Payment confirmed (reconciled " + pay.Reference + ")",
		}
		_, err := r.appointments.TransitionStatus(ctx, pay.AppointmentID,
			[]appointment.Status{appointment.StatusScheduled}, appointment.StatusPaid, note)
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			// Already moved on by someone else.
			continue
		}
		if err != nil {
			r.logger.Error().Err(err).
				Str("reference", pay.Reference).
				Str("appointment_id", pay.AppointmentID.String()).
				Msg("failed to reconcile appointment")
			continue
		}
		repaired++
		r.logger.Info().
			Str("reference", pay.Reference).
			Str("appointment_id", pay.AppointmentID.String()).
			Msg("appointment reconciled to PAID")
	}

	r.metrics.RecordReconciled(repaired)
	return repaired, nil
}

const reconcileLock = "reconcile-payments"

// Run repairs once immediately and then every interval until ctx is done. Each pass
// runs under locker so concurrent workers never reconcile at the same time.
func (r *Reconciler) Run(ctx context.Context, locker redisclient.Locker, interval time.Duration) {
	r.pass(ctx, locker)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx, locker)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context, locker redisclient.Locker) {
	start := time.Now()
	var repaired int
	err := locker.WithLock(ctx, reconcileLock, func(ctx context.Context) error {
		n, err := r.RunOnce(ctx)
		repaired = n
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		r.logger.Debug().Msg("reconcile lock held elsewhere, skipping pass")
	case err != nil && ctx.Err() == nil:
		r.logger.Error().Err(err).Msg("reconcile pass failed")
	case err == nil:
		r.logger.Debug().Int("repaired", repaired).Dur("took", time.Since(start)).Msg("reconcile pass complete")
	}
}
