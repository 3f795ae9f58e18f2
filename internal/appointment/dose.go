package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/vaccination-booking/internal/apperr"
)

var ErrAllDosesCompleted = apperr.Conflict("all_doses_completed", "all doses completed for this vaccine")

// NextDose derives the dose number of a new booking from the patient's completed history.
// The number is never taken from the client.
func NextDose(ctx context.Context, repo Repository, patientID uuid.UUID, v *Vaccine) (int, error) {
	completed, err := repo.CountCompletedDoses(ctx, patientID, v.ID)
	if err != nil {
		return 0, fmt.Errorf("count completed doses: %w", err)
	}
	dose := completed + 1
	if dose > v.DosesRequired {
		return 0, ErrAllDosesCompleted.WithMessage("all %d doses of %s completed", v.DosesRequired, v.Name)
	}
	return dose, nil
}
