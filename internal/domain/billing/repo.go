package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	// LinesForPatient returns the patient's assignments oldest first, each
	// joined with the medicine's current name and unit price. Line totals
	// are left for the caller to compute.
	LinesForPatient(ctx context.Context, patientID uuid.UUID) ([]Line, error)
	// MarkPaid flips every unpaid assignment of the patient to paid and
	// returns how many rows changed.
	MarkPaid(ctx context.Context, patientID uuid.UUID, at time.Time) (int64, error)
}

// Transactor runs fn inside one database transaction carried on ctx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
