package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients. Implementations return ErrPatientNotFound
// for missing rows and ErrDuplicateEmail when the email index rejects an
// insert.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
