package history

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores history entries. Create returns ErrEntryExists when an
// entry for the same visit is already stored.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
