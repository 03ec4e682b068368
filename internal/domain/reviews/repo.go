package reviews

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with ErrReviewAlreadyExists if the visit has a review.
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	// Update replaces ratings and content if the stored version equals
	// expectedVersion, bumping r.Version.
	Update(ctx context.Context, r *Review, expectedVersion int64) error
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Review, int, error)
}
