package directory

import (
	"context"

	"github.com/google/uuid"
)

// RatingStore holds the rating aggregates. CompareAndSetRating replaces the
// aggregate only if its stored version still equals expectedVersion, and
// bumps the version on success.
type RatingStore interface {
	GetRating(ctx context.Context, subject Subject) (RatingAggregate, error)
	CompareAndSetRating(ctx context.Context, subject Subject, expectedVersion int64, next RatingAggregate) error
}

type Repository interface {
	RatingStore
	CreatePractitioner(ctx context.Context, p *Practitioner) error
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	CreateInstitution(ctx context.Context, i *Institution) error
	GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error)
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}
