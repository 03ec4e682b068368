package reminders

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByVisit(ctx context.Context, visitID uuid.UUID) (int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error)
	// ListActiveOn returns reminders whose window covers day.
	ListActiveOn(ctx context.Context, day Date) ([]*Reminder, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, patientID uuid.UUID) (int, error)
}
