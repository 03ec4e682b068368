package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotRepository is the slot store. SetBooked is the only way to change the
// booked flag: it succeeds only when the stored flag equals expected and
// returns ErrSlotConflict otherwise.
type SlotRepository interface {
	Create(ctx context.Context, slots ...*Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListFree(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Slot, error)
	SetBooked(ctx context.Context, id uuid.UUID, expected, next bool) error
}

// VisitRepository persists visits. Update writes v only if the stored version
// still equals v.Version, then bumps it; a mismatch is ErrVisitConflict.
type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	ListUpcomingEndedBefore(ctx context.Context, t time.Time) ([]*Visit, error)
}
