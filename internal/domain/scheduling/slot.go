package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a bookable time window for one practitioner at one institution.
// Booked is flipped only through SlotRepository.SetBooked.
type Slot struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	InstitutionID  uuid.UUID `json:"institution_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Booked         bool      `json:"booked"`
	Version        int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Slot) Validate() error {
	if s.PractitionerID == uuid.Nil || s.InstitutionID == uuid.Nil {
		return ErrInvalidSlot
	}
	if s.StartTime.IsZero() || !s.EndTime.After(s.StartTime) {
		return ErrInvalidSlot
	}
	return nil
}

// Duration returns the length of the slot.
func (s *Slot) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }
