package history

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/internal/platform/apperr"
)

var (
	ErrEntryNotFound = apperr.New(apperr.KindNotFound, "history_entry_not_found", "medical history entry not found")
	ErrEntryExists   = apperr.New(apperr.KindConflict, "history_entry_exists", "visit already has a medical history entry")
	ErrInvalidEntry  = apperr.New(apperr.KindInvalid, "invalid_history_entry", "patient_id, title and date are required")
)

// Author is the practitioner snapshot attached to entries emitted from a
// completed visit.
type Author struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	Specialisations []string  `json:"specialisations"`
}

// Entry is one item of a patient's medical history. VisitID is set for
// entries emitted by visit completion and unique across entries.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	VisitID   *uuid.UUID `json:"visit_id,omitempty"`
	Title     string     `json:"title"`
	Date      time.Time  `json:"date"`
	Note      string     `json:"note"`
	Author    *Author    `json:"author,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (e *Entry) Validate() error {
	if e.PatientID == uuid.Nil || strings.TrimSpace(e.Title) == "" || e.Date.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}
