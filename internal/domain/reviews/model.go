package reviews

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/internal/domain/directory"
	"github.com/ehr/booking/internal/platform/apperr"
)

var (
	ErrReviewNotFound      = apperr.New(apperr.KindNotFound, "review_not_found", "review not found")
	ErrReviewAlreadyExists = apperr.New(apperr.KindConflict, "review_already_exists", "visit already has a review")
	ErrReviewConflict      = apperr.New(apperr.KindConflict, "review_conflict", "review changed concurrently")
	ErrVisitNotCompleted   = apperr.New(apperr.KindInvalidState, "visit_not_completed", "only completed visits can be reviewed")
	ErrInvalidRating       = apperr.New(apperr.KindInvalid, "invalid_rating", "ratings must be between 0.5 and 5 in steps of 0.5")
	// ErrRatingConflict is returned when an aggregate could not be updated
	// within the retry budget.
	ErrRatingConflict = directory.ErrRatingConflict
)

// Review is one patient's rating of a completed visit. A visit has at most
// one review.
type Review struct {
	ID                uuid.UUID `json:"id"`
	VisitID           uuid.UUID `json:"visit_id"`
	PractitionerID    uuid.UUID `json:"practitioner_id"`
	InstitutionID     uuid.UUID `json:"institution_id"`
	AuthorID          string    `json:"author_id"`
	AuthorName        string    `json:"author_name"`
	DoctorRating      float64   `json:"doctor_rating"`
	InstitutionRating float64   `json:"institution_rating"`
	Content           string    `json:"content"`
	Version           int64     `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ValidRating reports whether r is in (0, 5] and a multiple of 0.5.
func ValidRating(r float64) bool {
	if math.IsNaN(r) || r <= 0 || r > 5 {
		return false
	}
	return math.Mod(r*2, 1) == 0
}

func validateRatings(doctor, institution float64) error {
	if !ValidRating(doctor) || !ValidRating(institution) {
		return ErrInvalidRating
	}
	return nil
}
