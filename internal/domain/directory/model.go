package directory

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// RatingAggregate is the versioned (sum, count) pair behind a displayed
// rating. It is only ever replaced through CompareAndSetRating.
type RatingAggregate struct {
	Sum     float64
	Count   int
	Version int64
}

// Rating returns the running average, 0 when there are no ratings.
func (a RatingAggregate) Rating() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Add returns the aggregate with one more rating.
func (a RatingAggregate) Add(r float64) RatingAggregate {
	a.Sum += r
	a.Count++
	return a
}

// Remove returns the aggregate without a previously added rating.
func (a RatingAggregate) Remove(r float64) RatingAggregate {
	if a.Count <= 1 {
		a.Sum, a.Count = 0, 0
		return a
	}
	a.Sum -= r
	a.Count--
	return a
}

// Replace swaps one rating for another, leaving the count unchanged.
func (a RatingAggregate) Replace(old, next float64) RatingAggregate {
	if a.Count == 0 {
		return a.Add(next)
	}
	a.Sum += next - old
	return a
}

type ratingJSON struct {
	Rating       float64 `json:"rating"`
	NumOfRatings int     `json:"num_of_ratings"`
}

func (a RatingAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(ratingJSON{
		Rating:       math.Round(a.Rating()*100) / 100,
		NumOfRatings: a.Count,
	})
}

type Practitioner struct {
	ID              uuid.UUID       `json:"id"`
	DisplayName     string          `json:"display_name"`
	Specialisations []string        `json:"specialisations"`
	Institutions    []uuid.UUID     `json:"institutions"`
	Ratings         RatingAggregate `json:"ratings"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Institution struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	Public       bool            `json:"public"`
	ServiceTypes []string        `json:"service_types"`
	Staff        []uuid.UUID     `json:"staff"`
	Ratings      RatingAggregate `json:"ratings"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Patient struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubjectKind names the entity a rating aggregate belongs to.
type SubjectKind string

const (
	SubjectPractitioner SubjectKind = "practitioner"
	SubjectInstitution  SubjectKind = "institution"
)

// Subject identifies one rating aggregate.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

func PractitionerSubject(id uuid.UUID) Subject { return Subject{Kind: SubjectPractitioner, ID: id} }
func InstitutionSubject(id uuid.UUID) Subject  { return Subject{Kind: SubjectInstitution, ID: id} }

func (s Subject) String() string { return string(s.Kind) + ":" + s.ID.String() }
