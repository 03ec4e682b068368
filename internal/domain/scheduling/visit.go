package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/internal/domain/directory"
)

// VisitStatus is the closed set of visit lifecycle states.
type VisitStatus string

const (
	StatusUpcoming  VisitStatus = "upcoming"
	StatusCompleted VisitStatus = "completed"
	StatusCancelled VisitStatus = "cancelled"
)

func (s VisitStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s VisitStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusUpcoming:
		return false
	}
	return false
}

// CanTransition reports whether a visit may move from one status to another.
// Only Upcoming has outgoing edges.
func CanTransition(from, to VisitStatus) bool {
	switch from {
	case StatusUpcoming:
		switch to {
		case StatusCompleted, StatusCancelled:
			return true
		case StatusUpcoming:
			return false
		}
		return false
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// PatientSnapshot is the patient as it was when the visit was booked.
type PatientSnapshot struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	ExternalID string    `json:"external_id,omitempty"`
}

// PractitionerSnapshot is the practitioner as it was when the visit was booked.
type PractitionerSnapshot struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	Specialisations []string  `json:"specialisations"`
}

// InstitutionSnapshot is the institution as it was when the visit was booked.
type InstitutionSnapshot struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address"`
}

func snapshotPatient(p *directory.Patient) PatientSnapshot {
	return PatientSnapshot{ID: p.ID, Name: p.Name, Surname: p.Surname, ExternalID: p.ExternalID}
}

func snapshotPractitioner(p *directory.Practitioner) PractitionerSnapshot {
	specs := make([]string, len(p.Specialisations))
	copy(specs, p.Specialisations)
	return PractitionerSnapshot{ID: p.ID, DisplayName: p.DisplayName, Specialisations: specs}
}

func snapshotInstitution(i *directory.Institution) InstitutionSnapshot {
	return InstitutionSnapshot{ID: i.ID, Name: i.Name, Address: i.Address}
}

type CodeKind string

const (
	CodePrescription CodeKind = "prescription"
	CodeReferral     CodeKind = "referral"
)

func (k CodeKind) Valid() bool { return k == CodePrescription || k == CodeReferral }

// IssuedCode is a prescription or referral code handed out during a visit.
type IssuedCode struct {
	Code     string    `json:"code"`
	Kind     CodeKind  `json:"kind"`
	Active   bool      `json:"active"`
	IssuedAt time.Time `json:"issued_at"`
}

// Visit is a booked slot. The snapshots are frozen at booking time and never
// follow later directory edits.
type Visit struct {
	ID           uuid.UUID            `json:"id"`
	SlotID       uuid.UUID            `json:"slot_id"`
	Patient      PatientSnapshot      `json:"patient"`
	Practitioner PractitionerSnapshot `json:"practitioner"`
	Institution  InstitutionSnapshot  `json:"institution"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
	Status       VisitStatus          `json:"status"`
	Note         string               `json:"note"`
	Codes        []IssuedCode         `json:"codes"`
	Remarks      string               `json:"remarks,omitempty"`
	CancelledBy  string               `json:"cancelled_by,omitempty"`
	Version      int64                `json:"-"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	CancelledAt  *time.Time           `json:"cancelled_at,omitempty"`
}

// Clone returns a deep copy.
func (v *Visit) Clone() *Visit {
	cp := *v
	cp.Practitioner.Specialisations = append([]string(nil), v.Practitioner.Specialisations...)
	cp.Codes = append([]IssuedCode(nil), v.Codes...)
	if v.CompletedAt != nil {
		t := *v.CompletedAt
		cp.CompletedAt = &t
	}
	if v.CancelledAt != nil {
		t := *v.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

func (v *Visit) findCode(code string) int {
	for i := range v.Codes {
		if v.Codes[i].Code == code {
			return i
		}
	}
	return -1
}
