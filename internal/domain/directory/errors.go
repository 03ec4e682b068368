package directory

import "github.com/ehr/booking/internal/platform/apperr"

var (
	ErrPractitionerNotFound = apperr.New(apperr.KindNotFound, "practitioner_not_found", "practitioner not found")
	ErrInstitutionNotFound  = apperr.New(apperr.KindNotFound, "institution_not_found", "institution not found")
	ErrPatientNotFound      = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrRatingConflict       = apperr.New(apperr.KindConflict, "rating_conflict", "rating aggregate changed concurrently")
	ErrUnknownSubject       = apperr.New(apperr.KindInvalid, "unknown_subject", "unknown rating subject")
)
