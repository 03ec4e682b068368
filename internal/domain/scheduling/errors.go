package scheduling

import "github.com/ehr/booking/internal/platform/apperr"

var (
	ErrSlotNotFound      = apperr.New(apperr.KindNotFound, "slot_not_found", "slot not found")
	ErrSlotConflict      = apperr.New(apperr.KindConflict, "slot_conflict", "slot booked flag changed concurrently")
	ErrSlotAlreadyBooked = apperr.New(apperr.KindConflict, "slot_already_booked", "slot is already booked")
	ErrSlotInPast        = apperr.New(apperr.KindPreconditionFailed, "slot_in_past", "slot has already started")
	ErrInvalidSlot       = apperr.New(apperr.KindInvalid, "invalid_slot", "slot needs practitioner, institution and end after start")

	ErrVisitNotFound    = apperr.New(apperr.KindNotFound, "visit_not_found", "visit not found")
	ErrAlreadyTerminal  = apperr.New(apperr.KindInvalidState, "visit_terminal", "visit is already completed or cancelled")
	ErrVisitNotStarted  = apperr.New(apperr.KindPreconditionFailed, "visit_not_started", "visit has not started yet")
	ErrVisitCancelled   = apperr.New(apperr.KindInvalidState, "visit_cancelled", "visit is cancelled")
	ErrVisitConflict    = apperr.New(apperr.KindConflict, "visit_conflict", "visit changed concurrently")
	ErrSlotAlreadyInUse = apperr.New(apperr.KindConflict, "slot_in_use", "slot already has an active visit")

	ErrInvalidCode  = apperr.New(apperr.KindInvalid, "invalid_code", "code and kind (prescription|referral) are required")
	ErrCodeExists   = apperr.New(apperr.KindConflict, "code_exists", "code already issued for this visit")
	ErrCodeNotFound = apperr.New(apperr.KindNotFound, "code_not_found", "code not issued for this visit")

	ErrInvalidBooking = apperr.New(apperr.KindInvalid, "invalid_booking", "patient_id and slot_id are required")
)
