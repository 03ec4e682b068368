package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/booking/internal/domain/directory"
	"github.com/ehr/booking/internal/domain/history"
	"github.com/ehr/booking/internal/platform/notification"
	"github.com/ehr/booking/internal/platform/telemetry"
)

var tracer = otel.Tracer("booking/scheduling")

// maxVisitAttempts bounds read-modify-write retries on a visit whose version
// moved underneath us.
const maxVisitAttempts = 5

// Directory supplies the entities snapshotted into a visit at booking time.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	GetPractitioner(ctx context.Context, id uuid.UUID) (*directory.Practitioner, error)
	GetInstitution(ctx context.Context, id uuid.UUID) (*directory.Institution, error)
}

// HistoryRecorder receives the medical history entry of a completed visit.
type HistoryRecorder interface {
	RecordVisit(ctx context.Context, e *history.Entry) error
}

// VisitReminders manages the system reminder attached to an upcoming visit.
type VisitReminders interface {
	ScheduleForVisit(ctx context.Context, v *Visit) error
	DeleteForVisit(ctx context.Context, visitID uuid.UUID) error
}

// Reserver flips a slot to booked and stores its visit as one unit: either
// both writes land or neither does.
type Reserver interface {
	Reserve(ctx context.Context, v *Visit) error
}

// Deps wires a Service. Reserver, Reminders, Publisher and Metrics are
// optional. Without a Reserver the slot flag and the visit are written
// separately and a failed insert releases the slot again.
type Deps struct {
	Slots     SlotRepository
	Visits    VisitRepository
	Reserver  Reserver
	Directory Directory
	History   HistoryRecorder
	Reminders VisitReminders
	Publisher notification.Publisher
	Templates *notification.TemplateEngine
	Metrics   *telemetry.Metrics
	Logger    zerolog.Logger
	// Location renders visit times in notifications. Defaults to UTC.
	Location *time.Location
	Clock    func() time.Time
}

// Service is the booking manager and visit lifecycle.
type Service struct {
	slots     SlotRepository
	visits    VisitRepository
	reserver  Reserver
	dir       Directory
	history   HistoryRecorder
	reminders VisitReminders
	publisher notification.Publisher
	templates *notification.TemplateEngine
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		slots:     d.Slots,
		visits:    d.Visits,
		reserver:  d.Reserver,
		dir:       d.Directory,
		history:   d.History,
		reminders: d.Reminders,
		publisher: d.Publisher,
		templates: d.Templates,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "scheduling").Logger(),
		loc:       d.Location,
		now:       d.Clock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.templates == nil {
		s.templates = notification.NewTemplateEngine()
	}
	return s
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// -- Slots --

func (s *Service) CreateSlots(ctx context.Context, slots []*Slot) error {
	if len(slots) == 0 {
		return ErrInvalidSlot
	}
	for _, sl := range slots {
		if err := sl.Validate(); err != nil {
			return err
		}
		sl.Booked = false
	}
	return s.slots.Create(ctx, slots...)
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

// ListFreeSlots returns unbooked slots of a practitioner starting in [from, to).
func (s *Service) ListFreeSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	if !to.After(from) {
		return []*Slot{}, nil
	}
	return s.slots.ListFree(ctx, practitionerID, from, to)
}

// -- Booking --

type BookingRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	Remarks   string    `json:"remarks"`
}

// Book reserves a slot for a patient and creates the Upcoming visit. Of any
// number of concurrent calls for one slot exactly one succeeds; the others
// get ErrSlotAlreadyBooked.
func (s *Service) Book(ctx context.Context, req BookingRequest) (v *Visit, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.book", trace.WithAttributes(
		attribute.String("slot.id", req.SlotID.String()),
		attribute.String("patient.id", req.PatientID.String()),
	))
	defer func() {
		s.metrics.ObserveBooking(bookingOutcome(err))
		finishSpan(span, err)
	}()

	if req.PatientID == uuid.Nil || req.SlotID == uuid.Nil {
		return nil, ErrInvalidBooking
	}
	slot, err := s.slots.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if !slot.StartTime.After(s.now()) {
		return nil, ErrSlotInPast
	}
	if slot.Booked {
		return nil, ErrSlotAlreadyBooked
	}

	v, err = s.newVisit(ctx, slot, req)
	if err != nil {
		return nil, err
	}
	if err := s.reserve(ctx, v); err != nil {
		if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrSlotAlreadyInUse) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("reserve slot %s: %w", slot.ID, err)
	}

	if s.reminders != nil {
		if err := s.reminders.ScheduleForVisit(ctx, v); err != nil {
			s.logger.Warn().Err(err).Str("visit_id", v.ID.String()).Msg("upcoming visit reminder not scheduled")
		}
	}
	s.notify(ctx, notification.EventVisitBooked, v)
	s.logger.Info().Str("visit_id", v.ID.String()).Str("slot_id", slot.ID.String()).
		Str("patient_id", req.PatientID.String()).Msg("visit booked")
	return v, nil
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrSlotInPast):
		return "in_past"
	case errors.Is(err, ErrSlotNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// newVisit snapshots the booking parties into an unsaved Upcoming visit.
func (s *Service) newVisit(ctx context.Context, slot *Slot, req BookingRequest) (*Visit, error) {
	patient, err := s.dir.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("snapshot patient: %w", err)
	}
	practitioner, err := s.dir.GetPractitioner(ctx, slot.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("snapshot practitioner: %w", err)
	}
	institution, err := s.dir.GetInstitution(ctx, slot.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot institution: %w", err)
	}

	return &Visit{
		SlotID:       slot.ID,
		Patient:      snapshotPatient(patient),
		Practitioner: snapshotPractitioner(practitioner),
		Institution:  snapshotInstitution(institution),
		StartTime:    slot.StartTime,
		EndTime:      slot.EndTime,
		Status:       StatusUpcoming,
		Codes:        []IssuedCode{},
		Remarks:      strings.TrimSpace(req.Remarks),
	}, nil
}

// reserve sets the booked flag of v's slot and stores v.
func (s *Service) reserve(ctx context.Context, v *Visit) error {
	if s.reserver != nil {
		return s.reserver.Reserve(ctx, v)
	}
	if err := s.slots.SetBooked(ctx, v.SlotID, false, true); err != nil {
		return err
	}
	if err := s.visits.Create(ctx, v); err != nil {
		// An active visit already holds the slot, so the flag stays set.
		if !errors.Is(err, ErrSlotAlreadyInUse) {
			s.releaseSlot(context.WithoutCancel(ctx), v.SlotID)
		}
		return err
	}
	return nil
}

// releaseSlot flips the booked flag back. A failure leaves the slot booked
// with no active visit; it is logged for an operator to repair.
func (s *Service) releaseSlot(ctx context.Context, slotID uuid.UUID) {
	if err := s.slots.SetBooked(ctx, slotID, true, false); err != nil {
		s.logger.Error().Err(err).Str("slot_id", slotID.String()).Msg("failed to release slot")
	}
}

// Cancel moves an Upcoming visit to Cancelled and frees its slot.
func (s *Service) Cancel(ctx context.Context, visitID uuid.UUID, actorID string) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.cancel", trace.WithAttributes(
		attribute.String("visit.id", visitID.String()),
	))
	defer func() {
		outcome := "cancelled"
		if err != nil {
			outcome = "rejected"
		}
		s.metrics.ObserveCancellation(outcome)
		finishSpan(span, err)
	}()

	now := s.now().UTC()
	v, err := s.mutate(ctx, visitID, func(v *Visit) error {
		if !CanTransition(v.Status, StatusCancelled) {
			return ErrAlreadyTerminal
		}
		v.Status = StatusCancelled
		v.CancelledBy = actorID
		v.CancelledAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	s.releaseSlot(context.WithoutCancel(ctx), v.SlotID)
	if s.reminders != nil {
		if err := s.reminders.DeleteForVisit(ctx, v.ID); err != nil {
			s.logger.Warn().Err(err).Str("visit_id", v.ID.String()).Msg("upcoming visit reminder not removed")
		}
	}
	s.notify(ctx, notification.EventVisitCancelled, v)
	s.logger.Info().Str("visit_id", v.ID.String()).Str("actor", actorID).Msg("visit cancelled")
	return nil
}

// -- Visit lifecycle --

// mutate applies fn to the latest stored visit and writes it back with a
// version check, retrying when another writer got there first. fn re-checks
// the state on every attempt.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(v *Visit) error) (*Visit, error) {
	for attempt := 0; attempt < maxVisitAttempts; attempt++ {
		v, err := s.visits.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(v); err != nil {
			return nil, err
		}
		err = s.visits.Update(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVisitConflict) {
			return nil, err
		}
	}
	return nil, ErrVisitConflict
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *Service) ListVisitsForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}

// AttachNote stores the practitioner's draft note on an Upcoming visit.
func (s *Service) AttachNote(ctx context.Context, visitID uuid.UUID, note string) (*Visit, error) {
	return s.mutate(ctx, visitID, func(v *Visit) error {
		if v.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		v.Note = note
		return nil
	})
}

// Complete finishes a visit that has started. A nil note keeps the draft
// note; an empty note is allowed and produces no history entry.
func (s *Service) Complete(ctx context.Context, visitID uuid.UUID, note *string) (v *Visit, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.complete", trace.WithAttributes(
		attribute.String("visit.id", visitID.String()),
	))
	defer func() { finishSpan(span, err) }()

	now := s.now().UTC()
	v, err = s.mutate(ctx, visitID, func(v *Visit) error {
		if !CanTransition(v.Status, StatusCompleted) {
			return ErrAlreadyTerminal
		}
		if now.Before(v.StartTime) {
			return ErrVisitNotStarted
		}
		if note != nil {
			v.Note = *note
		}
		v.Status = StatusCompleted
		v.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, s.afterComplete(ctx, v, "explicit")
}

// SweepElapsed completes every Upcoming visit that ended before now and
// carries a note. Visits without a note stay Upcoming. It returns the number
// of visits completed.
func (s *Service) SweepElapsed(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "scheduling.sweep_elapsed")
	defer span.End()

	candidates, err := s.visits.ListUpcomingEndedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list elapsed visits: %w", err)
	}

	completedAt := now.UTC()
	var completed int
	var errs []error
	for _, c := range candidates {
		if strings.TrimSpace(c.Note) == "" {
			continue
		}
		v, err := s.mutate(ctx, c.ID, func(v *Visit) error {
			if v.Status != StatusUpcoming || strings.TrimSpace(v.Note) == "" || !v.EndTime.Before(now) {
				return errSkipSweep
			}
			v.Status = StatusCompleted
			v.CompletedAt = &completedAt
			return nil
		})
		if errors.Is(err, errSkipSweep) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("complete visit %s: %w", c.ID, err))
			continue
		}
		completed++
		if err := s.afterComplete(ctx, v, "sweep"); err != nil {
			errs = append(errs, err)
		}
	}
	span.SetAttributes(attribute.Int("visits.completed", completed))
	if completed > 0 {
		s.logger.Info().Int("completed", completed).Msg("elapsed visits completed")
	}
	return completed, errors.Join(errs...)
}

var errSkipSweep = errors.New("visit no longer eligible for sweep")

// afterComplete emits the medical history entry and the completion event.
func (s *Service) afterComplete(ctx context.Context, v *Visit, trigger string) error {
	s.metrics.ObserveCompletion(trigger)
	s.notify(ctx, notification.EventVisitCompleted, v)
	s.logger.Info().Str("visit_id", v.ID.String()).Str("trigger", trigger).Msg("visit completed")

	if strings.TrimSpace(v.Note) == "" || s.history == nil {
		return nil
	}
	visitID := v.ID
	entry := &history.Entry{
		PatientID: v.Patient.ID,
		VisitID:   &visitID,
		Title:     visitTitle(v),
		Date:      v.StartTime,
		Note:      v.Note,
		Author: &history.Author{
			ID:              v.Practitioner.ID,
			DisplayName:     v.Practitioner.DisplayName,
			Specialisations: append([]string(nil), v.Practitioner.Specialisations...),
		},
	}
	if err := s.history.RecordVisit(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("visit_id", v.ID.String()).Msg("medical history entry not recorded")
		return fmt.Errorf("record history for visit %s: %w", v.ID, err)
	}
	return nil
}

func visitTitle(v *Visit) string {
	if len(v.Practitioner.Specialisations) > 0 {
		return v.Practitioner.Specialisations[0] + " visit"
	}
	return "Visit with " + v.Practitioner.DisplayName
}

// -- Issued codes --

// IssueCode adds a prescription or referral code to an Upcoming visit.
func (s *Service) IssueCode(ctx context.Context, visitID uuid.UUID, kind CodeKind, code string) (*Visit, error) {
	code = strings.TrimSpace(code)
	if code == "" || !kind.Valid() {
		return nil, ErrInvalidCode
	}
	now := s.now().UTC()
	return s.mutate(ctx, visitID, func(v *Visit) error {
		if v.Status != StatusUpcoming {
			return ErrAlreadyTerminal
		}
		if v.findCode(code) >= 0 {
			return ErrCodeExists
		}
		v.Codes = append(v.Codes, IssuedCode{Code: code, Kind: kind, Active: true, IssuedAt: now})
		return nil
	})
}

// SetCodeActive activates or revokes an issued code. Codes of a completed
// visit stay revocable; a cancelled visit is frozen.
func (s *Service) SetCodeActive(ctx context.Context, visitID uuid.UUID, code string, active bool) (*Visit, error) {
	return s.mutate(ctx, visitID, func(v *Visit) error {
		if v.Status == StatusCancelled {
			return ErrVisitCancelled
		}
		i := v.findCode(code)
		if i < 0 {
			return ErrCodeNotFound
		}
		v.Codes[i].Active = active
		return nil
	})
}

// -- Notifications --

func (s *Service) notify(ctx context.Context, typ notification.EventType, v *Visit) {
	if s.publisher == nil {
		return
	}
	start := v.StartTime.In(s.loc)
	ev, err := notification.NewEvent(s.templates, typ, v.Patient.ID, map[string]string{
		"visit_id":     v.ID.String(),
		"practitioner": v.Practitioner.DisplayName,
		"institution":  v.Institution.Name,
		"date":         start.Format("2006-01-02"),
		"time":         start.Format("15:04"),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(typ)).Msg("render notification")
		return
	}
	ev.DedupKey = string(typ) + ":" + v.ID.String()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", string(typ)).Str("visit_id", v.ID.String()).Msg("notification not published")
	}
}
