package reminders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/booking/internal/domain/scheduling"
)

// DefaultVisitLead is how long before a visit its system reminder fires.
const DefaultVisitLead = time.Hour

type Service struct {
	repo   Repository
	loc    *time.Location
	lead   time.Duration
	logger zerolog.Logger
}

// NewService creates a reminder service. Reminder days and times are wall
// clock in loc; nil means UTC. A non-positive lead selects DefaultVisitLead.
func NewService(repo Repository, loc *time.Location, lead time.Duration, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if lead <= 0 {
		lead = DefaultVisitLead
	}
	return &Service{
		repo:   repo,
		loc:    loc,
		lead:   lead,
		logger: logger.With().Str("component", "reminders").Logger(),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// Create stores a patient-authored reminder.
func (s *Service) Create(ctx context.Context, r *Reminder) error {
	r.IsSystem = false
	r.VisitID = nil
	r.Read = false
	r.Title = strings.TrimSpace(r.Title)
	if err := r.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id)
}

// MarkAllRead marks every reminder of the patient read and returns how many
// changed.
func (s *Service) MarkAllRead(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, patientID)
}

// DueReminders returns the occurrences due at asOf, ordered by fire time.
// A reminder is due on each day of its window once that day's reminder time
// has passed. Read reminders keep firing; reading only affects the inbox.
func (s *Service) DueReminders(ctx context.Context, asOf time.Time) ([]Occurrence, error) {
	day := DateOf(asOf.In(s.loc))
	active, err := s.repo.ListActiveOn(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list reminders active on %s: %w", day, err)
	}
	due := make([]Occurrence, 0, len(active))
	for _, r := range active {
		if occ, ok := r.DueAt(asOf, s.loc); ok {
			due = append(due, occ)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].FireAt.Equal(due[j].FireAt) {
			return due[i].FireAt.Before(due[j].FireAt)
		}
		return due[i].Reminder.ID.String() < due[j].Reminder.ID.String()
	})
	return due, nil
}

// ScheduleForVisit creates the system reminder for a booked visit. It fires
// the configured lead before the visit starts, but never on an earlier day
// than the visit itself.
func (s *Service) ScheduleForVisit(ctx context.Context, v *scheduling.Visit) error {
	start := v.StartTime.In(s.loc)
	fire := start.Add(-s.lead)
	day := DateOf(start)
	tod := TimeOfDayOf(fire)
	if DateOf(fire) != day {
		tod = 0
	}
	visitID := v.ID
	r := &Reminder{
		PatientID:    v.Patient.ID,
		Title:        "Upcoming visit",
		Content:      visitContent(v, start),
		StartDate:    day,
		ReminderTime: tod,
		IsSystem:     true,
		VisitID:      &visitID,
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return fmt.Errorf("create visit reminder: %w", err)
	}
	s.logger.Debug().
		Str("visit_id", v.ID.String()).
		Str("day", day.String()).
		Str("time", tod.String()).
		Msg("visit reminder scheduled")
	return nil
}

func (s *Service) DeleteForVisit(ctx context.Context, visitID uuid.UUID) error {
	n, err := s.repo.DeleteByVisit(ctx, visitID)
	if err != nil {
		return fmt.Errorf("delete visit reminders: %w", err)
	}
	s.logger.Debug().Str("visit_id", visitID.String()).Int("deleted", n).Msg("visit reminders removed")
	return nil
}

func visitContent(v *scheduling.Visit, start time.Time) string {
	who := v.Practitioner.DisplayName
	if who == "" {
		who = "your practitioner"
	}
	where := v.Institution.Name
	if where != "" {
		where = " at " + where
	}
	return fmt.Sprintf("Visit with %s%s on %s at %s.", who, where,
		start.Format("2006-01-02"), start.Format("15:04"))
}
