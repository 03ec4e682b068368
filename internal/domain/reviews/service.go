package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/booking/internal/domain/directory"
	"github.com/ehr/booking/internal/domain/scheduling"
	"github.com/ehr/booking/internal/platform/telemetry"
)

var tracer = otel.Tracer("booking/reviews")

// DefaultMaxRetries bounds the compare-and-set attempts per aggregate.
const DefaultMaxRetries = 8

// Visits resolves the visit a review is written for.
type Visits interface {
	GetVisit(ctx context.Context, id uuid.UUID) (*scheduling.Visit, error)
}

// RatingPublisher refreshes the rating read model after a committed change.
type RatingPublisher interface {
	PublishRating(ctx context.Context, subject directory.Subject, agg directory.RatingAggregate)
}

type Deps struct {
	Reviews    Repository
	Visits     Visits
	Ratings    directory.RatingStore
	ReadModel  RatingPublisher
	MaxRetries int
	Metrics    *telemetry.Metrics
	Logger     zerolog.Logger
}

// Service keeps each practitioner's and institution's rating aggregate equal
// to the sum and count of the ratings in their reviews.
type Service struct {
	reviews    Repository
	visits     Visits
	ratings    directory.RatingStore
	readModel  RatingPublisher
	maxRetries int
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		reviews:    d.Reviews,
		visits:     d.Visits,
		ratings:    d.Ratings,
		readModel:  d.ReadModel,
		maxRetries: d.MaxRetries,
		metrics:    d.Metrics,
		logger:     d.Logger.With().Str("component", "reviews").Logger(),
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
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

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRatingConflict):
		return "rating_conflict"
	case errors.Is(err, ErrReviewAlreadyExists):
		return "duplicate"
	case errors.Is(err, ErrInvalidRating):
		return "invalid"
	default:
		return "error"
	}
}

// delta turns one aggregate into the next.
type delta func(directory.RatingAggregate) directory.RatingAggregate

// apply commits d to the subject's aggregate, re-reading and retrying on
// version conflicts up to the retry budget.
func (s *Service) apply(ctx context.Context, subject directory.Subject, d delta) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		cur, err := s.ratings.GetRating(ctx, subject)
		if err != nil {
			return fmt.Errorf("load rating %s: %w", subject, err)
		}
		next := d(cur)
		err = s.ratings.CompareAndSetRating(ctx, subject, cur.Version, next)
		if err == nil {
			s.metrics.ObserveRatingAttempts(string(subject.Kind), attempt)
			next.Version = cur.Version + 1
			if s.readModel != nil {
				s.readModel.PublishRating(ctx, subject, next)
			}
			return nil
		}
		if !errors.Is(err, directory.ErrRatingConflict) {
			return fmt.Errorf("update rating %s: %w", subject, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	s.metrics.ObserveRatingAttempts(string(subject.Kind), s.maxRetries)
	s.logger.Warn().Str("subject", subject.String()).Int("attempts", s.maxRetries).
		Msg("rating compare-and-set retries exhausted")
	return fmt.Errorf("update rating %s: %w", subject, ErrRatingConflict)
}

// applyBoth updates the practitioner aggregate, then the institution one. If
// the second fails the first is reverted.
func (s *Service) applyBoth(ctx context.Context, r *Review, doctor, institution, undoDoctor delta) error {
	practitioner := directory.PractitionerSubject(r.PractitionerID)
	if err := s.apply(ctx, practitioner, doctor); err != nil {
		return err
	}
	if err := s.apply(ctx, directory.InstitutionSubject(r.InstitutionID), institution); err != nil {
		s.compensate(ctx, practitioner, undoDoctor)
		return err
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, subject directory.Subject, undo delta) {
	if err := s.apply(context.WithoutCancel(ctx), subject, undo); err != nil {
		s.logger.Error().Err(err).Str("subject", subject.String()).Msg("rating compensation failed")
	}
}

func add(r float64) delta {
	return func(a directory.RatingAggregate) directory.RatingAggregate { return a.Add(r) }
}

func remove(r float64) delta {
	return func(a directory.RatingAggregate) directory.RatingAggregate { return a.Remove(r) }
}

func replace(old, next float64) delta {
	return func(a directory.RatingAggregate) directory.RatingAggregate { return a.Replace(old, next) }
}

type SubmitRequest struct {
	VisitID           uuid.UUID `json:"-"`
	AuthorID          string    `json:"-"`
	AuthorName        string    `json:"author_name"`
	DoctorRating      float64   `json:"doctor_rating"`
	InstitutionRating float64   `json:"institution_rating"`
	Content           string    `json:"content"`
}

// Submit reviews a completed visit and folds its ratings into the
// practitioner and institution aggregates.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (rev *Review, err error) {
	ctx, span := tracer.Start(ctx, "reviews.submit", trace.WithAttributes(
		attribute.String("visit.id", req.VisitID.String()),
	))
	defer func() {
		s.metrics.ObserveReview("submit", outcome(err))
		finishSpan(span, err)
	}()

	if err := validateRatings(req.DoctorRating, req.InstitutionRating); err != nil {
		return nil, err
	}
	v, err := s.visits.GetVisit(ctx, req.VisitID)
	if err != nil {
		return nil, err
	}
	if v.Status != scheduling.StatusCompleted {
		return nil, ErrVisitNotCompleted
	}
	name := strings.TrimSpace(req.AuthorName)
	if name == "" {
		name = strings.TrimSpace(v.Patient.Name + " " + v.Patient.Surname)
	}
	rev = &Review{
		VisitID:           v.ID,
		PractitionerID:    v.Practitioner.ID,
		InstitutionID:     v.Institution.ID,
		AuthorID:          req.AuthorID,
		AuthorName:        name,
		DoctorRating:      req.DoctorRating,
		InstitutionRating: req.InstitutionRating,
		Content:           req.Content,
	}
	if err := s.reviews.Create(ctx, rev); err != nil {
		return nil, err
	}

	err = s.applyBoth(ctx, rev,
		add(rev.DoctorRating), add(rev.InstitutionRating), remove(rev.DoctorRating))
	if err != nil {
		if derr := s.reviews.Delete(context.WithoutCancel(ctx), rev.ID, rev.Version); derr != nil {
			s.logger.Error().Err(derr).Str("review_id", rev.ID.String()).Msg("remove unapplied review")
		}
		return nil, err
	}
	s.logger.Info().Str("review_id", rev.ID.String()).Str("visit_id", v.ID.String()).Msg("review submitted")
	return rev, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Review, error) {
	return s.reviews.GetByID(ctx, id)
}

type UpdateRequest struct {
	DoctorRating      float64 `json:"doctor_rating"`
	InstitutionRating float64 `json:"institution_rating"`
	Content           string  `json:"content"`
}

// Update changes a review's ratings and content. The aggregates move by the
// difference between old and new ratings with their counts unchanged.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (rev *Review, err error) {
	ctx, span := tracer.Start(ctx, "reviews.update", trace.WithAttributes(
		attribute.String("review.id", id.String()),
	))
	defer func() {
		s.metrics.ObserveReview("update", outcome(err))
		finishSpan(span, err)
	}()

	if err := validateRatings(req.DoctorRating, req.InstitutionRating); err != nil {
		return nil, err
	}
	rev, err = s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *rev
	rev.DoctorRating = req.DoctorRating
	rev.InstitutionRating = req.InstitutionRating
	rev.Content = req.Content
	if err := s.reviews.Update(ctx, rev, old.Version); err != nil {
		return nil, err
	}

	if old.DoctorRating == rev.DoctorRating && old.InstitutionRating == rev.InstitutionRating {
		return rev, nil
	}
	err = s.applyBoth(ctx, rev,
		replace(old.DoctorRating, rev.DoctorRating),
		replace(old.InstitutionRating, rev.InstitutionRating),
		replace(rev.DoctorRating, old.DoctorRating))
	if err != nil {
		restore := old
		if rerr := s.reviews.Update(context.WithoutCancel(ctx), &restore, rev.Version); rerr != nil {
			s.logger.Error().Err(rerr).Str("review_id", id.String()).Msg("restore review after rating conflict")
		}
		return nil, err
	}
	return rev, nil
}

// Delete removes a review and subtracts its ratings from the aggregates.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "reviews.delete", trace.WithAttributes(
		attribute.String("review.id", id.String()),
	))
	defer func() {
		s.metrics.ObserveReview("delete", outcome(err))
		finishSpan(span, err)
	}()

	rev, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return err
	}
	err = s.applyBoth(ctx, rev,
		remove(rev.DoctorRating), remove(rev.InstitutionRating), add(rev.DoctorRating))
	if err != nil {
		return err
	}
	if err := s.reviews.Delete(ctx, id, rev.Version); err != nil {
		// The review stays, so its contribution goes back.
		s.compensate(ctx, directory.PractitionerSubject(rev.PractitionerID), add(rev.DoctorRating))
		s.compensate(ctx, directory.InstitutionSubject(rev.InstitutionID), add(rev.InstitutionRating))
		return err
	}
	return nil
}

func (s *Service) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	return s.reviews.ListByPractitioner(ctx, practitionerID, limit, offset)
}
