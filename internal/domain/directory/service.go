package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/booking/internal/platform/apperr"
)

var errMissingName = apperr.New(apperr.KindInvalid, "name_required", "name is required")

// Service exposes the directory entities the booking engine snapshots, and
// the rating read model.
type Service struct {
	repo   Repository
	cache  RatingCache
	logger zerolog.Logger
}

// NewService builds a directory service. cache may be nil.
func NewService(repo Repository, cache RatingCache, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger.With().Str("component", "directory").Logger()}
}

func (s *Service) Ratings() RatingStore { return s.repo }

func (s *Service) CreatePractitioner(ctx context.Context, p *Practitioner) error {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.DisplayName == "" {
		return errMissingName
	}
	p.Ratings = RatingAggregate{}
	return s.repo.CreatePractitioner(ctx, p)
}

func (s *Service) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return s.repo.GetPractitioner(ctx, id)
}

func (s *Service) CreateInstitution(ctx context.Context, i *Institution) error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return errMissingName
	}
	i.Ratings = RatingAggregate{}
	return s.repo.CreateInstitution(ctx, i)
}

func (s *Service) GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error) {
	return s.repo.GetInstitution(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Surname) == "" {
		return errMissingName
	}
	return s.repo.CreatePatient(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

// RatingView returns the aggregate from the read model, falling back to the
// store on a miss.
func (s *Service) RatingView(ctx context.Context, subject Subject) (RatingAggregate, error) {
	if s.cache != nil {
		agg, ok, err := s.cache.Get(ctx, subject)
		if err != nil {
			s.logger.Warn().Err(err).Str("subject", subject.String()).Msg("rating cache read failed")
		} else if ok {
			return agg, nil
		}
	}
	agg, err := s.repo.GetRating(ctx, subject)
	if err != nil {
		return RatingAggregate{}, fmt.Errorf("load rating %s: %w", subject, err)
	}
	s.PublishRating(ctx, subject, agg)
	return agg, nil
}

// PublishRating refreshes the read model after a committed aggregate change.
// Failures only degrade freshness and are logged.
func (s *Service) PublishRating(ctx context.Context, subject Subject, agg RatingAggregate) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, subject, agg); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject.String()).Int64("version", agg.Version).
			Msg("rating cache publish failed")
	}
}
