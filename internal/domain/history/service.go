package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "history").Logger()}
}

// RecordVisit stores the entry emitted by a completed visit. Recording the
// same visit twice is a no-op, so completion retries cannot duplicate it.
func (s *Service) RecordVisit(ctx context.Context, e *Entry) error {
	if e.VisitID == nil {
		return fmt.Errorf("record visit entry: %w", ErrInvalidEntry)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	err := s.repo.Create(ctx, e)
	if errors.Is(err, ErrEntryExists) {
		s.logger.Debug().Str("visit_id", e.VisitID.String()).Msg("history entry already recorded")
		return nil
	}
	return err
}

// CreateManual stores a patient-authored entry.
func (s *Service) CreateManual(ctx context.Context, e *Entry) error {
	e.VisitID = nil
	e.Author = nil
	e.Title = strings.TrimSpace(e.Title)
	if err := e.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ForVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	return s.repo.GetByVisit(ctx, visitID)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
