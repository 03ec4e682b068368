package reviews

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/pkg/pagination"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	reviews map[uuid.UUID]*Review
	byVisit map[uuid.UUID]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reviews: make(map[uuid.UUID]*Review),
		byVisit: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *MemoryRepository) Create(_ context.Context, r *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byVisit[r.VisitID]; ok {
		return ErrReviewAlreadyExists
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	r.Version = 0
	cp := *r
	m.reviews[r.ID] = &cp
	m.byVisit[r.VisitID] = r.ID
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) Update(_ context.Context, r *Review, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reviews[r.ID]
	if !ok {
		return ErrReviewNotFound
	}
	if cur.Version != expectedVersion {
		return ErrReviewConflict
	}
	cur.DoctorRating = r.DoctorRating
	cur.InstitutionRating = r.InstitutionRating
	cur.Content = r.Content
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	r.Version, r.UpdatedAt = cur.Version, cur.UpdatedAt
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reviews[id]
	if !ok {
		return ErrReviewNotFound
	}
	if cur.Version != expectedVersion {
		return ErrReviewConflict
	}
	delete(m.reviews, id)
	delete(m.byVisit, cur.VisitID)
	return nil
}

func (m *MemoryRepository) ListByPractitioner(_ context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	m.mu.RLock()
	var all []*Review
	for _, r := range m.reviews {
		if r.PractitionerID == practitionerID {
			cp := *r
			all = append(all, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return pagination.Page(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}
