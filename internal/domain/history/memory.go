package history

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
	entries map[uuid.UUID]*Entry
	byVisit map[uuid.UUID]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		byVisit: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *MemoryRepository) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.VisitID != nil {
		if _, ok := m.byVisit[*e.VisitID]; ok {
			return ErrEntryExists
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	m.entries[e.ID] = &cp
	if e.VisitID != nil {
		m.byVisit[*e.VisitID] = e.ID
	}
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	m.mu.RLock()
	id, ok := m.byVisit[visitID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrEntryNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Entry
	for _, e := range m.entries {
		if e.PatientID == patientID {
			cp := *e
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	return pagination.Page(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}
