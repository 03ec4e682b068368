package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded Repository used by tests and by the
// STORAGE=memory development mode.
type MemoryRepository struct {
	mu            sync.RWMutex
	practitioners map[uuid.UUID]*Practitioner
	institutions  map[uuid.UUID]*Institution
	patients      map[uuid.UUID]*Patient
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		practitioners: make(map[uuid.UUID]*Practitioner),
		institutions:  make(map[uuid.UUID]*Institution),
		patients:      make(map[uuid.UUID]*Patient),
	}
}

func (m *MemoryRepository) CreatePractitioner(_ context.Context, p *Practitioner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.practitioners[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetPractitioner(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) CreateInstitution(_ context.Context, i *Institution) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.CreatedAt = time.Now().UTC()
	i.UpdatedAt = i.CreatedAt
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *i
	m.institutions[i.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetInstitution(_ context.Context, id uuid.UUID) (*Institution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.institutions[id]
	if !ok {
		return nil, ErrInstitutionNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// aggregate returns a pointer to the stored aggregate. Callers hold m.mu.
func (m *MemoryRepository) aggregate(subject Subject) (*RatingAggregate, error) {
	switch subject.Kind {
	case SubjectPractitioner:
		p, ok := m.practitioners[subject.ID]
		if !ok {
			return nil, ErrPractitionerNotFound
		}
		return &p.Ratings, nil
	case SubjectInstitution:
		i, ok := m.institutions[subject.ID]
		if !ok {
			return nil, ErrInstitutionNotFound
		}
		return &i.Ratings, nil
	default:
		return nil, ErrUnknownSubject
	}
}

func (m *MemoryRepository) GetRating(_ context.Context, subject Subject) (RatingAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg, err := m.aggregate(subject)
	if err != nil {
		return RatingAggregate{}, err
	}
	return *agg, nil
}

func (m *MemoryRepository) CompareAndSetRating(_ context.Context, subject Subject, expectedVersion int64, next RatingAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, err := m.aggregate(subject)
	if err != nil {
		return err
	}
	if agg.Version != expectedVersion {
		return ErrRatingConflict
	}
	agg.Sum = next.Sum
	agg.Count = next.Count
	agg.Version = expectedVersion + 1
	return nil
}
