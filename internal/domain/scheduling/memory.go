package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/pkg/pagination"
)

// MemorySlotRepository keeps slots in a map guarded by a mutex. SetBooked is
// atomic under the lock.
type MemorySlotRepository struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
}

func NewMemorySlotRepository() *MemorySlotRepository {
	return &MemorySlotRepository{slots: make(map[uuid.UUID]*Slot)}
}

func (m *MemorySlotRepository) Create(_ context.Context, slots ...*Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = now
		cp := *s
		m.slots[s.ID] = &cp
	}
	return nil
}

func (m *MemorySlotRepository) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySlotRepository) ListFree(_ context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Slot
	for _, s := range m.slots {
		if s.PractitionerID != practitionerID || s.Booked {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemorySlotRepository) SetBooked(_ context.Context, id uuid.UUID, expected, next bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Booked != expected {
		return ErrSlotConflict
	}
	s.Booked = next
	s.Version++
	return nil
}

// MemoryVisitRepository keeps visits in a map. It enforces one non-cancelled
// visit per slot like the Postgres partial unique index.
type MemoryVisitRepository struct {
	mu     sync.Mutex
	visits map[uuid.UUID]*Visit
}

func NewMemoryVisitRepository() *MemoryVisitRepository {
	return &MemoryVisitRepository{visits: make(map[uuid.UUID]*Visit)}
}

func (m *MemoryVisitRepository) Create(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.visits {
		if existing.SlotID == v.SlotID && existing.Status != StatusCancelled {
			return ErrSlotAlreadyInUse
		}
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.Version = 0
	m.visits[v.ID] = v.Clone()
	return nil
}

func (m *MemoryVisitRepository) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return v.Clone(), nil
}

func (m *MemoryVisitRepository) Update(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.visits[v.ID]
	if !ok {
		return ErrVisitNotFound
	}
	if stored.Version != v.Version {
		return ErrVisitConflict
	}
	v.Version++
	v.UpdatedAt = time.Now().UTC()
	m.visits[v.ID] = v.Clone()
	return nil
}

func (m *MemoryVisitRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Visit
	for _, v := range m.visits {
		if v.Patient.ID == patientID {
			all = append(all, v.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })
	return pagination.Page(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (m *MemoryVisitRepository) ListUpcomingEndedBefore(_ context.Context, t time.Time) ([]*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Visit
	for _, v := range m.visits {
		if v.Status == StatusUpcoming && v.EndTime.Before(t) {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}
