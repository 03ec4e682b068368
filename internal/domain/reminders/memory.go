package reminders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/pkg/pagination"
)

type MemoryRepository struct {
	mu        sync.RWMutex
	reminders map[uuid.UUID]*Reminder
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reminders: make(map[uuid.UUID]*Reminder)}
}

func clone(r *Reminder) *Reminder {
	cp := *r
	if r.EndDate != nil {
		d := *r.EndDate
		cp.EndDate = &d
	}
	if r.VisitID != nil {
		id := *r.VisitID
		cp.VisitID = &id
	}
	return &cp
}

func (m *MemoryRepository) Create(_ context.Context, r *Reminder) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return ErrReminderNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *MemoryRepository) DeleteByVisit(_ context.Context, visitID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.reminders {
		if r.VisitID != nil && *r.VisitID == visitID {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Reminder
	for _, r := range m.reminders {
		if r.PatientID == patientID {
			all = append(all, clone(r))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartDate != all[j].StartDate {
			return all[i].StartDate.Before(all[j].StartDate)
		}
		return all[i].ReminderTime < all[j].ReminderTime
	})
	return pagination.Page(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (m *MemoryRepository) ListActiveOn(_ context.Context, day Date) ([]*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Reminder
	for _, r := range m.reminders {
		if r.Covers(day) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return ErrReminderNotFound
	}
	r.Read = true
	return nil
}

func (m *MemoryRepository) MarkAllRead(_ context.Context, patientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reminders {
		if r.PatientID == patientID && !r.Read {
			r.Read = true
			n++
		}
	}
	return n, nil
}
