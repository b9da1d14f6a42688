package store

import (
	"context"
	"sort"
	"sync"

	"entrypass/internal/checkin/models"
	"entrypass/pkg/domain"
)

type dayKey struct {
	registration domain.RegistrationID
	date         string
}

// InMemory keeps check-in entries. The per-day key plays the role of the
// unique constraint.
type InMemory struct {
	mu      sync.RWMutex
	byDay   map[dayKey]*models.Entry
	entries map[domain.RegistrationID][]*models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{
		byDay:   make(map[dayKey]*models.Entry),
		entries: make(map[domain.RegistrationID][]*models.Entry),
	}
}

// Record inserts the entry unless the registration already has one for the
// same visit date. It reports whether a row was written.
func (s *InMemory) Record(_ context.Context, entry *models.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{registration: entry.RegistrationID, date: entry.VisitDate}
	if _, ok := s.byDay[key]; ok {
		return false, nil
	}
	cp := *entry
	s.byDay[key] = &cp
	s.entries[entry.RegistrationID] = append(s.entries[entry.RegistrationID], &cp)
	return true, nil
}

// ListByRegistration returns entries newest first.
func (s *InMemory) ListByRegistration(_ context.Context, id domain.RegistrationID) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Entry, 0, len(s.entries[id]))
	for _, e := range s.entries[id] {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitDate != out[j].VisitDate {
			return out[i].VisitDate > out[j].VisitDate
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
