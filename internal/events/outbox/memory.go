package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"entrypass/internal/events"
)

// InMemory is the outbox for database-less runs and tests.
type InMemory struct {
	mu     sync.Mutex
	events map[uuid.UUID]*events.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[uuid.UUID]*events.Event)}
}

func (s *InMemory) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := event
	s.events[event.ID] = &cp
	return nil
}

func (s *InMemory) Pending(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.PublishedAt == nil {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.events[id]; ok {
			published := at
			e.PublishedAt = &published
		}
	}
	return nil
}

// All returns every event of the given type, for assertions in tests.
func (s *InMemory) All(eventType events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
