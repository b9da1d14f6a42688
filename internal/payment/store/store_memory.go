package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"entrypass/internal/payment/models"
	"entrypass/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when no record exists for the code
// InMemory keeps payment records keyed by checkout reference.
type InMemory struct {
	mu    sync.RWMutex
	byRef map[string]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{byRef: make(map[string]*models.Record)}
}

// Upsert inserts the record or refreshes the provider view of an existing
// checkout. A checkout already seen as paid keeps that status. It returns the
// stored row.
func (s *InMemory) Upsert(_ context.Context, rec *models.Record) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byRef[rec.CheckoutRef]
	if !ok {
		cp := *rec
		s.byRef[rec.CheckoutRef] = &cp
		out := cp
		return &out, nil
	}
	// paid is terminal for a checkout
	if !existing.ProviderStatus.IsPaid() || rec.ProviderStatus.IsPaid() {
		existing.ProviderStatus = rec.ProviderStatus
		existing.LastSource = rec.LastSource
	}
	existing.UpdatedAt = rec.UpdatedAt
	if rec.Amount != 0 {
		existing.Amount = rec.Amount
	}
	if rec.CheckoutURL != "" {
		existing.CheckoutURL = rec.CheckoutURL
	}
	out := *existing
	return &out, nil
}

func (s *InMemory) LatestByCode(ctx context.Context, code string) (*models.Record, error) {
	records, err := s.ListByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("payment for %s: %w", code, sentinel.ErrNotFound)
	}
	return records[0], nil
}

// ListByCode returns every checkout attempt for code, newest first.
func (s *InMemory) ListByCode(_ context.Context, code string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, rec := range s.byRef {
		if rec.Code == code {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
