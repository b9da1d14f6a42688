package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the registration or fee setting does not exist
// - ErrAlreadyUsed when the code (or ID) is already taken
// InMemory keeps registrations for tests and database-less dev runs.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[domain.RegistrationID]*models.Registration
	byCode   map[string]domain.RegistrationID
	members  map[domain.RegistrationID][]models.Member
	settings []models.FeeSetting
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[domain.RegistrationID]*models.Registration),
		byCode:  make(map[string]domain.RegistrationID),
		members: make(map[domain.RegistrationID][]models.Member),
	}
}

func (s *InMemory) Exists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCode[code]
	return ok, nil
}

func (s *InMemory) Insert(_ context.Context, reg *models.Registration, members []models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[reg.Code]; ok {
		return fmt.Errorf("code %s: %w", reg.Code, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.byID[reg.ID]; ok {
		return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrAlreadyUsed)
	}
	cp := *reg
	s.byID[reg.ID] = &cp
	s.byCode[reg.Code] = reg.ID
	roster := make([]models.Member, len(members))
	for i, m := range members {
		m.RegistrationID = reg.ID
		roster[i] = m
	}
	s.members[reg.ID] = roster
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, code string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", code, sentinel.ErrNotFound)
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner domain.UserID) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, reg := range s.byID {
		if reg.OwnerID == owner {
			cp := *reg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) Members(_ context.Context, id domain.RegistrationID) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", id, sentinel.ErrNotFound)
	}
	return append([]models.Member(nil), roster...), nil
}

// TransitionPaymentStatus applies from→to only when the current status is from.
func (s *InMemory) TransitionPaymentStatus(_ context.Context, id domain.RegistrationID, from, to models.PaymentStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("registration %s: %w", id, sentinel.ErrNotFound)
	}
	if reg.PaymentStatus != from {
		return false, nil
	}
	reg.PaymentStatus = to
	if to == models.StatusPaid {
		paidAt := at
		reg.PaidAt = &paidAt
	}
	return true, nil
}

// SetCredentialRefIfEmpty records ref once and returns whichever ref is stored.
func (s *InMemory) SetCredentialRefIfEmpty(_ context.Context, id domain.RegistrationID, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("registration %s: %w", id, sentinel.ErrNotFound)
	}
	if reg.CredentialRef == "" {
		reg.CredentialRef = ref
	}
	return reg.CredentialRef, nil
}

func (s *InMemory) InsertFeeSetting(_ context.Context, setting *models.FeeSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = append(s.settings, *setting)
	return nil
}

func (s *InMemory) LatestFeeSetting(_ context.Context) (*models.FeeSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.FeeSetting
	for i := range s.settings {
		if latest == nil || !s.settings[i].EnabledAt.Before(latest.EnabledAt) {
			latest = &s.settings[i]
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("fee setting: %w", sentinel.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}
