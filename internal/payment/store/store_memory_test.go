package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) record(ref string, created time.Time) *models.Record {
	return &models.Record{
		ID:             domain.PaymentID(uuid.New()),
		RegistrationID: domain.RegistrationID(uuid.New()),
		Code:           "A1B2C3",
		CheckoutRef:    ref,
		CheckoutURL:    "https://pm.link/" + ref,
		ProviderStatus: models.ProviderUnpaid,
		Amount:         regmodels.Pesos(300),
		LastSource:     models.SourceCheckout,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func (s *InMemoryStoreSuite) TestUpsertUpdatesInPlace() {
	first, err := s.store.Upsert(s.ctx, s.record("link_1", s.now))
	s.Require().NoError(err)

	update := &models.Record{
		ID:             domain.PaymentID(uuid.New()),
		Code:           "A1B2C3",
		CheckoutRef:    "link_1",
		ProviderStatus: models.ProviderPaid,
		LastSource:     models.SourceWebhook,
		UpdatedAt:      s.now.Add(time.Minute),
	}
	stored, err := s.store.Upsert(s.ctx, update)
	s.Require().NoError(err)
	s.Equal(first.ID, stored.ID)
	s.Equal(models.ProviderPaid, stored.ProviderStatus)
	s.Equal(models.SourceWebhook, stored.LastSource)
	s.Equal(regmodels.Pesos(300), stored.Amount, "zero amount keeps the recorded amount")
	s.Equal("https://pm.link/link_1", stored.CheckoutURL)

	all, err := s.store.ListByCode(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *InMemoryStoreSuite) TestPaidCheckoutIsNotDowngraded() {
	rec := s.record("link_1", s.now)
	rec.ProviderStatus = models.ProviderPaid
	rec.LastSource = models.SourceWebhook
	_, err := s.store.Upsert(s.ctx, rec)
	s.Require().NoError(err)

	for _, status := range []models.ProviderStatus{models.ProviderFailed, models.ProviderExpired, models.ProviderUnpaid} {
		stored, err := s.store.Upsert(s.ctx, &models.Record{
			ID:             domain.PaymentID(uuid.New()),
			Code:           "A1B2C3",
			CheckoutRef:    "link_1",
			ProviderStatus: status,
			LastSource:     models.SourcePoll,
			UpdatedAt:      s.now.Add(time.Minute),
		})
		s.Require().NoError(err)
		s.Equal(models.ProviderPaid, stored.ProviderStatus, status)
		s.Equal(models.SourceWebhook, stored.LastSource, status)
	}
}

func (s *InMemoryStoreSuite) TestLatestByCode() {
	_, err := s.store.LatestByCode(s.ctx, "A1B2C3")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Upsert(s.ctx, s.record("link_old", s.now))
	s.Require().NoError(err)
	_, err = s.store.Upsert(s.ctx, s.record("link_new", s.now.Add(time.Hour)))
	s.Require().NoError(err)

	latest, err := s.store.LatestByCode(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	s.Equal("link_new", latest.CheckoutRef)
}
