package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func newRegistration(code string, status models.PaymentStatus) *models.Registration {
	return &models.Registration{
		ID:            domain.RegistrationID(uuid.New()),
		Code:          code,
		OwnerID:       domain.UserID(uuid.New()),
		GroupSize:     1,
		PerPersonFee:  models.Pesos(50),
		TotalFee:      models.Pesos(50),
		PaymentMethod: models.PaymentCash,
		PaymentStatus: status,
		CreatedAt:     time.Now(),
	}
}

func member(name string) models.Member {
	return models.Member{ID: uuid.New(), Name: name, Age: 30, Sex: models.SexFemale, Municipality: "Coron", Province: "Palawan", Country: "Philippines"}
}

func (s *InMemoryStoreSuite) TestInsertAndFind() {
	reg := newRegistration("A1B2C3", models.StatusUnpaid)
	s.Require().NoError(s.store.Insert(s.ctx, reg, []models.Member{member("Ana"), member("Ben")}))

	found, err := s.store.FindByCode(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	s.Equal(reg.ID, found.ID)

	members, err := s.store.Members(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(members, 2)
	s.Equal("Ana", members[0].Name)
	s.Equal(reg.ID, members[0].RegistrationID)

	exists, err := s.store.Exists(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	s.True(exists)

	_, err = s.store.FindByCode(s.ctx, "Z9Z9Z9")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestDuplicateCodeRejected() {
	s.Require().NoError(s.store.Insert(s.ctx, newRegistration("A1B2C3", models.StatusUnpaid), nil))
	err := s.store.Insert(s.ctx, newRegistration("A1B2C3", models.StatusUnpaid), nil)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *InMemoryStoreSuite) TestFindReturnsCopy() {
	reg := newRegistration("A1B2C3", models.StatusUnpaid)
	s.Require().NoError(s.store.Insert(s.ctx, reg, nil))

	found, err := s.store.FindByCode(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	found.PaymentStatus = models.StatusPaid

	again, err := s.store.FindByCode(s.ctx, "A1B2C3")
	s.Require().NoError(err)
	s.Equal(models.StatusUnpaid, again.PaymentStatus)
}

func (s *InMemoryStoreSuite) TestTransitionPaymentStatus() {
	reg := newRegistration("A1B2C3", models.StatusUnpaid)
	s.Require().NoError(s.store.Insert(s.ctx, reg, nil))
	at := time.Now()

	moved, err := s.store.TransitionPaymentStatus(s.ctx, reg.ID, models.StatusUnpaid, models.StatusPaid, at)
	s.Require().NoError(err)
	s.True(moved)

	moved, err = s.store.TransitionPaymentStatus(s.ctx, reg.ID, models.StatusUnpaid, models.StatusPaid, at)
	s.Require().NoError(err)
	s.False(moved, "second transition must be a no-op")

	found, _ := s.store.FindByCode(s.ctx, "A1B2C3")
	s.Equal(models.StatusPaid, found.PaymentStatus)
	s.Require().NotNil(found.PaidAt)
	s.WithinDuration(at, *found.PaidAt, time.Millisecond)

	_, err = s.store.TransitionPaymentStatus(s.ctx, domain.RegistrationID(uuid.New()), models.StatusUnpaid, models.StatusPaid, at)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSetCredentialRefIfEmpty() {
	reg := newRegistration("A1B2C3", models.StatusNotRequired)
	s.Require().NoError(s.store.Insert(s.ctx, reg, nil))

	ref, err := s.store.SetCredentialRefIfEmpty(s.ctx, reg.ID, "credentials/A1B2C3.png")
	s.Require().NoError(err)
	s.Equal("credentials/A1B2C3.png", ref)

	ref, err = s.store.SetCredentialRefIfEmpty(s.ctx, reg.ID, "credentials/other.png")
	s.Require().NoError(err)
	s.Equal("credentials/A1B2C3.png", ref)
}

func (s *InMemoryStoreSuite) TestListByOwner() {
	owner := domain.UserID(uuid.New())
	older := newRegistration("A1A1A1", models.StatusUnpaid)
	older.OwnerID = owner
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newRegistration("B2B2B2", models.StatusUnpaid)
	newer.OwnerID = owner
	s.Require().NoError(s.store.Insert(s.ctx, older, nil))
	s.Require().NoError(s.store.Insert(s.ctx, newer, nil))
	s.Require().NoError(s.store.Insert(s.ctx, newRegistration("C3C3C3", models.StatusUnpaid), nil))

	list, err := s.store.ListByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("B2B2B2", list[0].Code)
}

func (s *InMemoryStoreSuite) TestLatestFeeSetting() {
	_, err := s.store.LatestFeeSetting(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	now := time.Now()
	s.Require().NoError(s.store.InsertFeeSetting(s.ctx, &models.FeeSetting{ID: uuid.NewString(), AmountPerPerson: models.Pesos(40), Enabled: true, EnabledAt: now.Add(-time.Hour)}))
	s.Require().NoError(s.store.InsertFeeSetting(s.ctx, &models.FeeSetting{ID: uuid.NewString(), AmountPerPerson: models.Pesos(50), Enabled: true, EnabledAt: now}))

	latest, err := s.store.LatestFeeSetting(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Pesos(50), latest.AmountPerPerson)
}
