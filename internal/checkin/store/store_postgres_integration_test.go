//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"entrypass/internal/checkin/models"
	"entrypass/internal/checkin/store"
	regmodels "entrypass/internal/registration/models"
	regstore "entrypass/internal/registration/store"
	"entrypass/pkg/domain"
	"entrypass/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	reg      *regmodels.Registration
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "checkin_logs", "payment_records", "group_members", "registrations", "fee_settings", "outbox")
	s.Require().NoError(err)

	s.reg = &regmodels.Registration{
		ID:            domain.NewRegistrationID(),
		Code:          "K4P1Z9",
		OwnerID:       domain.UserID(uuid.New()),
		GroupSize:     1,
		PaymentMethod: regmodels.PaymentNotRequired,
		PaymentStatus: regmodels.StatusNotRequired,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	members := []regmodels.Member{{ID: uuid.New(), Name: "Ana", Age: 31, Sex: regmodels.SexFemale, Country: "Philippines"}}
	s.Require().NoError(regstore.NewPostgres(s.postgres.DB).Insert(ctx, s.reg, members))
}

func (s *PostgresStoreSuite) entry(date string) *models.Entry {
	return &models.Entry{
		ID:             domain.NewCheckInID(),
		RegistrationID: s.reg.ID,
		Code:           s.reg.Code,
		StaffID:        domain.UserID(uuid.New()),
		VisitDate:      date,
		Device:         "Chrome on Android",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestRecordAndList() {
	ctx := context.Background()

	ok, err := s.store.Record(ctx, s.entry("2026-05-01"))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Record(ctx, s.entry("2026-05-01"))
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.store.Record(ctx, s.entry("2026-05-03"))
	s.Require().NoError(err)
	s.True(ok)

	list, err := s.store.ListByRegistration(ctx, s.reg.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("2026-05-03", list[0].VisitDate)
	s.Equal("2026-05-01", list[1].VisitDate)
	s.Equal("Chrome on Android", list[0].Device)
	s.Equal(s.reg.Code, list[0].Code)
}

func (s *PostgresStoreSuite) TestConcurrentCheckInsAdmitOne() {
	ctx := context.Background()

	var wg sync.WaitGroup
	var written atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.Record(ctx, s.entry("2026-05-01"))
			s.NoError(err)
			if ok {
				written.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), written.Load())
}
