package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"entrypass/internal/credential"
	"entrypass/internal/credential/blob"
	"entrypass/internal/events"
	"entrypass/internal/events/outbox"
	paymodels "entrypass/internal/payment/models"
	"entrypass/internal/registration/code"
	"entrypass/internal/registration/fee"
	"entrypass/internal/registration/models"
	"entrypass/internal/registration/store"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/tx"
	"entrypass/pkg/requestcontext"
)

type fakeCheckouts struct {
	err   error
	calls int
}

func (f *fakeCheckouts) OpenCheckoutFor(_ context.Context, reg *models.Registration) (*paymodels.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &paymodels.Record{Code: reg.Code, CheckoutRef: "link_" + reg.Code, CheckoutURL: "https://pm.link/" + reg.Code}, nil
}

// flakyBlobs fails every call until healed.
type flakyBlobs struct {
	*blob.InMemory
	down bool
}

func (f *flakyBlobs) Put(ctx context.Context, key string, data []byte) error {
	if f.down {
		return errors.New("connection refused")
	}
	return f.InMemory.Put(ctx, key, data)
}

// blindLookup never reports a code as taken, so collisions surface at insert.
type blindLookup struct{}

func (blindLookup) Exists(context.Context, string) (bool, error) { return false, nil }

type RegistrationServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemory
	outbox    *outbox.InMemory
	checkouts *fakeCheckouts
	blobs     *flakyBlobs
	service   *Service
	visitor   domain.Actor
	staff     domain.Actor
	admin     domain.Actor
}

func TestRegistrationServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistrationServiceSuite))
}

func (s *RegistrationServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.outbox = outbox.NewInMemory()
	s.checkouts = &fakeCheckouts{}
	s.blobs = &flakyBlobs{InMemory: blob.NewInMemory()}
	s.visitor = domain.Actor{UserID: domain.UserID(uuid.New()), Role: domain.RoleVisitor}
	s.staff = domain.Actor{UserID: domain.UserID(uuid.New()), Role: domain.RoleStaff}
	s.admin = domain.Actor{UserID: domain.UserID(uuid.New()), Role: domain.RoleAdmin}
	s.service = s.newService()
}

func (s *RegistrationServiceSuite) newService(opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := credential.NewIssuer(s.blobs, s.store, credential.WithLogger(logger), credential.WithTimeout(time.Second))
	opts = append([]Option{
		WithLogger(logger),
		WithRosterPolicy(models.RosterPolicy{MaxGroupSize: 4, DomesticCountry: "Philippines"}),
	}, opts...)
	return New(s.store, fee.NewCalculator(s.store, models.Pesos(100)), s.checkouts, issuer, s.outbox, tx.NewInMemoryRunner(), opts...)
}

func (s *RegistrationServiceSuite) setFee(amount models.Amount, enabled bool) {
	_, err := s.service.SetFee(s.ctx, s.admin, amount, enabled)
	s.Require().NoError(err)
}

func group(n int) []models.MemberInput {
	out := make([]models.MemberInput, n)
	for i := range out {
		out[i] = models.MemberInput{Name: "Visitor", Age: 20 + i, Sex: "female", Municipality: "El Nido", Province: "Palawan"}
	}
	return out
}

func (s *RegistrationServiceSuite) TestFeeDisabledIsNotRequired() {
	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(3), PaymentMethod: "ONLINE"})
	s.Require().NoError(err)

	reg := result.Registration
	s.True(code.Valid(reg.Code))
	s.Equal(models.PaymentNotRequired, reg.PaymentMethod)
	s.Equal(models.StatusNotRequired, reg.PaymentStatus)
	s.Equal(models.Amount(0), reg.TotalFee)
	s.Equal(credential.Key(reg.Code), reg.CredentialRef)
	s.Zero(s.checkouts.calls)
	s.Empty(result.CredentialError)
}

func (s *RegistrationServiceSuite) TestUnknownMethodRejectedWhileFeeDisabled() {
	_, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2), PaymentMethod: "BITCOIN"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2)})
	s.Require().NoError(err)
	s.Equal(models.PaymentNotRequired, result.Registration.PaymentMethod)
}

func (s *RegistrationServiceSuite) TestCashRegistration() {
	s.setFee(models.Pesos(50), true)

	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(3), PaymentMethod: "cash"})
	s.Require().NoError(err)
	reg := result.Registration
	s.Equal(models.PaymentCash, reg.PaymentMethod)
	s.Equal(models.StatusUnpaid, reg.PaymentStatus)
	s.Equal(models.Pesos(50), reg.PerPersonFee)
	s.Equal(models.Pesos(150), reg.TotalFee)
	s.Nil(reg.PaidAt)

	created := s.outbox.All(events.RegistrationCreated)
	s.Require().Len(created, 1)
	s.Equal(reg.Code, created[0].AggregateID)

	stored, err := s.store.FindByCode(s.ctx, reg.Code)
	s.Require().NoError(err)
	s.Equal(reg.TotalFee, stored.TotalFee)
	members, err := s.store.Members(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(members, 3)
	s.Equal("Philippines", members[0].Country)
}

func (s *RegistrationServiceSuite) TestOnlineBelowMinimumRejected() {
	s.setFee(models.Pesos(40), true)

	_, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2), PaymentMethod: "ONLINE"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(dErrors.MessageOf(err), "100.00")
	s.Empty(s.outbox.All(events.RegistrationCreated))
}

func (s *RegistrationServiceSuite) TestOnlineOpensCheckout() {
	s.setFee(models.Pesos(50), true)

	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2), PaymentMethod: "ONLINE"})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, result.Registration.PaymentStatus)
	s.Equal("https://pm.link/"+result.Registration.Code, result.CheckoutURL)
	s.Empty(result.CheckoutError)
	s.Equal(1, s.checkouts.calls)
}

func (s *RegistrationServiceSuite) TestCheckoutFailureKeepsRegistration() {
	s.setFee(models.Pesos(50), true)
	s.checkouts.err = dErrors.New(dErrors.CodeUpstream, "failed to open checkout")

	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2), PaymentMethod: "ONLINE"})
	s.Require().NoError(err)
	s.Equal("failed to open checkout", result.CheckoutError)
	s.Empty(result.CheckoutURL)

	stored, err := s.store.FindByCode(s.ctx, result.Registration.Code)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.PaymentStatus)
}

func (s *RegistrationServiceSuite) TestCredentialFailureIsIssuedOnFetch() {
	s.blobs.down = true
	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(1)})
	s.Require().NoError(err)
	s.NotEmpty(result.CredentialError)
	s.Empty(result.Registration.CredentialRef)

	s.blobs.down = false
	png, err := s.service.Credential(s.ctx, s.visitor, result.Registration.Code)
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(png, []byte("\x89PNG")))

	stored, err := s.store.FindByCode(s.ctx, result.Registration.Code)
	s.Require().NoError(err)
	s.Equal(credential.Key(stored.Code), stored.CredentialRef)
}

func (s *RegistrationServiceSuite) TestCodeCollisionRedraws() {
	taken := &models.Registration{
		ID: domain.NewRegistrationID(), Code: "A0A0A0", OwnerID: s.staff.UserID, GroupSize: 1,
		PaymentMethod: models.PaymentNotRequired, PaymentStatus: models.StatusNotRequired,
	}
	s.Require().NoError(s.store.Insert(s.ctx, taken, nil))

	// zero bytes draw A0A0A0, ones draw B1B1B1
	random := bytes.NewReader(append(make([]byte, 6), bytes.Repeat([]byte{1}, 6)...))
	svc := s.newService(WithCodeGenerator(code.New(blindLookup{}, code.WithRandom(random))))

	result, err := svc.Register(s.ctx, s.visitor, RegisterRequest{Members: group(1)})
	s.Require().NoError(err)
	s.Equal("B1B1B1", result.Registration.Code)
}

func (s *RegistrationServiceSuite) TestCodeCollisionExhaustion() {
	taken := &models.Registration{
		ID: domain.NewRegistrationID(), Code: "A0A0A0", OwnerID: s.staff.UserID, GroupSize: 1,
		PaymentMethod: models.PaymentNotRequired, PaymentStatus: models.StatusNotRequired,
	}
	s.Require().NoError(s.store.Insert(s.ctx, taken, nil))

	random := bytes.NewReader(make([]byte, 6*insertAttempts))
	svc := s.newService(WithCodeGenerator(code.New(blindLookup{}, code.WithRandom(random))))

	_, err := svc.Register(s.ctx, s.visitor, RegisterRequest{Members: group(1)})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("code space exhausted", dErrors.MessageOf(err))
}

func (s *RegistrationServiceSuite) TestRosterValidation() {
	_, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(5)})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "above the maximum group size")

	_, err = s.service.Register(s.ctx, domain.Actor{}, RegisterRequest{Members: group(1)})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *RegistrationServiceSuite) TestTotalFixedAtRegistration() {
	s.setFee(models.Pesos(50), true)
	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2), PaymentMethod: "CASH"})
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC))
	_, err = s.service.SetFee(later, s.admin, models.Pesos(80), true)
	s.Require().NoError(err)

	details, err := s.service.Get(s.ctx, s.visitor, result.Registration.Code)
	s.Require().NoError(err)
	s.Equal(models.Pesos(100), details.Registration.TotalFee)
}

func (s *RegistrationServiceSuite) TestAccess() {
	result, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(2)})
	s.Require().NoError(err)
	c := result.Registration.Code

	details, err := s.service.Get(s.ctx, s.staff, c)
	s.Require().NoError(err)
	s.Len(details.Members, 2)

	stranger := domain.Actor{UserID: domain.UserID(uuid.New()), Role: domain.RoleVisitor}
	_, err = s.service.Get(s.ctx, stranger, c)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Credential(s.ctx, stranger, c)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, s.visitor, "Z9Z9Z9")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistrationServiceSuite) TestListMine() {
	first, err := s.service.Register(s.ctx, s.visitor, RegisterRequest{Members: group(1)})
	s.Require().NoError(err)
	later := requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Hour))
	second, err := s.service.Register(later, s.visitor, RegisterRequest{Members: group(1)})
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, s.staff, RegisterRequest{Members: group(1)})
	s.Require().NoError(err)

	regs, err := s.service.ListMine(s.ctx, s.visitor)
	s.Require().NoError(err)
	s.Require().Len(regs, 2)
	s.Equal(second.Registration.Code, regs[0].Code)
	s.Equal(first.Registration.Code, regs[1].Code)
}

func (s *RegistrationServiceSuite) TestSetFee() {
	_, err := s.service.SetFee(s.ctx, s.staff, models.Pesos(50), true)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.SetFee(s.ctx, s.admin, 0, true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	active, err := s.service.SetFee(s.ctx, s.admin, models.Pesos(75), true)
	s.Require().NoError(err)
	s.Equal(fee.Active{Amount: models.Pesos(75), Enabled: true}, active)

	later := requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Minute))
	active, err = s.service.SetFee(later, s.admin, models.Pesos(75), false)
	s.Require().NoError(err)
	s.False(active.Enabled)

	current, err := s.service.ActiveFee(s.ctx)
	s.Require().NoError(err)
	s.False(current.Enabled)
}

func (s *RegistrationServiceSuite) TestWalkInDraft() {
	s.setFee(models.Pesos(50), true)

	_, err := s.service.Prepare(s.ctx, s.staff, RegisterRequest{Members: group(2), PaymentMethod: "ONLINE"}, true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	draft, err := s.service.Prepare(s.ctx, s.staff, RegisterRequest{Members: group(2)}, true)
	s.Require().NoError(err)
	s.Equal(models.PaymentCash, draft.Registration.PaymentMethod)
	s.Equal(models.StatusPaid, draft.Registration.PaymentStatus)
	s.NotNil(draft.Registration.PaidAt)
	s.Equal(models.Pesos(100), draft.Registration.TotalFee)
}
