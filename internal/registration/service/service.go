// Package service runs the registration flow: roster validation, fee quote,
// code allocation and insert in one transaction, then the best-effort
// checkout and credential steps after commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entrypass/internal/events"
	paymodels "entrypass/internal/payment/models"
	"entrypass/internal/registration/code"
	"entrypass/internal/registration/fee"
	"entrypass/internal/registration/metrics"
	"entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/sentinel"
	"entrypass/pkg/platform/tx"
	"entrypass/pkg/requestcontext"
)

const insertAttempts = 3

// Store is the registration persistence the flow needs.
type Store interface {
	Exists(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, reg *models.Registration, members []models.Member) error
	FindByCode(ctx context.Context, code string) (*models.Registration, error)
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.Registration, error)
	Members(ctx context.Context, id domain.RegistrationID) ([]models.Member, error)
	InsertFeeSetting(ctx context.Context, setting *models.FeeSetting) error
	LatestFeeSetting(ctx context.Context) (*models.FeeSetting, error)
}

// Checkouts opens the online payment for a committed registration.
type Checkouts interface {
	OpenCheckoutFor(ctx context.Context, reg *models.Registration) (*paymodels.Record, error)
}

// Credentials issues and serves the QR credential.
type Credentials interface {
	Issue(ctx context.Context, reg *models.Registration) (string, error)
	Open(ctx context.Context, reg *models.Registration) ([]byte, error)
}

type Outbox interface {
	Append(ctx context.Context, event events.Event) error
}

type Service struct {
	store       Store
	codes       *code.Generator
	fees        *fee.Calculator
	checkouts   Checkouts
	credentials Credentials
	outbox      Outbox
	tx          tx.Runner
	roster      models.RosterPolicy
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRosterPolicy(policy models.RosterPolicy) Option {
	return func(s *Service) {
		s.roster = policy
	}
}

// WithCodeGenerator replaces the default crypto/rand generator.
func WithCodeGenerator(g *code.Generator) Option {
	return func(s *Service) {
		s.codes = g
	}
}

func New(
	store Store,
	fees *fee.Calculator,
	checkouts Checkouts,
	credentials Credentials,
	outbox Outbox,
	runner tx.Runner,
	opts ...Option,
) *Service {
	s := &Service{
		store:       store,
		codes:       code.New(store),
		fees:        fees,
		checkouts:   checkouts,
		credentials: credentials,
		outbox:      outbox,
		tx:          runner,
		roster:      models.RosterPolicy{MaxGroupSize: 50, DomesticCountry: "Philippines"},
		logger:      slog.Default(),
		tracer:      otel.Tracer("entrypass/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest is a group registration as submitted.
type RegisterRequest struct {
	Members       []models.MemberInput `json:"members"`
	PaymentMethod string               `json:"payment_method"`
}

// Draft is a validated registration that has no code yet.
type Draft struct {
	Registration *models.Registration
	Members      []models.Member
}

// Result is the outcome of Register. CheckoutError and CredentialError carry
// failures of the best-effort steps; the registration itself exists.
type Result struct {
	Registration    *models.Registration
	Members         []models.Member
	CheckoutURL     string
	CheckoutError   string
	CredentialError string
}

// Register creates a registration for the actor's group.
func (s *Service) Register(ctx context.Context, actor domain.Actor, req RegisterRequest) (*Result, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "registration.Register")
	defer span.End()
	start := time.Now()

	draft, err := s.Prepare(ctx, actor, req, false)
	if err != nil {
		return nil, err
	}
	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.Persist(ctx, draft, "self_service")
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist registration")
		return nil, err
	}

	reg := draft.Registration
	span.SetAttributes(attribute.String("code", reg.Code), attribute.String("payment_method", string(reg.PaymentMethod)))
	result := &Result{Registration: reg, Members: draft.Members}

	if reg.PaymentMethod == models.PaymentOnline {
		rec, err := s.checkouts.OpenCheckoutFor(ctx, reg)
		if err != nil {
			s.logger.WarnContext(ctx, "checkout could not be opened; registration stays pending",
				"code", reg.Code,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			result.CheckoutError = dErrors.MessageOf(err)
		} else {
			result.CheckoutURL = rec.CheckoutURL
		}
	}

	if msg := s.IssueCredential(ctx, reg); msg != "" {
		result.CredentialError = msg
	}

	if s.metrics != nil {
		s.metrics.ObserveRegister(time.Since(start).Seconds())
	}
	return result, nil
}

// Prepare validates the roster and fixes the fee. Walk-ins settle at the
// counter: they are created PAID, or NOT_REQUIRED when no fee is collected.
func (s *Service) Prepare(ctx context.Context, actor domain.Actor, req RegisterRequest, walkIn bool) (*Draft, error) {
	members, err := models.NewRoster(req.Members, s.roster)
	if err != nil {
		return nil, err
	}

	requested := models.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod)))
	if requested != "" {
		if _, err := models.ParsePaymentMethod(string(requested)); err != nil {
			return nil, err
		}
	}
	if walkIn {
		if requested == models.PaymentOnline {
			return nil, dErrors.New(dErrors.CodeValidation, "walk-in registrations pay at the counter")
		}
		requested = models.PaymentCash
	}

	active, err := s.fees.ActiveFee(ctx)
	if err != nil {
		return nil, err
	}
	quote, err := s.fees.Quote(active, len(members), requested)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	reg := &models.Registration{
		ID:            domain.NewRegistrationID(),
		OwnerID:       actor.UserID,
		GroupSize:     len(members),
		PerPersonFee:  quote.PerPerson,
		TotalFee:      quote.Total,
		PaymentMethod: quote.Method,
		PaymentStatus: quote.Status,
		CreatedAt:     now,
	}
	if walkIn && reg.PaymentMethod == models.PaymentCash {
		reg.PaymentStatus = models.StatusPaid
		reg.PaidAt = &now
	}
	return &Draft{Registration: reg, Members: members}, nil
}

// Persist allocates a code and inserts the draft with its outbox event. It
// must run inside a transaction; a code lost to a concurrent insert is
// redrawn a bounded number of times.
func (s *Service) Persist(ctx context.Context, draft *Draft, channel string) error {
	reg := draft.Registration
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		c, err := s.codes.Generate(ctx)
		if err != nil {
			return err
		}
		reg.Code = c
		err = s.store.Insert(ctx, reg, draft.Members)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registration")
		}
		if s.metrics != nil {
			s.metrics.IncCodeCollision()
		}
		s.logger.WarnContext(ctx, "code collision on insert, redrawing",
			"attempt", attempt,
			"request_id", requestcontext.RequestID(ctx),
		)
		if attempt == insertAttempts {
			return code.ErrExhausted
		}
	}
	for i := range draft.Members {
		draft.Members[i].RegistrationID = reg.ID
	}

	event, err := events.New(events.RegistrationCreated, reg.Code, events.RegistrationCreatedPayload{
		Code:          reg.Code,
		OwnerID:       reg.OwnerID.String(),
		GroupSize:     reg.GroupSize,
		TotalFee:      reg.TotalFee.String(),
		PaymentMethod: string(reg.PaymentMethod),
		PaymentStatus: string(reg.PaymentStatus),
		CreatedAt:     reg.CreatedAt,
	}, reg.CreatedAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build registration event")
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record registration event")
	}

	if s.metrics != nil {
		s.metrics.IncCreated(string(reg.PaymentMethod), channel)
	}
	s.logger.InfoContext(ctx, "registration created",
		"code", reg.Code,
		"group_size", reg.GroupSize,
		"payment_method", reg.PaymentMethod,
		"payment_status", reg.PaymentStatus,
		"channel", channel,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// IssueCredential issues best-effort after commit and returns the failure
// message, if any. The credential is issued lazily on first fetch otherwise.
func (s *Service) IssueCredential(ctx context.Context, reg *models.Registration) string {
	if _, err := s.credentials.Issue(ctx, reg); err != nil {
		if s.metrics != nil {
			s.metrics.IncCredentialFailure()
		}
		s.logger.WarnContext(ctx, "credential issuance failed; will issue on first fetch",
			"code", reg.Code,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.MessageOf(err)
	}
	return ""
}

// Details is a registration with its roster.
type Details struct {
	Registration *models.Registration
	Members      []models.Member
}

// Get returns a registration to its owner or to staff.
func (s *Service) Get(ctx context.Context, actor domain.Actor, code string) (*Details, error) {
	reg, err := s.authorizedRegistration(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Members(ctx, reg.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group members")
	}
	return &Details{Registration: reg, Members: members}, nil
}

// ListMine returns the actor's registrations, newest first.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor) ([]*models.Registration, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	regs, err := s.store.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return regs, nil
}

// Credential returns the QR image, issuing it if best-effort issuance failed.
func (s *Service) Credential(ctx context.Context, actor domain.Actor, code string) ([]byte, error) {
	reg, err := s.authorizedRegistration(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	return s.credentials.Open(ctx, reg)
}

// ActiveFee reports the fee currently in force.
func (s *Service) ActiveFee(ctx context.Context) (fee.Active, error) {
	return s.fees.ActiveFee(ctx)
}

// SetFee appends a fee setting; earlier rows stay as history.
func (s *Service) SetFee(ctx context.Context, actor domain.Actor, amount models.Amount, enabled bool) (fee.Active, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return fee.Active{}, err
	}
	if !actor.IsAdmin() {
		return fee.Active{}, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	if amount < 0 {
		return fee.Active{}, dErrors.New(dErrors.CodeValidation, "amount_per_person must not be negative")
	}
	if enabled && amount == 0 {
		return fee.Active{}, dErrors.New(dErrors.CodeValidation, "an enabled fee needs a positive amount")
	}

	now := requestcontext.Now(ctx)
	setting := &models.FeeSetting{
		ID:              uuid.NewString(),
		AmountPerPerson: amount,
		Enabled:         enabled,
		EnabledAt:       now,
		UpdatedBy:       actor.UserID,
		CreatedAt:       now,
	}
	if err := s.store.InsertFeeSetting(ctx, setting); err != nil {
		return fee.Active{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save fee setting")
	}
	s.logger.InfoContext(ctx, "fee setting changed",
		"amount_per_person", amount.String(),
		"enabled", enabled,
		"admin_id", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.fees.ActiveFee(ctx)
}

// FindByCode loads a registration with no access check, for other services.
func (s *Service) FindByCode(ctx context.Context, code string) (*models.Registration, error) {
	reg, err := s.store.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

func (s *Service) authorizedRegistration(ctx context.Context, actor domain.Actor, code string) (*models.Registration, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	reg, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(reg.OwnerID) {
		// strangers get the same answer as for an unknown code
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	return reg, nil
}
