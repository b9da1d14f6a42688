// Package service admits groups at the gate. A registration is admitted at
// most once per venue day; walk-ins are registered and admitted together.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entrypass/internal/checkin/metrics"
	"entrypass/internal/checkin/models"
	"entrypass/internal/events"
	paymodels "entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
	regservice "entrypass/internal/registration/service"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/tx"
	"entrypass/pkg/requestcontext"
)

const walkInChannel = "walk_in"

// Registrations is the part of the registration service the gate uses.
type Registrations interface {
	FindByCode(ctx context.Context, code string) (*regmodels.Registration, error)
	Prepare(ctx context.Context, actor domain.Actor, req regservice.RegisterRequest, walkIn bool) (*regservice.Draft, error)
	Persist(ctx context.Context, draft *regservice.Draft, channel string) error
	IssueCredential(ctx context.Context, reg *regmodels.Registration) string
}

// Store is the check-in log. Record reports false when the registration was
// already admitted on that visit date.
type Store interface {
	Record(ctx context.Context, entry *models.Entry) (bool, error)
	ListByRegistration(ctx context.Context, id domain.RegistrationID) ([]*models.Entry, error)
}

type Outbox interface {
	Append(ctx context.Context, event events.Event) error
}

type Service struct {
	registrations Registrations
	store         Store
	outbox        Outbox
	tx            tx.Runner
	loc           *time.Location
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
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

// New builds the gate service. loc is the venue time zone that decides the
// visit date.
func New(registrations Registrations, store Store, outbox Outbox, runner tx.Runner, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		registrations: registrations,
		store:         store,
		outbox:        outbox,
		tx:            runner,
		loc:           loc,
		logger:        slog.Default(),
		tracer:        otel.Tracer("entrypass/checkin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is an admitted registration and its log entry.
type Result struct {
	Registration *regmodels.Registration
	Entry        *models.Entry
}

// WalkInResult also carries the roster and any credential failure; the group
// is admitted either way.
type WalkInResult struct {
	Registration    *regmodels.Registration
	Members         []regmodels.Member
	Entry           *models.Entry
	CredentialError string
}

// CheckIn admits a registration for today's visit date.
func (s *Service) CheckIn(ctx context.Context, actor domain.Actor, code, device string) (*Result, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "checkin.CheckIn")
	defer span.End()
	start := time.Now()

	var result *Result
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		entry, err := s.admit(ctx, actor, reg, device, false)
		if err != nil {
			return err
		}
		result = &Result{Registration: reg, Entry: entry}
		return nil
	})
	s.observe(err, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check-in refused")
		s.logger.WarnContext(ctx, "check-in refused",
			"code", code,
			"error", err,
			"staff_id", actor.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("code", result.Registration.Code), attribute.String("visit_date", result.Entry.VisitDate))
	return result, nil
}

// WalkIn registers a group at the gate and admits it in the same
// transaction. Fees are collected at the counter, so the registration is
// created PAID (or NOT_REQUIRED when no fee is collected).
func (s *Service) WalkIn(ctx context.Context, actor domain.Actor, req regservice.RegisterRequest, device string) (*WalkInResult, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "checkin.WalkIn")
	defer span.End()
	start := time.Now()

	draft, err := s.registrations.Prepare(ctx, actor, req, true)
	if err != nil {
		return nil, err
	}

	var entry *models.Entry
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.registrations.Persist(ctx, draft, walkInChannel); err != nil {
			return err
		}
		if err := s.appendCashPaid(ctx, draft.Registration); err != nil {
			return err
		}
		entry, err = s.admit(ctx, actor, draft.Registration, device, true)
		return err
	})
	s.observe(err, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "walk-in failed")
		return nil, err
	}

	reg := draft.Registration
	if s.metrics != nil {
		s.metrics.IncWalkIn(string(reg.PaymentStatus))
	}
	span.SetAttributes(attribute.String("code", reg.Code))

	result := &WalkInResult{Registration: reg, Members: draft.Members, Entry: entry}
	result.CredentialError = s.registrations.IssueCredential(ctx, reg)
	return result, nil
}

// History lists a registration's admissions, newest first, to its owner or staff.
func (s *Service) History(ctx context.Context, actor domain.Actor, code string) ([]*models.Entry, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	reg, err := s.registrations.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(reg.OwnerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	entries, err := s.store.ListByRegistration(ctx, reg.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list check-ins")
	}
	return entries, nil
}

// admit checks the payment state and writes the day's entry with its event.
// The insert is the linearization point between concurrent scans.
func (s *Service) admit(ctx context.Context, actor domain.Actor, reg *regmodels.Registration, device string, walkIn bool) (*models.Entry, error) {
	if !reg.PaymentStatus.AdmitsEntry() {
		return nil, dErrors.New(dErrors.CodePaymentRequired,
			fmt.Sprintf("payment required before entry (status %s)", reg.PaymentStatus))
	}

	now := requestcontext.Now(ctx)
	entry := &models.Entry{
		ID:             domain.NewCheckInID(),
		RegistrationID: reg.ID,
		Code:           reg.Code,
		StaffID:        actor.UserID,
		VisitDate:      models.VisitDate(now, s.loc),
		Device:         device,
		CreatedAt:      now,
	}
	written, err := s.store.Record(ctx, entry)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record check-in")
	}
	if !written {
		return nil, dErrors.New(dErrors.CodeConflict, "already checked in today")
	}

	event, err := events.New(events.CheckInRecorded, reg.Code, events.CheckInRecordedPayload{
		Code:      reg.Code,
		StaffID:   actor.UserID.String(),
		VisitDate: entry.VisitDate,
		WalkIn:    walkIn,
		At:        now,
	}, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build check-in event")
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record check-in event")
	}

	s.logger.InfoContext(ctx, "group checked in",
		"code", reg.Code,
		"visit_date", entry.VisitDate,
		"group_size", reg.GroupSize,
		"walk_in", walkIn,
		"device", device,
		"staff_id", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return entry, nil
}

func (s *Service) appendCashPaid(ctx context.Context, reg *regmodels.Registration) error {
	if reg.PaymentStatus != regmodels.StatusPaid || reg.PaidAt == nil {
		return nil
	}
	event, err := events.New(events.PaymentPaid, reg.Code, events.PaymentPaidPayload{
		Code:   reg.Code,
		Source: string(paymodels.SourceCashDesk),
		Amount: reg.TotalFee.String(),
		PaidAt: *reg.PaidAt,
	}, *reg.PaidAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build payment event")
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment event")
	}
	return nil
}

func (s *Service) observe(err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCheckIn(time.Since(start).Seconds())
	if err == nil {
		s.metrics.IncCheckIn("admitted")
		return
	}
	s.metrics.IncCheckIn(string(dErrors.CodeOf(err)))
}
