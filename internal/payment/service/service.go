// Package service is the reconciliation engine. Webhook deliveries and staff
// polls both funnel into ApplyPaymentFact, which moves a registration to PAID
// at most once no matter how the two writers interleave.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entrypass/internal/events"
	"entrypass/internal/payment/gateway"
	"entrypass/internal/payment/lock"
	"entrypass/internal/payment/metrics"
	paymodels "entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/sentinel"
	"entrypass/pkg/platform/tx"
	"entrypass/pkg/requestcontext"
)

const defaultLockTTL = 15 * time.Second

// Registrations is the slice of the registration store reconciliation needs.
type Registrations interface {
	FindByCode(ctx context.Context, code string) (*regmodels.Registration, error)
	TransitionPaymentStatus(ctx context.Context, id domain.RegistrationID, from, to regmodels.PaymentStatus, at time.Time) (bool, error)
}

// Records persists checkout attempts.
type Records interface {
	Upsert(ctx context.Context, rec *paymodels.Record) (*paymodels.Record, error)
	LatestByCode(ctx context.Context, code string) (*paymodels.Record, error)
	ListByCode(ctx context.Context, code string) ([]*paymodels.Record, error)
}

type Outbox interface {
	Append(ctx context.Context, event events.Event) error
}

type WebhookParser interface {
	Parse(body []byte, signature string) (*gateway.Event, error)
}

type Service struct {
	registrations Registrations
	records       Records
	outbox        Outbox
	gateway       gateway.Gateway
	webhooks      WebhookParser
	locker        lock.Locker
	tx            tx.Runner
	lockTTL       time.Duration
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

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func New(
	registrations Registrations,
	records Records,
	outbox Outbox,
	gw gateway.Gateway,
	webhooks WebhookParser,
	locker lock.Locker,
	runner tx.Runner,
	opts ...Option,
) *Service {
	s := &Service{
		registrations: registrations,
		records:       records,
		outbox:        outbox,
		gateway:       gw,
		webhooks:      webhooks,
		locker:        locker,
		tx:            runner,
		lockTTL:       defaultLockTTL,
		logger:        slog.Default(),
		tracer:        otel.Tracer("entrypass/payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenCheckoutFor opens a checkout link for a freshly committed ONLINE
// registration and records the attempt. Each call is a new attempt.
func (s *Service) OpenCheckoutFor(ctx context.Context, reg *regmodels.Registration) (*paymodels.Record, error) {
	ctx, span := s.tracer.Start(ctx, "payment.OpenCheckout", trace.WithAttributes(attribute.String("code", reg.Code)))
	defer span.End()

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Code:        reg.Code,
		Amount:      reg.TotalFee,
		Description: describe(reg),
	})
	if err != nil {
		s.recordGatewayFailure(ctx, span, "create_checkout", err)
		s.incCheckout("failed")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	status := checkout.Status
	if status == "" {
		status = paymodels.ProviderUnpaid
	}
	rec, err := s.records.Upsert(ctx, &paymodels.Record{
		ID:             domain.NewPaymentID(),
		RegistrationID: reg.ID,
		Code:           reg.Code,
		CheckoutRef:    checkout.Ref,
		CheckoutURL:    checkout.URL,
		ProviderStatus: status,
		Amount:         reg.TotalFee,
		LastSource:     paymodels.SourceCheckout,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		s.incCheckout("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record checkout")
	}
	s.incCheckout("opened")
	return rec, nil
}

// OpenCheckout lets the owner of a PENDING online registration start another
// payment attempt.
func (s *Service) OpenCheckout(ctx context.Context, actor domain.Actor, code string) (*paymodels.Record, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	reg, err := s.findRegistration(ctx, code)
	if err != nil {
		return nil, err
	}
	if !reg.IsOwnedBy(actor.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the registrant can open a checkout")
	}
	if reg.PaymentMethod != regmodels.PaymentOnline {
		return nil, dErrors.New(dErrors.CodeValidation, "checkout is only available for online payment")
	}
	if reg.PaymentStatus != regmodels.StatusPending {
		return nil, dErrors.New(dErrors.CodeConflict, "registration is already paid")
	}
	return s.OpenCheckoutFor(ctx, reg)
}

// Payments lists the checkout attempts of a registration, newest first.
func (s *Service) Payments(ctx context.Context, actor domain.Actor, code string) ([]*paymodels.Record, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return nil, err
	}
	reg, err := s.findRegistration(ctx, code)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(reg.OwnerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to view this registration")
	}
	records, err := s.records.ListByCode(ctx, reg.Code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}
	return records, nil
}

// Result is the registration's payment state after a fact was applied.
type Result struct {
	Outcome        paymodels.Outcome
	Code           string
	PaymentStatus  regmodels.PaymentStatus
	ProviderStatus paymodels.ProviderStatus
}

// ApplyPaymentFact is the single write path for webhook and poll. Concurrent
// calls for one code are refused with a conflict rather than interleaved.
func (s *Service) ApplyPaymentFact(ctx context.Context, fact paymodels.Fact) (*Result, error) {
	fact.Code = strings.ToUpper(strings.TrimSpace(fact.Code))
	ctx, span := s.tracer.Start(ctx, "payment.ApplyPaymentFact", trace.WithAttributes(
		attribute.String("code", fact.Code),
		attribute.String("source", string(fact.Source)),
		attribute.String("provider_status", string(fact.ProviderStatus)),
	))
	defer span.End()
	start := time.Now()

	release, err := s.locker.Acquire(ctx, fact.Code, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, dErrors.New(dErrors.CodeConflict, "reconciliation in progress")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire reconciliation lock")
	}
	defer release()

	var result *Result
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var txErr error
		result, txErr = s.apply(ctx, fact)
		return txErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply payment fact")
		return nil, err
	}

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	if s.metrics != nil {
		s.metrics.IncReconciliation(string(fact.Source), string(result.Outcome))
		s.metrics.ObserveReconcile(time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "payment fact applied",
		"code", fact.Code,
		"source", fact.Source,
		"provider_status", fact.ProviderStatus,
		"outcome", result.Outcome,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) apply(ctx context.Context, fact paymodels.Fact) (*Result, error) {
	reg, err := s.findRegistration(ctx, fact.Code)
	if err != nil {
		return nil, err
	}
	if reg.PaymentMethod != regmodels.PaymentOnline {
		return nil, dErrors.New(dErrors.CodeValidation, "registration is not paid online")
	}

	result := &Result{
		Outcome:        paymodels.OutcomeRecorded,
		Code:           reg.Code,
		PaymentStatus:  reg.PaymentStatus,
		ProviderStatus: fact.ProviderStatus,
	}
	// a settled registration only accepts further paid facts into its journal
	if reg.PaymentStatus == regmodels.StatusPaid && !fact.ProviderStatus.IsPaid() {
		s.logger.InfoContext(ctx, "ignoring payment fact after settlement",
			"code", reg.Code,
			"source", fact.Source,
			"provider_status", fact.ProviderStatus,
		)
		return result, nil
	}

	now := requestcontext.Now(ctx)
	if err := s.recordFact(ctx, reg, fact, now); err != nil {
		return nil, err
	}
	if !fact.ProviderStatus.IsPaid() {
		return result, nil
	}

	if fact.Amount != 0 && fact.Amount != reg.TotalFee {
		s.logger.WarnContext(ctx, "paid amount differs from registration total",
			"code", reg.Code,
			"paid", fact.Amount.String(),
			"total_fee", reg.TotalFee.String(),
		)
	}

	moved, err := s.registrations.TransitionPaymentStatus(ctx, reg.ID, regmodels.StatusPending, regmodels.StatusPaid, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update payment status")
	}
	result.PaymentStatus = regmodels.StatusPaid
	if !moved {
		result.Outcome = paymodels.OutcomeAlreadyPaid
		return result, nil
	}

	if err := s.appendPaid(ctx, reg, string(fact.Source), fact.CheckoutRef, now); err != nil {
		return nil, err
	}
	result.Outcome = paymodels.OutcomeMarkedPaid
	return result, nil
}

// recordFact keeps the payment record in step with the provider. A fact
// without a checkout reference updates the latest attempt; with no attempt on
// file there is nothing to update.
func (s *Service) recordFact(ctx context.Context, reg *regmodels.Registration, fact paymodels.Fact, now time.Time) error {
	ref := fact.CheckoutRef
	if ref == "" {
		latest, err := s.records.LatestByCode(ctx, reg.Code)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.logger.WarnContext(ctx, "payment fact without checkout on file", "code", reg.Code, "source", fact.Source)
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment record")
		}
		ref = latest.CheckoutRef
	}
	_, err := s.records.Upsert(ctx, &paymodels.Record{
		ID:             domain.NewPaymentID(),
		RegistrationID: reg.ID,
		Code:           reg.Code,
		CheckoutRef:    ref,
		ProviderStatus: fact.ProviderStatus,
		Amount:         fact.Amount,
		LastSource:     fact.Source,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}
	return nil
}

// HandleWebhook verifies and applies one provider delivery. Unsupported event
// types come back as gateway.ErrUnsupportedEvent for the caller to acknowledge.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	event, err := s.webhooks.Parse(body, signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrUnsupportedEvent):
			s.incWebhook("ignored")
		case dErrors.HasCode(err, dErrors.CodeUnauthorized):
			s.incWebhook("bad_signature")
			s.logger.WarnContext(ctx, "webhook signature rejected", "request_id", requestcontext.RequestID(ctx))
		default:
			s.incWebhook("malformed")
		}
		return nil, err
	}

	result, err := s.ApplyPaymentFact(ctx, paymodels.Fact{
		Code:           event.Code,
		Source:         paymodels.SourceWebhook,
		CheckoutRef:    event.CheckoutRef,
		ProviderStatus: event.Status,
		Amount:         event.Amount,
	})
	if err != nil {
		s.incWebhook("failed")
		return nil, err
	}
	s.incWebhook("applied")
	return result, nil
}

// Poll asks the gateway for the status of the latest checkout and applies
// the answer. A gateway failure leaves everything untouched.
func (s *Service) Poll(ctx context.Context, actor domain.Actor, code string) (*Result, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "payment.Poll", trace.WithAttributes(attribute.String("code", code)))
	defer span.End()

	reg, err := s.findRegistration(ctx, code)
	if err != nil {
		return nil, err
	}
	if reg.PaymentMethod != regmodels.PaymentOnline {
		return nil, dErrors.New(dErrors.CodeValidation, "registration is not paid online")
	}
	latest, err := s.records.LatestByCode(ctx, reg.Code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no checkout has been opened for this registration")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment record")
	}

	status, err := s.gateway.QueryStatus(ctx, latest.CheckoutRef)
	if err != nil {
		s.recordGatewayFailure(ctx, span, "query_status", err)
		return nil, err
	}

	return s.ApplyPaymentFact(ctx, paymodels.Fact{
		Code:           reg.Code,
		Source:         paymodels.SourcePoll,
		CheckoutRef:    latest.CheckoutRef,
		ProviderStatus: status.Status,
		Amount:         status.Amount,
	})
}

// MarkCashPaid settles a CASH registration at the counter. Marking an already
// paid registration again is a no-op.
func (s *Service) MarkCashPaid(ctx context.Context, actor domain.Actor, code string) (*regmodels.Registration, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}

	var (
		reg    *regmodels.Registration
		marked bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.findRegistration(ctx, code)
		if err != nil {
			return err
		}
		switch reg.PaymentMethod {
		case regmodels.PaymentOnline:
			return dErrors.New(dErrors.CodeValidation, "online registrations are settled through reconciliation")
		case regmodels.PaymentNotRequired:
			return dErrors.New(dErrors.CodeValidation, "registration does not require payment")
		}
		if reg.PaymentStatus == regmodels.StatusPaid {
			return nil
		}

		now := requestcontext.Now(ctx)
		moved, err := s.registrations.TransitionPaymentStatus(ctx, reg.ID, regmodels.StatusUnpaid, regmodels.StatusPaid, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update payment status")
		}
		if !moved {
			// lost a race with another desk; whatever won left it PAID
			return nil
		}
		reg.PaymentStatus = regmodels.StatusPaid
		reg.PaidAt = &now
		marked = true
		return s.appendPaid(ctx, reg, string(paymodels.SourceCashDesk), "", now)
	})
	if err != nil {
		return nil, err
	}
	if reg.PaymentStatus != regmodels.StatusPaid {
		// re-read after a lost race
		if reg, err = s.findRegistration(ctx, code); err != nil {
			return nil, err
		}
	}
	if !marked {
		return reg, nil
	}
	if s.metrics != nil {
		s.metrics.IncCashMarked()
	}
	s.logger.InfoContext(ctx, "cash payment marked",
		"code", reg.Code,
		"staff_id", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return reg, nil
}

func (s *Service) appendPaid(ctx context.Context, reg *regmodels.Registration, source, checkoutRef string, at time.Time) error {
	event, err := events.New(events.PaymentPaid, reg.Code, events.PaymentPaidPayload{
		Code:        reg.Code,
		Source:      source,
		CheckoutRef: checkoutRef,
		Amount:      reg.TotalFee.String(),
		PaidAt:      at,
	}, at)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build payment event")
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment event")
	}
	return nil
}

func (s *Service) findRegistration(ctx context.Context, code string) (*regmodels.Registration, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	reg, err := s.registrations.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

func (s *Service) recordGatewayFailure(ctx context.Context, span trace.Span, operation string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, operation)
	if s.metrics != nil {
		s.metrics.IncGatewayFailure(operation)
	}
	s.logger.ErrorContext(ctx, "payment gateway call failed",
		"operation", operation,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) incCheckout(result string) {
	if s.metrics != nil {
		s.metrics.IncCheckout(result)
	}
}

func (s *Service) incWebhook(result string) {
	if s.metrics != nil {
		s.metrics.IncWebhook(result)
	}
}

func describe(reg *regmodels.Registration) string {
	if reg.GroupSize == 1 {
		return fmt.Sprintf("Entry fee %s (1 visitor)", reg.Code)
	}
	return fmt.Sprintf("Entry fee %s (%d visitors)", reg.Code, reg.GroupSize)
}
