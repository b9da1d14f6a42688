package models

import (
	"time"

	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
)

// ProviderStatus is the payment state reported by the gateway.
type ProviderStatus string

const (
	ProviderUnpaid  ProviderStatus = "unpaid"
	ProviderPaid    ProviderStatus = "paid"
	ProviderFailed  ProviderStatus = "failed"
	ProviderExpired ProviderStatus = "expired"
)

func (s ProviderStatus) IsPaid() bool {
	return s == ProviderPaid
}

// Source names which writer reported a payment fact.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourcePoll     Source = "poll"
	SourceCheckout Source = "checkout"
	SourceCashDesk Source = "cash_desk"
)

// Record is one checkout attempt for a registration. Records are updated in
// place on every reconciliation event and never deleted.
type Record struct {
	ID             domain.PaymentID
	RegistrationID domain.RegistrationID
	Code           string
	CheckoutRef    string
	CheckoutURL    string
	ProviderStatus ProviderStatus
	Amount         regmodels.Amount
	LastSource     Source
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Fact is a payment observation from either writer, correlated by code.
type Fact struct {
	Code           string
	Source         Source
	CheckoutRef    string
	ProviderStatus ProviderStatus
	Amount         regmodels.Amount
}

// Outcome reports what applying a fact changed.
type Outcome string

const (
	OutcomeMarkedPaid  Outcome = "marked_paid"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeRecorded    Outcome = "recorded"
)
