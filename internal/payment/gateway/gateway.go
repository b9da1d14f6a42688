// Package gateway adapts the PayMongo Links API: opening checkout links,
// querying their status and parsing signed webhook deliveries.
package gateway

import (
	"context"

	paymodels "entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
)

// CheckoutRequest opens a checkout for a registration. Code is the
// correlation key carried back in webhooks.
type CheckoutRequest struct {
	Code        string
	Amount      regmodels.Amount
	Description string
}

type Checkout struct {
	Ref    string
	URL    string
	Status paymodels.ProviderStatus
}

// Status is the provider's current view of a checkout.
type Status struct {
	Ref    string
	Code   string
	Status paymodels.ProviderStatus
	Amount regmodels.Amount
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	QueryStatus(ctx context.Context, checkoutRef string) (*Status, error)
}
