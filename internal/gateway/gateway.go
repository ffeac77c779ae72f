// Package gateway is the payment gateway boundary: preference creation and
// payment lookups for a tenant, with credentials resolved per business.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// BackURLs are the three result pages the gateway returns the buyer to.
type BackURLs struct {
	Success string
	Pending string
	Failure string
}

// PreferenceRequest describes a checkout to be paid through the gateway.
type PreferenceRequest struct {
	OrderID         uuid.UUID
	Items           types.OrderItems
	Payer           types.Customer
	BackURLs        BackURLs
	NotificationURL string
	Currency        string
	Total           decimal.Decimal
}

// ExternalReference is the correlation key embedded in the preference.
func (r PreferenceRequest) ExternalReference() string {
	return r.OrderID.String()
}

// Preference is a created checkout the buyer is sent to.
type Preference struct {
	ID          string
	CheckoutURL string
}

// Payment is the gateway's canonical view of one payment.
type Payment struct {
	ID                string
	VendorStatus      enums.VendorStatus
	RawStatus         string
	ExternalReference string
}

// Provider talks to one gateway with an already resolved tenant token.
type Provider interface {
	Name() string
	CreatePreference(ctx context.Context, token string, req PreferenceRequest) (Preference, error)
	GetPayment(ctx context.Context, token, paymentID string) (Payment, error)
	// FindPaymentByReference returns the latest payment for the reference,
	// or nil when the buyer never paid.
	FindPaymentByReference(ctx context.Context, token, externalReference string) (*Payment, error)
}

// Credentials resolves a tenant's gateway access token. Missing credentials
// are reported as CREDENTIALS_UNAVAILABLE.
type Credentials interface {
	AccessToken(ctx context.Context, businessID uuid.UUID) (string, error)
}

// Client is the business-scoped gateway API used by the rest of the system.
type Client interface {
	CreatePreference(ctx context.Context, businessID uuid.UUID, req PreferenceRequest) (Preference, error)
	GetPayment(ctx context.Context, businessID uuid.UUID, paymentID string) (Payment, error)
	FindPaymentByReference(ctx context.Context, businessID uuid.UUID, externalReference string) (*Payment, error)
}
