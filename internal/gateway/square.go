package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type squareAPI interface {
	CreatePaymentLink(ctx context.Context, accessToken string, params square.PaymentLinkParams) (*square.PaymentLink, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*square.Payment, error)
}

var hundred = decimal.NewFromInt(100)

// SquareProvider adapts Square payment links to Provider. Square returns a
// single redirect URL, so the pending page is used and the redirect
// reconciler routes the buyer from the canonical state.
type SquareProvider struct {
	api squareAPI
}

func NewSquareProvider(api squareAPI) *SquareProvider {
	return &SquareProvider{api: api}
}

func (p *SquareProvider) Name() string { return "square" }

func (p *SquareProvider) CreatePreference(ctx context.Context, token string, req PreferenceRequest) (Preference, error) {
	lines := make([]square.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, square.LineItem{
			Name:        item.Name,
			Quantity:    item.Quantity,
			AmountCents: item.UnitPrice.Mul(hundred).Round(0).IntPart(),
		})
	}
	params := square.PaymentLinkParams{
		ReferenceID:    req.ExternalReference(),
		LineItems:      lines,
		Currency:       req.Currency,
		RedirectURL:    req.BackURLs.Pending,
		BuyerPhone:     req.Payer.Phone,
		IdempotencyKey: "order-" + req.ExternalReference(),
	}
	if req.Payer.Email != nil {
		params.BuyerEmail = *req.Payer.Email
	}

	link, err := p.api.CreatePaymentLink(ctx, token, params)
	if err != nil {
		return Preference{}, err
	}
	return Preference{ID: link.ID, CheckoutURL: link.URL}, nil
}

func (p *SquareProvider) GetPayment(ctx context.Context, token, paymentID string) (Payment, error) {
	payment, err := p.api.GetPayment(ctx, token, paymentID)
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		ID:                payment.ID,
		VendorStatus:      squareVendorStatus(payment.Status),
		RawStatus:         payment.Status,
		ExternalReference: payment.ReferenceID,
	}, nil
}

// FindPaymentByReference is not offered by Square payment links; the sweep
// only reconciles Square orders that already carry a payment id.
func (p *SquareProvider) FindPaymentByReference(context.Context, string, string) (*Payment, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "square does not support payment lookup by reference")
}

func squareVendorStatus(raw string) enums.VendorStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return enums.VendorStatusApproved
	case "APPROVED":
		return enums.VendorStatusInProcess
	case "PENDING":
		return enums.VendorStatusPending
	case "CANCELED":
		return enums.VendorStatusCancelled
	case "FAILED":
		return enums.VendorStatusRejected
	default:
		return enums.VendorStatusUnrecognized
	}
}
