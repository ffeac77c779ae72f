package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
)

// LineItem is one order line on a payment link. Amounts are in the smallest
// currency unit.
type LineItem struct {
	Name        string
	Quantity    int
	AmountCents int64
}

// PaymentLinkParams contains the fields required to create a hosted checkout.
type PaymentLinkParams struct {
	ReferenceID    string
	LineItems      []LineItem
	Currency       string
	RedirectURL    string
	BuyerEmail     string
	BuyerPhone     string
	IdempotencyKey string
}

// PaymentLink is the created hosted checkout.
type PaymentLink struct {
	ID      string
	URL     string
	OrderID string
}

// Payment is the subset of a Square payment the storefront reads.
type Payment struct {
	ID          string
	Status      string
	OrderID     string
	ReferenceID string
}

func (p PaymentLinkParams) toSquareRequest(locationID, idempotencyKey string) *sqcheckout.CreatePaymentLinkRequest {
	order := &sq.Order{LocationID: locationID}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		order.ReferenceID = ptrString(trimmed)
	}
	for _, item := range p.LineItems {
		order.LineItems = append(order.LineItems, &sq.OrderLineItem{
			Name:           ptrString(item.Name),
			Quantity:       strconv.Itoa(item.Quantity),
			BasePriceMoney: moneyPtr(item.AmountCents, p.Currency),
		})
	}

	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order:          order,
	}
	if trimmed := strings.TrimSpace(p.RedirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(trimmed)}
	}
	prefill := &sq.PrePopulatedData{}
	if trimmed := strings.TrimSpace(p.BuyerEmail); trimmed != "" {
		prefill.BuyerEmail = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.BuyerPhone); trimmed != "" {
		prefill.BuyerPhoneNumber = ptrString(trimmed)
	}
	if prefill.BuyerEmail != nil || prefill.BuyerPhoneNumber != nil {
		req.PrePopulatedData = prefill
	}
	return req
}

func ptrString(value string) *string {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
