package gateway

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/mercadopago"
)

type mercadoPagoAPI interface {
	CreatePreference(ctx context.Context, accessToken string, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*mercadopago.Payment, error)
	SearchLatestPayment(ctx context.Context, accessToken, externalReference string) (*mercadopago.Payment, error)
}

// MercadoPagoProvider adapts the MercadoPago REST client to Provider.
type MercadoPagoProvider struct {
	api     mercadoPagoAPI
	sandbox bool
}

// NewMercadoPagoProvider wraps api. In sandbox mode the sandbox checkout URL
// is returned to buyers.
func NewMercadoPagoProvider(api mercadoPagoAPI, sandbox bool) *MercadoPagoProvider {
	return &MercadoPagoProvider{api: api, sandbox: sandbox}
}

func (p *MercadoPagoProvider) Name() string { return "mercadopago" }

func (p *MercadoPagoProvider) CreatePreference(ctx context.Context, token string, req PreferenceRequest) (Preference, error) {
	items := make([]mercadopago.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, mercadopago.Item{
			ID:         item.ItemID.String(),
			Title:      item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.InexactFloat64(),
			CurrencyID: req.Currency,
		})
	}

	payer := &mercadopago.Payer{Name: req.Payer.Name}
	if req.Payer.Email != nil {
		payer.Email = *req.Payer.Email
	}
	if req.Payer.Phone != "" {
		payer.Phone = &mercadopago.Phone{Number: req.Payer.Phone}
	}

	pref, err := p.api.CreatePreference(ctx, token, mercadopago.PreferenceRequest{
		Items: items,
		Payer: payer,
		BackURLs: mercadopago.BackURLs{
			Success: req.BackURLs.Success,
			Pending: req.BackURLs.Pending,
			Failure: req.BackURLs.Failure,
		},
		AutoReturn:        "approved",
		ExternalReference: req.ExternalReference(),
		NotificationURL:   req.NotificationURL,
	})
	if err != nil {
		return Preference{}, err
	}

	checkoutURL := pref.InitPoint
	if p.sandbox && pref.SandboxInitPoint != "" {
		checkoutURL = pref.SandboxInitPoint
	}
	return Preference{ID: pref.ID, CheckoutURL: checkoutURL}, nil
}

func (p *MercadoPagoProvider) GetPayment(ctx context.Context, token, paymentID string) (Payment, error) {
	payment, err := p.api.GetPayment(ctx, token, paymentID)
	if err != nil {
		return Payment{}, err
	}
	return fromMercadoPago(payment), nil
}

func (p *MercadoPagoProvider) FindPaymentByReference(ctx context.Context, token, externalReference string) (*Payment, error) {
	payment, err := p.api.SearchLatestPayment(ctx, token, externalReference)
	if err != nil || payment == nil {
		return nil, err
	}
	out := fromMercadoPago(payment)
	return &out, nil
}

func fromMercadoPago(payment *mercadopago.Payment) Payment {
	return Payment{
		ID:                payment.ID.String(),
		VendorStatus:      enums.ParseVendorStatus(payment.Status),
		RawStatus:         payment.Status,
		ExternalReference: payment.ExternalReference,
	}
}
