package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type cartValidator interface {
	ValidateCart(ctx context.Context, businessID uuid.UUID, entries []cart.Entry) (cart.Result, stock.Snapshot, error)
}

type orderWriter interface {
	Create(ctx context.Context, order *models.Order) error
	SetPreference(ctx context.Context, businessID, orderID uuid.UUID, preferenceID string) error
}

type preferenceCreator interface {
	CreatePreference(ctx context.Context, businessID uuid.UUID, req gateway.PreferenceRequest) (gateway.Preference, error)
}

// Service turns a validated cart into a pending order and, for gateway
// payments, a checkout preference.
type Service interface {
	Checkout(ctx context.Context, businessID uuid.UUID, input Input) (*Result, error)
}

// Input is a checkout request.
type Input struct {
	Entries       []cart.Entry        `json:"items" validate:"required,min=1,dive"`
	Customer      types.Customer      `json:"customer" validate:"required"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required"`
	Notes         *string             `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// Result is what the buyer gets back from checkout.
type Result struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	Items         types.OrderItems    `json:"items"`
	PreferenceID  *string             `json:"preference_id,omitempty"`
	CheckoutURL   *string             `json:"checkout_url,omitempty"`
	Warnings      []cart.LineWarning  `json:"warnings"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Cart            cartValidator
	Orders          orderWriter
	Gateway         preferenceCreator
	Config          config.CheckoutConfig
	NotificationURL string
	Logger          *logger.Logger
}

type service struct {
	cart            cartValidator
	orders          orderWriter
	gateway         preferenceCreator
	cfg             config.CheckoutConfig
	notificationURL string
	logg            *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart validator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if strings.TrimSpace(params.Config.BackURLBase) == "" {
		return nil, fmt.Errorf("checkout back url base required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		cart:            params.Cart,
		orders:          params.Orders,
		gateway:         params.Gateway,
		cfg:             params.Config,
		notificationURL: params.NotificationURL,
		logg:            logg,
	}, nil
}

func (s *service) Checkout(ctx context.Context, businessID uuid.UUID, input Input) (*Result, error) {
	if businessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if err := checkout.ValidateCustomer(input.Customer); err != nil {
		return nil, err
	}
	ctx = s.logg.WithBusinessID(ctx, businessID.String())

	validation, snap, err := s.cart.ValidateCart(ctx, businessID, input.Entries)
	if err != nil {
		return nil, err
	}
	if err := cart.AsError(validation); err != nil {
		return nil, err
	}

	items, err := snapshotItems(snap, cart.MergeEntries(input.Entries))
	if err != nil {
		return nil, err
	}
	total := items.Total().Round(2)
	if err := checkout.VerifyTotal(items, total); err != nil {
		return nil, err
	}

	customer := input.Customer
	order := &models.Order{
		ID:              uuid.New(),
		BusinessID:      businessID,
		Items:           items,
		CustomerName:    strings.TrimSpace(customer.Name),
		CustomerPhone:   strings.TrimSpace(customer.Phone),
		CustomerEmail:   customer.Email,
		CustomerAddress: customer.Address,
		Total:           total,
		PaymentMethod:   input.PaymentMethod,
		Notes:           input.Notes,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_method": order.PaymentMethod,
		"total":          order.Total.StringFixed(2),
		"items":          len(order.Items),
	}), "order created")

	result := &Result{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		Items:         order.Items,
		Warnings:      validation.Warnings,
	}
	if order.PaymentMethod != enums.PaymentMethodGateway {
		return result, nil
	}

	pref, err := s.createPreference(ctx, order)
	if err != nil {
		return nil, err
	}
	result.PreferenceID = &pref.ID
	result.CheckoutURL = &pref.CheckoutURL
	return result, nil
}

// createPreference never touches the order's payment state: a failure here
// leaves the order pending/pending for the buyer to retry or the sweep to skip.
func (s *service) createPreference(ctx context.Context, order *models.Order) (gateway.Preference, error) {
	req, err := s.preferenceRequest(order)
	if err != nil {
		return gateway.Preference{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build preference request")
	}

	pref, err := s.gateway.CreatePreference(ctx, order.BusinessID, req)
	if err != nil {
		s.logg.Error(ctx, "create payment preference failed", err)
		details := map[string]any{"order_id": order.ID}
		if typed := pkgerrors.As(err); typed != nil {
			return gateway.Preference{}, pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
		}
		return gateway.Preference{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment preference").WithDetails(details)
	}

	if err := s.orders.SetPreference(ctx, order.BusinessID, order.ID, pref.ID); err != nil {
		return gateway.Preference{}, err
	}
	return pref, nil
}

func (s *service) preferenceRequest(order *models.Order) (gateway.PreferenceRequest, error) {
	var urls gateway.BackURLs
	for page, dest := range map[enums.ResultPage]*string{
		enums.ResultPageSuccess: &urls.Success,
		enums.ResultPagePending: &urls.Pending,
		enums.ResultPageFailure: &urls.Failure,
	} {
		u, err := checkout.ResultURL(s.cfg.BackURLBase, page, order.ID, order.BusinessID)
		if err != nil {
			return gateway.PreferenceRequest{}, err
		}
		*dest = u
	}
	notificationURL, err := checkout.NotificationURL(s.notificationURL, order.BusinessID)
	if err != nil {
		return gateway.PreferenceRequest{}, err
	}
	return gateway.PreferenceRequest{
		OrderID:         order.ID,
		Items:           order.Items,
		Payer:           order.Customer(),
		BackURLs:        urls,
		NotificationURL: notificationURL,
		Currency:        s.cfg.Currency,
		Total:           order.Total,
	}, nil
}

func snapshotItems(snap stock.Snapshot, entries []cart.Entry) (types.OrderItems, error) {
	items := make(types.OrderItems, 0, len(entries))
	for _, entry := range entries {
		item, ok := snap.Lookup(entry.ItemID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").WithDetails(map[string]any{"item_id": entry.ItemID})
		}
		items = append(items, types.OrderItem{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  entry.Quantity,
		})
	}
	return items, nil
}
