package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type orderStore interface {
	GetOrderStatus(ctx context.Context, businessID, orderID uuid.UUID) (orders.StatusView, error)
	ApplyPaymentEvent(ctx context.Context, businessID, orderID uuid.UUID, ev orders.Event) (orders.Transition, error)
}

type paymentLookup interface {
	GetPayment(ctx context.Context, businessID uuid.UUID, paymentID string) (gateway.Payment, error)
}

// Landing is what the buyer's browser brought back from the gateway. Every
// field except Page is a hint supplied by the gateway through the URL.
type Landing struct {
	Page             enums.ResultPage
	BusinessID       uuid.UUID
	OrderID          uuid.UUID
	PaymentID        string
	VendorStatus     string
	CollectionStatus string
}

// Outcome tells the caller what to show. When Redirect is set the buyer
// belongs on RedirectURL instead of the page they landed on.
type Outcome struct {
	Landed      enums.ResultPage  `json:"landed"`
	Resolved    enums.ResultPage  `json:"resolved"`
	Redirect    bool              `json:"redirect"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Order       orders.StatusView `json:"order"`
	Applied     bool              `json:"applied"`
	Degraded    bool              `json:"degraded"`
	StatusURL   string            `json:"status_url"`
}

type ServiceParams struct {
	Orders      orderStore
	Gateway     paymentLookup
	Policy      config.HintPolicy
	BackURLBase string
	Logger      *logger.Logger
	Metrics     *metrics.PaymentMetrics
}

// Service reconciles browser redirects against the stored order.
type Service struct {
	orders  orderStore
	gateway paymentLookup
	policy  config.HintPolicy
	base    string
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, errors.New("order store required")
	}
	policy := params.Policy
	if policy == "" {
		policy = config.HintPolicyVerify
	}
	if policy == config.HintPolicyVerify && params.Gateway == nil {
		return nil, errors.New("payment lookup required to verify redirect hints")
	}
	if strings.TrimSpace(params.BackURLBase) == "" {
		return nil, errors.New("back url base required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		orders:  params.Orders,
		gateway: params.Gateway,
		policy:  policy,
		base:    params.BackURLBase,
		logg:    logg,
		metrics: params.Metrics,
	}, nil
}

// Reconcile reads the canonical order, folds in the redirect hints when the
// order is still open, and reports which result page matches the stored
// state. Only a missing order or an unreadable store is returned as an error;
// a failure while applying hints degrades to the canonical state.
func (s *Service) Reconcile(ctx context.Context, landing Landing) (Outcome, error) {
	if landing.OrderID == uuid.Nil || landing.BusinessID == uuid.Nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !landing.Page.IsValid() {
		landing.Page = enums.ResultPagePending
	}
	ctx = s.logg.WithOrderID(s.logg.WithBusinessID(ctx, landing.BusinessID.String()), landing.OrderID.String())

	view, err := s.orders.GetOrderStatus(ctx, landing.BusinessID, landing.OrderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return Outcome{}, err
		}
		// the buyer can retry through the status check once the store is back
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order status unavailable").
			WithDetails(map[string]string{"status_url": StatusPath(landing.BusinessID, landing.OrderID)})
	}

	out := Outcome{Landed: landing.Page, Order: view, StatusURL: StatusPath(landing.BusinessID, landing.OrderID)}

	if !view.PaymentStatus.IsResolved() && view.PaymentMethod == enums.PaymentMethodGateway {
		applied, err := s.applyHints(ctx, landing)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "redirect hints not applied, showing stored state")
			out.Degraded = true
		case applied != nil:
			out.Order = *applied
			out.Applied = true
		}
	}

	out.Resolved = enums.ResultPageFor(out.Order.PaymentStatus)
	if out.Resolved != landing.Page {
		target, err := checkout.ResultURL(s.base, out.Resolved, landing.OrderID, landing.BusinessID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "result url unavailable, rendering in place")
			out.Degraded = true
		} else {
			out.Redirect = true
			out.RedirectURL = target
		}
	}
	s.metrics.IncRedirect(landing.Page.String(), out.Resolved.String())
	return out, nil
}

// applyHints returns the post-apply view, or nil when the hints carried
// nothing worth applying.
func (s *Service) applyHints(ctx context.Context, landing Landing) (*orders.StatusView, error) {
	hint, ok := conclusiveHint(landing.VendorStatus, landing.CollectionStatus)
	if !ok {
		return nil, nil
	}

	event := orders.Event{VendorStatus: hint, PaymentID: strings.TrimSpace(landing.PaymentID), Source: orders.SourceRedirect}
	if s.policy == config.HintPolicyVerify {
		verified, err := s.verify(ctx, landing)
		if err != nil || verified == nil {
			return nil, err
		}
		event = *verified
	}

	result, err := s.orders.ApplyPaymentEvent(ctx, landing.BusinessID, landing.OrderID, event)
	if err != nil {
		return nil, err
	}
	view := orders.ViewOf(&result.Order)
	return &view, nil
}

// verify asks the gateway for the payment behind the hint and returns the
// event the gateway vouches for.
func (s *Service) verify(ctx context.Context, landing Landing) (*orders.Event, error) {
	paymentID := strings.TrimSpace(landing.PaymentID)
	if paymentID == "" || strings.EqualFold(paymentID, "null") {
		s.logg.Debug(ctx, "redirect hint without payment id, waiting for webhook")
		return nil, nil
	}
	ctx = s.logg.WithPaymentID(ctx, paymentID)

	payment, err := s.gateway.GetPayment(ctx, landing.BusinessID, paymentID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(payment.ExternalReference), landing.OrderID.String()) {
		return nil, pkgerrors.New(pkgerrors.CodeCorrelation,
			fmt.Sprintf("payment %s belongs to %q, not this order", payment.ID, payment.ExternalReference))
	}
	return &orders.Event{VendorStatus: payment.VendorStatus, PaymentID: payment.ID, Source: orders.SourceRedirect}, nil
}

// conclusiveHint picks the approved/rejected/cancelled outcome the URL
// claims. Hints that contradict each other are discarded.
func conclusiveHint(values ...string) (enums.VendorStatus, bool) {
	var found enums.VendorStatus
	for _, raw := range values {
		status := enums.ParseVendorStatus(raw)
		if !status.IsTerminal() {
			continue
		}
		if found != "" && (found == enums.VendorStatusApproved) != (status == enums.VendorStatusApproved) {
			return "", false
		}
		if found == "" {
			found = status
		}
	}
	return found, found != ""
}

// StatusPath is the buyer-facing status check for an order.
func StatusPath(businessID, orderID uuid.UUID) string {
	return fmt.Sprintf("/api/v1/businesses/%s/orders/%s/status", businessID, orderID)
}
