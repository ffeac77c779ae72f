package paymentwebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
)

// consumerName scopes the applied markers in Redis.
const consumerName = "payment-webhook"

// Outcomes recorded per notification.
const (
	OutcomeIgnored      = "ignored"
	OutcomeUncorrelated = "uncorrelated"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeOrderMissing = "order_not_found"
	OutcomeDuplicate    = "duplicate"
	OutcomeApplied      = "applied"
	OutcomeUnchanged    = "unchanged"
	OutcomeBlocked      = "blocked"
	OutcomeFailed       = "failed"
	OutcomeBadSignature = "bad_signature"
)

type paymentLookup interface {
	GetPayment(ctx context.Context, businessID uuid.UUID, paymentID string) (gateway.Payment, error)
}

type paymentApplier interface {
	ApplyPaymentEvent(ctx context.Context, businessID, orderID uuid.UUID, ev orders.Event) (orders.Transition, error)
}

type appliedMarker interface {
	Seen(ctx context.Context, consumer, id string) (bool, error)
	CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error)
}

// ServiceParams wires the payment notification processor.
type ServiceParams struct {
	Gateway paymentLookup
	Orders  paymentApplier
	Markers appliedMarker
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
}

// Service processes one gateway notification: it reads the payment back from
// the gateway, correlates it to an order and applies the transition.
type Service struct {
	gateway paymentLookup
	orders  paymentApplier
	markers appliedMarker
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		gateway: params.Gateway,
		orders:  params.Orders,
		markers: params.Markers,
		logg:    logg,
		metrics: params.Metrics,
	}, nil
}

// Process handles a notification and returns its outcome. Errors are returned
// for logging only; the gateway has already been acknowledged.
func (s *Service) Process(ctx context.Context, n Notification) (string, error) {
	outcome, err := s.process(ctx, n)
	s.metrics.IncNotification(outcome)
	return outcome, err
}

func (s *Service) process(ctx context.Context, n Notification) (string, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"topic": n.Topic, "notification_id": n.ID})
	if !n.IsPayment() {
		s.logg.Debug(ctx, "notification topic ignored")
		return OutcomeIgnored, nil
	}
	if n.ID == "" {
		return OutcomeUncorrelated, s.uncorrelated(ctx, "payment notification without id")
	}
	if n.BusinessID == uuid.Nil {
		return OutcomeUncorrelated, s.uncorrelated(ctx, "payment notification without business scope")
	}
	ctx = s.logg.WithPaymentID(s.logg.WithBusinessID(ctx, n.BusinessID.String()), n.ID)

	payment, err := s.gateway.GetPayment(ctx, n.BusinessID, n.ID)
	if err != nil {
		s.logg.Error(ctx, "payment lookup failed", err)
		return OutcomeLookupFailed, err
	}

	orderID, err := uuid.Parse(strings.TrimSpace(payment.ExternalReference))
	if err != nil {
		return OutcomeUncorrelated, s.uncorrelated(ctx, fmt.Sprintf("payment external reference %q is not an order id", payment.ExternalReference))
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	markerID := idempotency.CompositeID(payment.ID, payment.VendorStatus.String(), orderID.String())
	if s.markers != nil {
		seen, err := s.markers.Seen(ctx, consumerName, markerID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "applied marker read failed, applying anyway")
		} else if seen {
			s.logg.Debug(ctx, "payment notification already applied")
			return OutcomeDuplicate, nil
		}
	}

	result, err := s.orders.ApplyPaymentEvent(ctx, n.BusinessID, orderID, orders.Event{
		VendorStatus: payment.VendorStatus,
		PaymentID:    payment.ID,
		Source:       orders.SourceWebhook,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "payment notification for unknown order")
			return OutcomeOrderMissing, err
		}
		s.logg.Error(ctx, "apply payment notification failed", err)
		return OutcomeFailed, err
	}

	if s.markers != nil {
		if _, err := s.markers.CheckAndMarkProcessed(ctx, consumerName, markerID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "applied marker write failed")
		}
	}

	switch result.Outcome {
	case orders.OutcomeApplied:
		return OutcomeApplied, nil
	case orders.OutcomeBlocked:
		return OutcomeBlocked, nil
	default:
		return OutcomeUnchanged, nil
	}
}

func (s *Service) uncorrelated(ctx context.Context, msg string) error {
	err := pkgerrors.New(pkgerrors.CodeCorrelation, msg)
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment notification cannot be correlated")
	return err
}

// IsCorrelationError reports whether err means the notification could not be
// tied to an order.
func IsCorrelationError(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeCorrelation)
}
