package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// maxWriteAttempts bounds how often a payment write is retried after another
// writer advanced the same order between our read and write.
const maxWriteAttempts = 3

var errStaleWrite = errors.New("order payment status changed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the single writer of order payment state. Webhooks, redirects,
// the sweep and admins all go through ApplyPaymentEvent.
type Service interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	SetPreference(ctx context.Context, businessID, orderID uuid.UUID, preferenceID string) error
	ApplyPaymentEvent(ctx context.Context, businessID, orderID uuid.UUID, ev Event) (Transition, error)
	AdminApplyPaymentEvent(ctx context.Context, input AdminPaymentEventInput) (Transition, error)
	GetOrderStatus(ctx context.Context, businessID, orderID uuid.UUID) (StatusView, error)
	ListSweepCandidates(ctx context.Context, minAge, maxAge time.Duration, limit int) ([]models.Order, error)
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    logg,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := s.now()
	order.Status = enums.OrderStatusPending
	order.PaymentStatus = enums.PaymentStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				BusinessID:    order.BusinessID,
				Total:         order.Total,
				PaymentMethod: order.PaymentMethod,
				ItemCount:     len(order.Items),
			},
		})
	})
}

func (s *service) Get(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, businessID, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return order, nil
}

func (s *service) SetPreference(ctx context.Context, businessID, orderID uuid.UUID, preferenceID string) error {
	if err := s.repo.SetPreference(ctx, businessID, orderID, preferenceID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store preference id")
	}
	return nil
}

// ApplyPaymentEvent reads the order, runs Apply and writes the payment fields
// back conditioned on the payment status it read. When another writer got in
// first the whole read-apply-write is repeated against the fresh row.
func (s *service) ApplyPaymentEvent(ctx context.Context, businessID, orderID uuid.UUID, ev Event) (Transition, error) {
	ctx = s.logg.WithOrderID(s.logg.WithBusinessID(ctx, businessID.String()), orderID.String())
	if ev.PaymentID != "" {
		ctx = s.logg.WithPaymentID(ctx, ev.PaymentID)
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var result Transition
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.FindByID(ctx, businessID, orderID)
			if err != nil {
				return mapFindError(err)
			}

			result, err = Apply(*order, ev)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported vendor status")
			}
			if !result.Changed() {
				return nil
			}

			result.Order.UpdatedAt = s.now()
			if result.Order.UpdatedAt.Before(order.UpdatedAt) {
				result.Order.UpdatedAt = order.UpdatedAt
			}
			written, err := repo.UpdatePayment(ctx, &result.Order, order.PaymentStatus)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
			}
			if !written {
				return errStaleWrite
			}
			if result.From == result.To {
				return nil
			}
			return s.outbox.Emit(ctx, tx, s.paymentChangedEvent(result, ev))
		})
		if errors.Is(err, errStaleWrite) {
			s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt), "payment write raced, retrying")
			continue
		}
		if err != nil {
			return Transition{}, err
		}
		s.observe(ctx, result, ev)
		return result, nil
	}
	return Transition{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment status kept changing, try again")
}

func (s *service) observe(ctx context.Context, result Transition, ev Event) {
	fields := map[string]any{
		"source":        ev.Source,
		"vendor_status": ev.VendorStatus,
		"from":          result.From,
		"to":            result.To,
		"outcome":       result.Outcome,
	}
	logCtx := s.logg.WithFields(ctx, fields)
	switch result.Outcome {
	case OutcomeApplied:
		s.metrics.IncTransition(string(ev.Source), string(result.From), string(result.To))
		s.logg.Info(logCtx, "payment event applied")
	case OutcomeBlocked:
		s.logg.Warn(logCtx, "payment event ignored, order already resolved further")
	default:
		s.logg.Debug(logCtx, "payment event already reflected")
	}
}

func (s *service) paymentChangedEvent(result Transition, ev Event) outbox.DomainEvent {
	var paymentID string
	if result.Order.ExternalPaymentID != nil {
		paymentID = *result.Order.ExternalPaymentID
	}
	var actor *outbox.ActorRef
	if ev.Source == SourceAdmin {
		actor = &outbox.ActorRef{Role: string(SourceAdmin), Subject: ev.Actor}
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   result.Order.ID,
		Version:       1,
		Actor:         actor,
		OccurredAt:    result.Order.UpdatedAt,
		Data: payloads.OrderPaymentStatusChangedEvent{
			OrderID:           result.Order.ID,
			BusinessID:        result.Order.BusinessID,
			PreviousStatus:    result.From,
			PaymentStatus:     result.To,
			Status:            result.Order.Status,
			VendorStatus:      ev.VendorStatus,
			ExternalPaymentID: paymentID,
			Source:            string(ev.Source),
		},
	}
}

func (s *service) AdminApplyPaymentEvent(ctx context.Context, input AdminPaymentEventInput) (Transition, error) {
	if input.BusinessID == uuid.Nil || input.OrderID == uuid.Nil {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "business id and order id required")
	}
	if strings.TrimSpace(input.ActorSubject) == "" {
		return Transition{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	status := enums.ParseVendorStatus(input.VendorStatus)
	if status == enums.VendorStatusUnrecognized {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported vendor status %q", input.VendorStatus))
	}
	ctx = s.logg.WithActorRole(ctx, input.ActorRole)
	return s.ApplyPaymentEvent(ctx, input.BusinessID, input.OrderID, Event{
		VendorStatus: status,
		PaymentID:    strings.TrimSpace(input.PaymentID),
		Source:       SourceAdmin,
		Actor:        input.ActorSubject,
	})
}

func (s *service) GetOrderStatus(ctx context.Context, businessID, orderID uuid.UUID) (StatusView, error) {
	order, err := s.Get(ctx, businessID, orderID)
	if err != nil {
		return StatusView{}, err
	}
	return ViewOf(order), nil
}

// ViewOf projects an order onto its buyer-facing status.
func ViewOf(order *models.Order) StatusView {
	return StatusView{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Category:      enums.ResultPageFor(order.PaymentStatus),
		Total:         order.Total,
		UpdatedAt:     order.UpdatedAt,
	}
}

func (s *service) ListSweepCandidates(ctx context.Context, minAge, maxAge time.Duration, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.now()
	rows, err := s.repo.ListPendingGateway(ctx, now.Add(-minAge), now.Add(-maxAge), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending gateway orders")
	}
	// claimed rows move to the back so abandoned checkouts cannot starve newer ones
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].ID)
	}
	if err := s.repo.MarkSwept(ctx, ids, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark sweep candidates")
	}
	return rows, nil
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
