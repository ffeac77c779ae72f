package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type fixture struct {
	db   *gorm.DB
	svc  Service
	repo Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Tx:     dbpkg.FromGorm(db),
		Outbox: outbox.NewService(outbox.NewRepository(db), nil),
	})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, repo: repo}
}

func newOrder(businessID uuid.UUID) *models.Order {
	notes := "sin sal"
	return &models.Order{
		BusinessID: businessID,
		Items: types.OrderItems{
			{ItemID: uuid.New(), Name: "Empanada", UnitPrice: decimal.RequireFromString("1.50"), Quantity: 4},
		},
		CustomerName:  "Lucía",
		CustomerPhone: "+5491122223333",
		Total:         decimal.RequireFromString("6.00"),
		PaymentMethod: enums.PaymentMethodGateway,
		Notes:         &notes,
	}
}

func outboxRows(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", eventType).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestCreateStartsPendingAndQueuesEvent(t *testing.T) {
	f := newFixture(t)
	businessID := uuid.New()
	order := newOrder(businessID)

	require.NoError(t, f.svc.Create(context.Background(), order))
	require.NotEqual(t, uuid.Nil, order.ID)

	stored, err := f.svc.Get(context.Background(), businessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.Len(t, stored.Items, 1)
	require.True(t, stored.Total.Equal(decimal.RequireFromString("6.00")))

	rows := outboxRows(t, f.db, enums.EventOrderCreated)
	require.Len(t, rows, 1)
	require.Equal(t, order.ID, rows[0].AggregateID)
}

func TestGetIsScopedToBusiness(t *testing.T) {
	f := newFixture(t)
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(context.Background(), order))

	_, err := f.svc.Get(context.Background(), uuid.New(), order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestApplyPaymentEventScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, order))

	result, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{
		VendorStatus: enums.VendorStatusApproved,
		PaymentID:    "1319111111",
		Source:       SourceWebhook,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)

	stored, err := f.svc.Get(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.ExternalPaymentID)
	require.Equal(t, "1319111111", *stored.ExternalPaymentID)

	// merge update leaves the rest of the order intact
	require.Equal(t, "Lucía", stored.CustomerName)
	require.Equal(t, "sin sal", *stored.Notes)
	require.Len(t, stored.Items, 1)
	require.False(t, stored.UpdatedAt.Before(stored.CreatedAt))

	rows := outboxRows(t, f.db, enums.EventOrderPaymentStatusChanged)
	require.Len(t, rows, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var payload payloads.OrderPaymentStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Equal(t, enums.PaymentStatusPending, payload.PreviousStatus)
	require.Equal(t, enums.PaymentStatusPaid, payload.PaymentStatus)
	require.Equal(t, "webhook", payload.Source)
}

func TestApplyPaymentEventTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, order))

	ev := Event{VendorStatus: enums.VendorStatusApproved, PaymentID: "42", Source: SourceWebhook}
	_, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, ev)
	require.NoError(t, err)
	first, err := f.svc.Get(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)

	again, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, again.Outcome)

	second, err := f.svc.Get(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.PaymentStatus, second.PaymentStatus)
	require.Equal(t, *first.ExternalPaymentID, *second.ExternalPaymentID)
	require.Len(t, outboxRows(t, f.db, enums.EventOrderPaymentStatusChanged), 1)
}

func TestApplyPaymentEventScenarioC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, order))

	_, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{VendorStatus: enums.VendorStatusApproved, PaymentID: "7", Source: SourceWebhook})
	require.NoError(t, err)

	for _, late := range []enums.VendorStatus{enums.VendorStatusPending, enums.VendorStatusInProcess} {
		result, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{VendorStatus: late, PaymentID: "7", Source: SourceWebhook})
		require.NoError(t, err)
		require.Equal(t, OutcomeBlocked, result.Outcome)
	}

	stored, err := f.svc.Get(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusConfirmed, stored.Status)
}

func TestApplyPaymentEventUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyPaymentEvent(context.Background(), uuid.New(), uuid.New(), Event{VendorStatus: enums.VendorStatusApproved})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// staleRepo hands out an outdated copy of the order on its first read, the
// way a concurrent writer committing between our read and write would.
type staleRepo struct {
	Repository
	stale *models.Order
	reads *int
}

func (r staleRepo) WithTx(tx *gorm.DB) Repository {
	return staleRepo{Repository: r.Repository.WithTx(tx), stale: r.stale, reads: r.reads}
}

func (r staleRepo) FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	*r.reads++
	if *r.reads == 1 {
		copied := *r.stale
		return &copied, nil
	}
	return r.Repository.FindByID(ctx, businessID, orderID)
}

func TestApplyPaymentEventRereadsAfterConcurrentAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, order))
	stale := *order

	_, err := f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{VendorStatus: enums.VendorStatusApproved, PaymentID: "9", Source: SourceWebhook})
	require.NoError(t, err)

	reads := 0
	svc, err := NewService(ServiceParams{
		Repo:   staleRepo{Repository: f.repo, stale: &stale, reads: &reads},
		Tx:     dbpkg.FromGorm(f.db),
		Outbox: outbox.NewService(outbox.NewRepository(f.db), nil),
	})
	require.NoError(t, err)

	result, err := svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{VendorStatus: enums.VendorStatusInProcess, PaymentID: "9", Source: SourceRedirect})
	require.NoError(t, err)
	require.Equal(t, 2, reads, "the conditional write misses and the order is read again")
	require.Equal(t, OutcomeBlocked, result.Outcome)

	stored, err := f.svc.Get(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
}

func TestAdminApplyPaymentEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	order.PaymentMethod = enums.PaymentMethodTransfer
	require.NoError(t, f.svc.Create(ctx, order))

	_, err := f.svc.AdminApplyPaymentEvent(ctx, AdminPaymentEventInput{
		BusinessID: order.BusinessID, OrderID: order.ID, VendorStatus: "refunded", ActorSubject: "ops@example.com",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AdminApplyPaymentEvent(ctx, AdminPaymentEventInput{
		BusinessID: order.BusinessID, OrderID: order.ID, VendorStatus: "approved",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	result, err := f.svc.AdminApplyPaymentEvent(ctx, AdminPaymentEventInput{
		BusinessID: order.BusinessID, OrderID: order.ID, VendorStatus: "approved", ActorSubject: "ops@example.com", ActorRole: "admin",
	})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, result.To)

	rows := outboxRows(t, f.db, enums.EventOrderPaymentStatusChanged)
	require.Len(t, rows, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	require.Equal(t, "ops@example.com", envelope.Actor.Subject)

	// an admin cannot walk a paid order back either
	result, err = f.svc.AdminApplyPaymentEvent(ctx, AdminPaymentEventInput{
		BusinessID: order.BusinessID, OrderID: order.ID, VendorStatus: "rejected", ActorSubject: "ops@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeBlocked, result.Outcome)
}

func TestGetOrderStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, order))

	view, err := f.svc.GetOrderStatus(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ResultPagePending, view.Category)

	_, err = f.svc.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, Event{VendorStatus: enums.VendorStatusRejected, Source: SourceWebhook})
	require.NoError(t, err)

	view, err = f.svc.GetOrderStatus(ctx, order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ResultPageFailure, view.Category)
	require.Equal(t, enums.OrderStatusCancelled, view.Status)
}

func TestListSweepCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, old))
	require.NoError(t, f.svc.SetPreference(ctx, old.BusinessID, old.ID, "pref-1"))

	fresh := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, fresh))
	require.NoError(t, f.svc.SetPreference(ctx, fresh.BusinessID, fresh.ID, "pref-2"))

	cash := newOrder(uuid.New())
	cash.PaymentMethod = enums.PaymentMethodCash
	require.NoError(t, f.svc.Create(ctx, cash))

	require.NoError(t, f.db.Model(&models.Order{}).Where("id IN ?", []string{old.ID.String(), cash.ID.String()}).
		Update("created_at", now.Add(-time.Hour)).Error)

	rows, err := f.svc.ListSweepCandidates(ctx, 10*time.Minute, 72*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, old.ID, rows[0].ID)
	require.Equal(t, "pref-1", *rows[0].PreferenceID)
}

func TestListSweepCandidatesRotatesClaimedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, first))
	require.NoError(t, f.svc.SetPreference(ctx, first.BusinessID, first.ID, "pref-1"))
	second := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(ctx, second))
	require.NoError(t, f.svc.SetPreference(ctx, second.BusinessID, second.ID, "pref-2"))

	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", first.ID.String()).
		Update("created_at", now.Add(-2*time.Hour)).Error)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", second.ID.String()).
		Update("created_at", now.Add(-time.Hour)).Error)

	rows, err := f.svc.ListSweepCandidates(ctx, 10*time.Minute, 72*time.Hour, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, first.ID, rows[0].ID)

	rows, err = f.svc.ListSweepCandidates(ctx, 10*time.Minute, 72*time.Hour, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, second.ID, rows[0].ID, "claimed order goes behind unswept ones")

	stored, err := f.svc.Get(ctx, first.BusinessID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSweptAt)
}

func TestCreateDuplicateOrderIsConflict(t *testing.T) {
	f := newFixture(t)
	order := newOrder(uuid.New())
	require.NoError(t, f.svc.Create(context.Background(), order))

	dup := newOrder(order.BusinessID)
	dup.ID = order.ID
	err := f.svc.Create(context.Background(), dup)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "err=%v", err)
}
