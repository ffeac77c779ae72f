package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const backURLBase = "https://shop.example.com"

type fakeGateway struct {
	payment gateway.Payment
	err     error
	calls   int
}

func (f *fakeGateway) GetPayment(context.Context, uuid.UUID, string) (gateway.Payment, error) {
	f.calls++
	return f.payment, f.err
}

type fixture struct {
	orders  orders.Service
	gateway *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(db),
		Tx:     dbpkg.FromGorm(db),
		Outbox: outbox.NewService(outbox.NewRepository(db), nil),
	})
	require.NoError(t, err)
	return &fixture{orders: svc, gateway: &fakeGateway{}}
}

func (f *fixture) reconciler(t *testing.T, policy config.HintPolicy) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Orders: f.orders, Gateway: f.gateway, Policy: policy, BackURLBase: backURLBase})
	require.NoError(t, err)
	return svc
}

func (f *fixture) createOrder(t *testing.T, method enums.PaymentMethod) *models.Order {
	t.Helper()
	order := &models.Order{
		BusinessID:    uuid.New(),
		Items:         types.OrderItems{{ItemID: uuid.New(), Name: "Empanada", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 4}},
		CustomerName:  "Luis",
		CustomerPhone: "1144440000",
		Total:         decimal.RequireFromString("10.00"),
		PaymentMethod: method,
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	return order
}

func (f *fixture) apply(t *testing.T, order *models.Order, status enums.VendorStatus) {
	t.Helper()
	_, err := f.orders.ApplyPaymentEvent(context.Background(), order.BusinessID, order.ID, orders.Event{
		VendorStatus: status, PaymentID: "pay-webhook", Source: orders.SourceWebhook,
	})
	require.NoError(t, err)
}

func landingFor(order *models.Order, page enums.ResultPage) Landing {
	return Landing{Page: page, BusinessID: order.BusinessID, OrderID: order.ID}
}

func TestFailurePageForPaidOrderRedirectsToSuccess(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)
	f.apply(t, order, enums.VendorStatusApproved)

	landing := landingFor(order, enums.ResultPageFailure)
	landing.VendorStatus = "rejected"
	landing.CollectionStatus = "rejected"

	out, err := f.reconciler(t, config.HintPolicyVerify).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.Equal(t, enums.ResultPageSuccess, out.Resolved)
	require.True(t, out.Redirect)
	require.Equal(t, backURLBase+"/checkout/success?business="+order.BusinessID.String()+"&orderId="+order.ID.String(), out.RedirectURL)
	require.False(t, out.Applied)
	require.Zero(t, f.gateway.calls, "resolved orders ignore hints")
	require.Equal(t, enums.PaymentStatusPaid, out.Order.PaymentStatus)
}

func TestTrustedApprovedHintConfirmsPendingOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)

	landing := landingFor(order, enums.ResultPagePending)
	landing.PaymentID = "pay-1"
	landing.VendorStatus = "approved"

	out, err := f.reconciler(t, config.HintPolicyTrust).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, enums.ResultPageSuccess, out.Resolved)
	require.True(t, out.Redirect)

	stored, err := f.orders.Get(context.Background(), order.BusinessID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.Equal(t, "pay-1", *stored.ExternalPaymentID)
}

func TestVerifiedHintAppliesGatewayStatus(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)
	f.gateway.payment = gateway.Payment{ID: "pay-1", VendorStatus: enums.VendorStatusRejected, ExternalReference: order.ID.String()}

	landing := landingFor(order, enums.ResultPageFailure)
	landing.PaymentID = "pay-1"
	landing.CollectionStatus = "rejected"

	out, err := f.reconciler(t, config.HintPolicyVerify).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, enums.ResultPageFailure, out.Resolved)
	require.False(t, out.Redirect)
	require.Equal(t, enums.PaymentStatusFailed, out.Order.PaymentStatus)
	require.Equal(t, enums.OrderStatusCancelled, out.Order.Status)
}

func TestVerifyFollowsGatewayOverHint(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)
	f.gateway.payment = gateway.Payment{ID: "pay-1", VendorStatus: enums.VendorStatusInProcess, ExternalReference: order.ID.String()}

	landing := landingFor(order, enums.ResultPageSuccess)
	landing.PaymentID = "pay-1"
	landing.VendorStatus = "approved"

	out, err := f.reconciler(t, config.HintPolicyVerify).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusProcessing, out.Order.PaymentStatus)
	require.Equal(t, enums.ResultPagePending, out.Resolved)
	require.True(t, out.Redirect)
}

func TestVerifyWithoutPaymentIDWaitsForWebhook(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)

	landing := landingFor(order, enums.ResultPageSuccess)
	landing.PaymentID = "null"
	landing.VendorStatus = "approved"

	out, err := f.reconciler(t, config.HintPolicyVerify).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Zero(t, f.gateway.calls)
	require.Equal(t, enums.ResultPagePending, out.Resolved)
}

func TestReconcileDegradesToStoredState(t *testing.T) {
	cases := []struct {
		name    string
		payment gateway.Payment
		err     error
	}{
		{"gateway outage", gateway.Payment{}, pkgerrors.New(pkgerrors.CodeDependency, "gateway down")},
		{"credentials missing", gateway.Payment{}, pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "no token")},
		{"payment of another order", gateway.Payment{ID: "pay-1", VendorStatus: enums.VendorStatusApproved, ExternalReference: uuid.NewString()}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.createOrder(t, enums.PaymentMethodGateway)
			f.gateway.payment = tc.payment
			f.gateway.err = tc.err

			landing := landingFor(order, enums.ResultPageSuccess)
			landing.PaymentID = "pay-1"
			landing.VendorStatus = "approved"

			out, err := f.reconciler(t, config.HintPolicyVerify).Reconcile(context.Background(), landing)
			require.NoError(t, err)
			require.True(t, out.Degraded)
			require.False(t, out.Applied)
			require.Equal(t, enums.PaymentStatusPending, out.Order.PaymentStatus)
			require.Equal(t, enums.ResultPagePending, out.Resolved)
			require.Equal(t, StatusPath(order.BusinessID, order.ID), out.StatusURL)
		})
	}
}

func TestContradictoryHintsAreIgnored(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)

	landing := landingFor(order, enums.ResultPageSuccess)
	landing.PaymentID = "pay-1"
	landing.VendorStatus = "approved"
	landing.CollectionStatus = "rejected"

	out, err := f.reconciler(t, config.HintPolicyTrust).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, enums.PaymentStatusPending, out.Order.PaymentStatus)
}

func TestNonGatewayOrdersIgnoreHints(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodCash)

	landing := landingFor(order, enums.ResultPageSuccess)
	landing.VendorStatus = "approved"

	out, err := f.reconciler(t, config.HintPolicyTrust).Reconcile(context.Background(), landing)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, enums.ResultPagePending, out.Resolved)
}

func TestReloadingRedirectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)
	svc := f.reconciler(t, config.HintPolicyTrust)

	landing := landingFor(order, enums.ResultPageSuccess)
	landing.PaymentID = "pay-1"
	landing.VendorStatus = "approved"

	first, err := svc.Reconcile(context.Background(), landing)
	require.NoError(t, err)
	second, err := svc.Reconcile(context.Background(), landing)
	require.NoError(t, err)

	require.Equal(t, first.Order.PaymentStatus, second.Order.PaymentStatus)
	require.Equal(t, first.Resolved, second.Resolved)
	require.False(t, second.Redirect)
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	svc := f.reconciler(t, config.HintPolicyVerify)

	_, err := svc.Reconcile(context.Background(), Landing{Page: enums.ResultPageSuccess, BusinessID: uuid.New(), OrderID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Reconcile(context.Background(), Landing{Page: enums.ResultPageSuccess})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConclusiveHint(t *testing.T) {
	status, ok := conclusiveHint("", "approved")
	require.True(t, ok)
	require.Equal(t, enums.VendorStatusApproved, status)

	status, ok = conclusiveHint("rejected", "cancelled")
	require.True(t, ok)
	require.Equal(t, enums.VendorStatusRejected, status)

	_, ok = conclusiveHint("pending", "in_process", "null")
	require.False(t, ok)
}

func TestNewServiceValidatesDeps(t *testing.T) {
	f := newFixture(t)
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Orders: f.orders, BackURLBase: backURLBase})
	require.Error(t, err, "verify policy needs a payment lookup")
	_, err = NewService(ServiceParams{Orders: f.orders, Policy: config.HintPolicyTrust})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Orders: f.orders, Policy: config.HintPolicyTrust, BackURLBase: backURLBase})
	require.NoError(t, err)
}


type unreadableOrders struct {
	orders.Service
}

func (unreadableOrders) GetOrderStatus(context.Context, uuid.UUID, uuid.UUID) (orders.StatusView, error) {
	return orders.StatusView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "load order")
}

func TestStoreFailureOffersStatusCheck(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodGateway)
	svc, err := NewService(ServiceParams{
		Orders:      unreadableOrders{Service: f.orders},
		Gateway:     f.gateway,
		Policy:      config.HintPolicyVerify,
		BackURLBase: backURLBase,
	})
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), landingFor(order, enums.ResultPageSuccess))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeDependency, typed.Code())
	require.Equal(t, map[string]string{"status_url": StatusPath(order.BusinessID, order.ID)}, typed.Details())
	require.Zero(t, f.gateway.calls)
}
