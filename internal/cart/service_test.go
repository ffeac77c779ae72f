package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubSnapshotter struct {
	snap      stock.Snapshot
	err       error
	requested []uuid.UUID
}

func (s *stubSnapshotter) Snapshot(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (stock.Snapshot, error) {
	s.requested = ids
	return s.snap, s.err
}

func TestServiceValidateCartMergesDuplicates(t *testing.T) {
	item := models.CatalogItem{ID: uuid.New(), Name: "Facturas", TrackStock: true, Stock: 3}
	ledger := &stubSnapshotter{snap: snapshotOf(item)}
	svc, err := NewService(ledger, DefaultLowStockThreshold)
	require.NoError(t, err)

	result, snap, err := svc.ValidateCart(context.Background(), uuid.New(), []Entry{
		{ItemID: item.ID, Quantity: 2},
		{ItemID: item.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, []uuid.UUID{item.ID}, ledger.requested)
	require.False(t, result.IsValid, "2+2 exceeds the 3 in stock")
	require.Equal(t, 4, result.Errors[0].RequestedQuantity)

	asErr := AsError(result)
	require.True(t, pkgerrors.IsCode(asErr, pkgerrors.CodeValidation))
	require.NotNil(t, pkgerrors.As(asErr).Details())
}

func TestServiceValidateCartErrors(t *testing.T) {
	svc, err := NewService(&stubSnapshotter{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "read")}, DefaultLowStockThreshold)
	require.NoError(t, err)

	_, _, err = svc.ValidateCart(context.Background(), uuid.New(), nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = svc.ValidateCart(context.Background(), uuid.New(), []Entry{{ItemID: uuid.New(), Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = NewService(nil, 5)
	require.Error(t, err)

	require.NoError(t, AsError(Result{IsValid: true}))
}
