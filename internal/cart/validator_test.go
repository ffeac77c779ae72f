package cart

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func boolPtr(v bool) *bool { return &v }

func snapshotOf(items ...models.CatalogItem) stock.Snapshot {
	snap := stock.Snapshot{}
	for _, item := range items {
		snap[item.ID] = item
	}
	return snap
}

func TestValidateInsufficientStockNamesItem(t *testing.T) {
	x := models.CatalogItem{ID: uuid.New(), Name: "X", TrackStock: true, Stock: 3}

	result := Validate(snapshotOf(x), []Entry{{ItemID: x.ID, Quantity: 5}}, DefaultLowStockThreshold)

	require.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	lineErr := result.Errors[0]
	assert.Equal(t, x.ID, lineErr.ItemID)
	assert.Equal(t, "X", lineErr.ItemName)
	assert.Equal(t, enums.CartIssueInsufficientStock, lineErr.Type)
	assert.Equal(t, 5, lineErr.RequestedQuantity)
	require.NotNil(t, lineErr.AvailableStock)
	assert.Equal(t, 3, *lineErr.AvailableStock)
}

func TestValidateUntrackedItemsNeverFailOnStock(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		item := models.CatalogItem{
			ID:         uuid.New(),
			Name:       "untracked",
			TrackStock: false,
			Stock:      rng.Intn(3),
		}
		switch rng.Intn(3) {
		case 0:
			item.IsAvailable = nil
		case 1:
			item.IsAvailable = boolPtr(true)
		case 2:
			item.IsAvailable = boolPtr(false)
		}
		qty := 1 + rng.Intn(10_000)

		result := Validate(snapshotOf(item), []Entry{{ItemID: item.ID, Quantity: qty}}, DefaultLowStockThreshold)
		require.True(t, result.IsValid, "untracked item rejected: %+v qty=%d", item, qty)
		require.Empty(t, result.Errors)
		require.Empty(t, result.Warnings)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	a := models.CatalogItem{ID: uuid.New(), Name: "A", TrackStock: true, Stock: 2}
	b := models.CatalogItem{ID: uuid.New(), Name: "B", TrackStock: true, Stock: 10}
	c := models.CatalogItem{ID: uuid.New(), Name: "C", TrackStock: true, Stock: 4, IsAvailable: boolPtr(false)}
	snap := snapshotOf(a, b, c)
	entries := []Entry{
		{ItemID: a.ID, Quantity: 1},
		{ItemID: uuid.New(), Quantity: 1},
		{ItemID: b.ID, Quantity: 11},
		{ItemID: c.ID, Quantity: 1},
	}

	first := Validate(snap, entries, DefaultLowStockThreshold)
	second := Validate(snap, entries, DefaultLowStockThreshold)
	require.Equal(t, first, second)

	require.False(t, first.IsValid)
	require.Len(t, first.Errors, 3)
	assert.Equal(t, enums.CartIssueItemNotFound, first.Errors[0].Type)
	assert.Equal(t, "item not found", first.Errors[0].Message)
	assert.Equal(t, enums.CartIssueInsufficientStock, first.Errors[1].Type)
	assert.Equal(t, enums.CartIssueUnavailable, first.Errors[2].Type)
	require.Len(t, first.Warnings, 1)
	assert.Equal(t, a.ID, first.Warnings[0].ItemID)
}

func TestValidateLowStockWarningIsNonBlocking(t *testing.T) {
	cases := []struct {
		stock   int
		warning bool
	}{
		{stock: 5, warning: true},
		{stock: 6, warning: false},
		{stock: 1, warning: true},
	}
	for _, tc := range cases {
		item := models.CatalogItem{ID: uuid.New(), Name: "Budin", TrackStock: true, Stock: tc.stock}
		result := Validate(snapshotOf(item), []Entry{{ItemID: item.ID, Quantity: 1}}, DefaultLowStockThreshold)
		require.True(t, result.IsValid)
		if tc.warning {
			require.Len(t, result.Warnings, 1, "stock=%d", tc.stock)
			assert.Equal(t, enums.CartIssueLowStock, result.Warnings[0].Type)
			assert.Equal(t, tc.stock, result.Warnings[0].AvailableStock)
		} else {
			require.Empty(t, result.Warnings, "stock=%d", tc.stock)
		}
	}
}

func TestValidateExactStockIsValid(t *testing.T) {
	item := models.CatalogItem{ID: uuid.New(), Name: "Torta", TrackStock: true, Stock: 8}
	result := Validate(snapshotOf(item), []Entry{{ItemID: item.ID, Quantity: 8}}, DefaultLowStockThreshold)
	require.True(t, result.IsValid)
	require.Empty(t, result.Warnings)
}

func TestValidateRejectsNonPositiveQuantity(t *testing.T) {
	item := models.CatalogItem{ID: uuid.New(), Name: "Torta"}
	result := Validate(snapshotOf(item), []Entry{{ItemID: item.ID, Quantity: 0}}, DefaultLowStockThreshold)
	require.False(t, result.IsValid)
	require.Equal(t, enums.CartIssueInvalidQuantity, result.Errors[0].Type)
}

func TestMergeEntriesKeepsFirstSeenOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	merged := MergeEntries([]Entry{{ItemID: a, Quantity: 1}, {ItemID: b, Quantity: 2}, {ItemID: a, Quantity: 3}})
	require.Equal(t, []Entry{{ItemID: a, Quantity: 4}, {ItemID: b, Quantity: 2}}, merged)
	require.Equal(t, []uuid.UUID{a, b}, ItemIDs(merged))
}
