package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DefaultLowStockThreshold is the stock level at or below which a valid
// tracked line gets a low-stock warning.
const DefaultLowStockThreshold = 5

// Entry is one requested cart line.
type Entry struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

// LineError explains why a cart line is invalid.
type LineError struct {
	ItemID            uuid.UUID           `json:"item_id"`
	ItemName          string              `json:"item_name,omitempty"`
	Type              enums.CartIssueType `json:"type"`
	Message           string              `json:"message"`
	RequestedQuantity int                 `json:"requested_quantity"`
	AvailableStock    *int                `json:"available_stock,omitempty"`
}

// LineWarning is a non-blocking notice about a valid cart line.
type LineWarning struct {
	ItemID         uuid.UUID           `json:"item_id"`
	ItemName       string              `json:"item_name"`
	Type           enums.CartIssueType `json:"type"`
	Message        string              `json:"message"`
	AvailableStock int                 `json:"available_stock"`
}

// Result is the outcome of validating a cart.
type Result struct {
	IsValid  bool          `json:"is_valid"`
	Errors   []LineError   `json:"errors"`
	Warnings []LineWarning `json:"warnings"`
}

// Validate checks every entry against the snapshot. It is pure: the same
// snapshot and entries always yield the same result, with errors and
// warnings reported in entry order.
func Validate(snap stock.Snapshot, entries []Entry, lowStockThreshold int) Result {
	result := Result{IsValid: true, Errors: []LineError{}, Warnings: []LineWarning{}}

	for _, entry := range entries {
		if entry.Quantity <= 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, LineError{
				ItemID:            entry.ItemID,
				Type:              enums.CartIssueInvalidQuantity,
				Message:           "quantity must be greater than zero",
				RequestedQuantity: entry.Quantity,
			})
			continue
		}

		item, ok := snap.Lookup(entry.ItemID)
		if !ok {
			result.IsValid = false
			result.Errors = append(result.Errors, LineError{
				ItemID:            entry.ItemID,
				Type:              enums.CartIssueItemNotFound,
				Message:           "item not found",
				RequestedQuantity: entry.Quantity,
			})
			continue
		}

		if !item.TrackStock {
			continue
		}

		available := item.Stock
		switch {
		case !stock.AvailableFlag(item):
			result.IsValid = false
			result.Errors = append(result.Errors, LineError{
				ItemID:            item.ID,
				ItemName:          item.Name,
				Type:              enums.CartIssueUnavailable,
				Message:           item.Name + " is not available",
				RequestedQuantity: entry.Quantity,
				AvailableStock:    &available,
			})
		case entry.Quantity > item.Stock:
			result.IsValid = false
			result.Errors = append(result.Errors, LineError{
				ItemID:            item.ID,
				ItemName:          item.Name,
				Type:              enums.CartIssueInsufficientStock,
				Message:           "not enough stock for " + item.Name,
				RequestedQuantity: entry.Quantity,
				AvailableStock:    &available,
			})
		case item.Stock <= lowStockThreshold:
			result.Warnings = append(result.Warnings, LineWarning{
				ItemID:         item.ID,
				ItemName:       item.Name,
				Type:           enums.CartIssueLowStock,
				Message:        "only a few units of " + item.Name + " left",
				AvailableStock: available,
			})
		}
	}

	return result
}

// MergeEntries folds repeated items into a single line, keeping the order in
// which each item first appeared.
func MergeEntries(entries []Entry) []Entry {
	index := make(map[uuid.UUID]int, len(entries))
	merged := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if i, ok := index[entry.ItemID]; ok {
			merged[i].Quantity += entry.Quantity
			continue
		}
		index[entry.ItemID] = len(merged)
		merged = append(merged, entry)
	}
	return merged
}

// ItemIDs lists the distinct item ids referenced by entries.
func ItemIDs(entries []Entry) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.ItemID]; ok {
			continue
		}
		seen[entry.ItemID] = struct{}{}
		ids = append(ids, entry.ItemID)
	}
	return ids
}
