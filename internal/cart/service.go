package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type snapshotter interface {
	Snapshot(ctx context.Context, businessID uuid.UUID, itemIDs []uuid.UUID) (stock.Snapshot, error)
}

// Service validates carts against the live stock ledger.
type Service interface {
	ValidateCart(ctx context.Context, businessID uuid.UUID, entries []Entry) (Result, stock.Snapshot, error)
}

type service struct {
	ledger            snapshotter
	lowStockThreshold int
}

// NewService builds a cart validation service.
func NewService(ledger snapshotter, lowStockThreshold int) (Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if lowStockThreshold < 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &service{ledger: ledger, lowStockThreshold: lowStockThreshold}, nil
}

// ValidateCart merges repeated lines, reads one ledger snapshot and validates
// against it. The snapshot is returned so callers can price the same view.
func (s *service) ValidateCart(ctx context.Context, businessID uuid.UUID, entries []Entry) (Result, stock.Snapshot, error) {
	if len(entries) == 0 {
		return Result{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	merged := MergeEntries(entries)

	snap, err := s.ledger.Snapshot(ctx, businessID, ItemIDs(merged))
	if err != nil {
		return Result{}, nil, err
	}
	return Validate(snap, merged, s.lowStockThreshold), snap, nil
}

// AsError converts an invalid result into a VALIDATION_ERROR carrying the
// itemized line errors. Valid results return nil.
func AsError(result Result) error {
	if result.IsValid {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart has %d invalid line(s)", len(result.Errors))).
		WithDetails(map[string]any{"errors": result.Errors})
}
