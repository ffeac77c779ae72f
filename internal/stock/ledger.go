package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Ledger is the read side of catalog availability: point reads, snapshots
// for cart validation, and shared live subscriptions.
type Ledger struct {
	repo Repository
	hub  *Hub
}

// NewLedger wires the ledger to its repository and subscription hub.
func NewLedger(repo Repository, hub *Hub) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	if hub == nil {
		return nil, errors.New("stock hub required")
	}
	return &Ledger{repo: repo, hub: hub}, nil
}

// GetItem returns the catalog item or a NOT_FOUND error.
func (l *Ledger) GetItem(ctx context.Context, businessID, itemID uuid.UUID) (*models.CatalogItem, error) {
	item, err := l.repo.FindByID(ctx, businessID, itemID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(Key{BusinessID: businessID, ItemID: itemID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read catalog item")
	}
	return item, nil
}

// Snapshot reads every requested item in one query. Missing items are simply
// absent from the result.
func (l *Ledger) Snapshot(ctx context.Context, businessID uuid.UUID, itemIDs []uuid.UUID) (Snapshot, error) {
	items, err := l.repo.FindByIDs(ctx, businessID, dedupe(itemIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read catalog snapshot")
	}
	snap := make(Snapshot, len(items))
	for _, item := range items {
		snap[item.ID] = item
	}
	return snap, nil
}

// Subscribe streams the item's availability, starting with its current
// value, until ctx is done or the subscription is released.
func (l *Ledger) Subscribe(ctx context.Context, businessID, itemID uuid.UUID) (*Subscription, error) {
	return l.hub.Subscribe(ctx, Key{BusinessID: businessID, ItemID: itemID})
}

func notFound(key Key) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("catalog item %s not found", key.ItemID)).
		WithDetails(map[string]any{"item_id": key.ItemID.String()})
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
