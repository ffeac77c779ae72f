package stock

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Key identifies a catalog item within a business.
type Key struct {
	BusinessID uuid.UUID
	ItemID     uuid.UUID
}

func (k Key) String() string {
	return k.BusinessID.String() + "/" + k.ItemID.String()
}

// AvailableFlag reports isAvailable != false; a missing flag counts as available.
func AvailableFlag(item models.CatalogItem) bool {
	return item.IsAvailable == nil || *item.IsAvailable
}

// IsAvailable applies the availability rule: untracked items follow the
// flag alone, tracked items also need stock on hand.
func IsAvailable(item models.CatalogItem) bool {
	if !AvailableFlag(item) {
		return false
	}
	if !item.TrackStock {
		return true
	}
	return item.Stock > 0
}

// Level is the availability view pushed to stock subscribers.
type Level struct {
	ItemID      uuid.UUID `json:"item_id"`
	Stock       int       `json:"stock"`
	TrackStock  bool      `json:"track_stock"`
	IsAvailable bool      `json:"is_available"`
	Available   bool      `json:"available"`
}

// LevelOf projects a catalog item onto its availability view.
func LevelOf(item models.CatalogItem) Level {
	return Level{
		ItemID:      item.ID,
		Stock:       item.Stock,
		TrackStock:  item.TrackStock,
		IsAvailable: AvailableFlag(item),
		Available:   IsAvailable(item),
	}
}

// Snapshot is a point-in-time view of the ledger for a set of items.
type Snapshot map[uuid.UUID]models.CatalogItem

// Lookup returns the item for id, if present in the snapshot.
func (s Snapshot) Lookup(id uuid.UUID) (models.CatalogItem, bool) {
	item, ok := s[id]
	return item, ok
}
