package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem is owned by the catalog service; this codebase only reads it.
type CatalogItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID  uuid.UUID       `gorm:"column:business_id;type:uuid;not null"`
	CategoryID  *uuid.UUID      `gorm:"column:category_id;type:uuid"`
	Name        string          `gorm:"column:name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	TrackStock  bool            `gorm:"column:track_stock;not null;default:false"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
	IsAvailable *bool           `gorm:"column:is_available"`
	IsHidden    bool            `gorm:"column:is_hidden;not null;default:false"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}
