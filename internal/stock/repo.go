package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository reads catalog items. The catalog service owns writes.
type Repository interface {
	FindByID(ctx context.Context, businessID, itemID uuid.UUID) (*models.CatalogItem, error)
	FindByIDs(ctx context.Context, businessID uuid.UUID, itemIDs []uuid.UUID) ([]models.CatalogItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByID returns gorm.ErrRecordNotFound when the item does not exist.
func (r *repository) FindByID(ctx context.Context, businessID, itemID uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessID, itemID).
		Take(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByIDs(ctx context.Context, businessID uuid.UUID, itemIDs []uuid.UUID) ([]models.CatalogItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var items []models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND id IN ?", businessID, itemIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
