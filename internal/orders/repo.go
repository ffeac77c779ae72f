package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	// UpdatePayment writes the payment fields of next only if the stored
	// payment status still equals expected. It reports whether a row changed.
	UpdatePayment(ctx context.Context, next *models.Order, expected enums.PaymentStatus) (bool, error)
	SetPreference(ctx context.Context, businessID, orderID uuid.UUID, preferenceID string) error
	// ListPendingGateway returns pending gateway orders created inside the
	// window, never-swept rows first and then least recently swept.
	ListPendingGateway(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error)
	MarkSwept(ctx context.Context, orderIDs []uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", orderID, businessID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdatePayment(ctx context.Context, next *models.Order, expected enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND business_id = ? AND payment_status = ?", next.ID, next.BusinessID, expected).
		Updates(map[string]any{
			"status":              next.Status,
			"payment_status":      next.PaymentStatus,
			"external_payment_id": next.ExternalPaymentID,
			"updated_at":          next.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetPreference(ctx context.Context, businessID, orderID uuid.UUID, preferenceID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND business_id = ?", orderID, businessID).
		Updates(map[string]any{
			"preference_id": preferenceID,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repository) ListPendingGateway(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_method = ?", enums.PaymentMethodGateway).
		Where("status = ?", enums.OrderStatusPending).
		Where("created_at <= ? AND created_at >= ?", createdBefore, createdAfter).
		Where("(external_payment_id IS NOT NULL OR preference_id IS NOT NULL)").
		Order("last_swept_at IS NOT NULL").
		Order("last_swept_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkSwept(ctx context.Context, orderIDs []uuid.UUID, at time.Time) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		UpdateColumn("last_swept_at", at).Error
}
