package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the durable order record. Items hold a snapshot of the catalog at
// checkout time.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID        uuid.UUID           `gorm:"column:business_id;type:uuid;not null"`
	Items             types.OrderItems    `gorm:"column:items;type:jsonb;serializer:json;not null"`
	CustomerName      string              `gorm:"column:customer_name;not null"`
	CustomerPhone     string              `gorm:"column:customer_phone;not null"`
	CustomerEmail     *string             `gorm:"column:customer_email"`
	CustomerAddress   *string             `gorm:"column:customer_address"`
	Total             decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PreferenceID      *string             `gorm:"column:preference_id"`
	ExternalPaymentID *string             `gorm:"column:external_payment_id"`
	Notes             *string             `gorm:"column:notes"`
	LastSweptAt       *time.Time          `gorm:"column:last_swept_at"`
	CreatedAt         time.Time           `gorm:"column:created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at"`
}

// Customer returns the contact block of the order.
func (o *Order) Customer() types.Customer {
	return types.Customer{
		Name:    o.CustomerName,
		Phone:   o.CustomerPhone,
		Email:   o.CustomerEmail,
		Address: o.CustomerAddress,
	}
}
