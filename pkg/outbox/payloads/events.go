package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout persists a new order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	BusinessID    uuid.UUID           `json:"business_id"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
}

// OrderPaymentStatusChangedEvent is emitted whenever a payment event moves an
// order to a new payment status.
type OrderPaymentStatusChangedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	BusinessID        uuid.UUID           `json:"business_id"`
	PreviousStatus    enums.PaymentStatus `json:"previous_payment_status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	Status            enums.OrderStatus   `json:"status"`
	VendorStatus      enums.VendorStatus  `json:"vendor_status"`
	ExternalPaymentID string              `json:"external_payment_id,omitempty"`
	Source            string              `json:"source"`
}
