package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// StatusView is the canonical payment state of an order as shown to buyers.
type StatusView struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Category      enums.ResultPage    `json:"category"`
	Total         decimal.Decimal     `json:"total"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// AdminPaymentEventInput is a manual payment correction by an operator.
type AdminPaymentEventInput struct {
	BusinessID   uuid.UUID
	OrderID      uuid.UUID
	VendorStatus string
	PaymentID    string
	ActorSubject string
	ActorRole    string
}
