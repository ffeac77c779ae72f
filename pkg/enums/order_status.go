package enums

import "fmt"

// OrderStatus is the fulfilment-facing status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// AllowsPaymentStatus reports whether the (status, paymentStatus) pair is legal.
func (s OrderStatus) AllowsPaymentStatus(p PaymentStatus) bool {
	switch s {
	case OrderStatusConfirmed:
		return p == PaymentStatusPaid
	case OrderStatusCancelled:
		return p == PaymentStatusFailed
	case OrderStatusPending:
		return p == PaymentStatusPending || p == PaymentStatusProcessing || p == PaymentStatusUnknown
	default:
		return false
	}
}
