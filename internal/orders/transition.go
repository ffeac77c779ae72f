package orders

import (
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Source names the path a payment event arrived through.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceRedirect Source = "redirect"
	SourceSweep    Source = "sweep"
	SourceAdmin    Source = "admin"
)

// Event is a payment outcome reported for an order.
type Event struct {
	VendorStatus enums.VendorStatus
	PaymentID    string
	Source       Source
	// Actor identifies the operator behind an admin event.
	Actor string
}

// Outcome classifies what Apply did to an order.
type Outcome string

const (
	// OutcomeApplied means the order moved to a new state or gained its payment id.
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged means the order already reflected the event.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeBlocked means the event would have moved payment status backwards.
	OutcomeBlocked Outcome = "blocked"
)

// Transition is the result of applying an event to an order.
type Transition struct {
	Order   models.Order
	From    enums.PaymentStatus
	To      enums.PaymentStatus
	Outcome Outcome
}

// Changed reports whether the order needs to be written.
func (t Transition) Changed() bool {
	return t.Outcome == OutcomeApplied
}

type target struct {
	status        enums.OrderStatus
	paymentStatus enums.PaymentStatus
	keepStatus    bool
}

func targetFor(v enums.VendorStatus) (target, error) {
	switch v {
	case enums.VendorStatusApproved:
		return target{status: enums.OrderStatusConfirmed, paymentStatus: enums.PaymentStatusPaid}, nil
	case enums.VendorStatusPending:
		return target{status: enums.OrderStatusPending, paymentStatus: enums.PaymentStatusPending}, nil
	case enums.VendorStatusRejected, enums.VendorStatusCancelled:
		return target{status: enums.OrderStatusCancelled, paymentStatus: enums.PaymentStatusFailed}, nil
	case enums.VendorStatusInProcess:
		return target{status: enums.OrderStatusPending, paymentStatus: enums.PaymentStatusProcessing}, nil
	case enums.VendorStatusUnrecognized:
		return target{paymentStatus: enums.PaymentStatusUnknown, keepStatus: true}, nil
	}
	return target{}, fmt.Errorf("vendor status %q is not part of the closed set; parse it with enums.ParseVendorStatus", string(v))
}

// rank orders payment statuses along the lattice
// pending|unknown -> processing -> failed -> paid. Writes only move up.
func rank(p enums.PaymentStatus) int {
	switch p {
	case enums.PaymentStatusPaid:
		return 3
	case enums.PaymentStatusFailed:
		return 2
	case enums.PaymentStatusProcessing:
		return 1
	default:
		return 0
	}
}

// Apply maps an order and a payment event to the next order state. It is
// pure and idempotent. Payment status never moves down the lattice, so a paid
// order stays paid and a stale pending event cannot undo a resolution.
func Apply(order models.Order, ev Event) (Transition, error) {
	t, err := targetFor(ev.VendorStatus)
	if err != nil {
		return Transition{}, err
	}

	from := order.PaymentStatus
	result := Transition{Order: order, From: from, To: from}

	if rank(t.paymentStatus) < rank(from) {
		result.Outcome = OutcomeBlocked
		return result, nil
	}

	next := order
	next.PaymentStatus = t.paymentStatus
	if !t.keepStatus {
		next.Status = t.status
	}
	if ev.PaymentID != "" && (next.ExternalPaymentID == nil || *next.ExternalPaymentID != ev.PaymentID) {
		if next.ExternalPaymentID == nil || next.PaymentStatus != from {
			id := ev.PaymentID
			next.ExternalPaymentID = &id
		}
	}

	result.Order = next
	result.To = next.PaymentStatus
	if next.PaymentStatus == order.PaymentStatus && next.Status == order.Status && samePaymentID(next.ExternalPaymentID, order.ExternalPaymentID) {
		result.Outcome = OutcomeUnchanged
		return result, nil
	}
	result.Outcome = OutcomeApplied
	return result, nil
}

func samePaymentID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
