package enums

import "strings"

// VendorStatus is the closed set of payment outcomes a gateway can report.
// Values the gateway sends that are not listed here parse to
// VendorStatusUnrecognized; supporting a new one means adding a constant and
// a transition for it.
type VendorStatus string

const (
	VendorStatusApproved     VendorStatus = "approved"
	VendorStatusPending      VendorStatus = "pending"
	VendorStatusRejected     VendorStatus = "rejected"
	VendorStatusCancelled    VendorStatus = "cancelled"
	VendorStatusInProcess    VendorStatus = "in_process"
	VendorStatusUnrecognized VendorStatus = "unrecognized"
)

var knownVendorStatuses = []VendorStatus{
	VendorStatusApproved,
	VendorStatusPending,
	VendorStatusRejected,
	VendorStatusCancelled,
	VendorStatusInProcess,
	VendorStatusUnrecognized,
}

// String implements fmt.Stringer.
func (v VendorStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is one of the closed set, including the
// explicit unrecognized variant.
func (v VendorStatus) IsValid() bool {
	for _, candidate := range knownVendorStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is a definitive outcome.
func (v VendorStatus) IsTerminal() bool {
	switch v {
	case VendorStatusApproved, VendorStatusRejected, VendorStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseVendorStatus never fails: anything outside the closed set becomes
// VendorStatusUnrecognized. The "canceled" spelling is accepted as cancelled.
func ParseVendorStatus(raw string) VendorStatus {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "canceled" {
		return VendorStatusCancelled
	}
	for _, candidate := range knownVendorStatuses {
		if candidate == VendorStatusUnrecognized {
			continue
		}
		if string(candidate) == value {
			return candidate
		}
	}
	return VendorStatusUnrecognized
}
