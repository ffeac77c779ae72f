package enums

import "fmt"

// CartIssueType classifies cart validation errors and warnings.
type CartIssueType string

const (
	CartIssueItemNotFound      CartIssueType = "item_not_found"
	CartIssueInsufficientStock CartIssueType = "insufficient_stock"
	CartIssueUnavailable       CartIssueType = "unavailable"
	CartIssueInvalidQuantity   CartIssueType = "invalid_quantity"
	CartIssueLowStock          CartIssueType = "low_stock"
)

var validCartIssueTypes = []CartIssueType{
	CartIssueItemNotFound,
	CartIssueInsufficientStock,
	CartIssueUnavailable,
	CartIssueInvalidQuantity,
	CartIssueLowStock,
}

// String implements fmt.Stringer.
func (c CartIssueType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartIssueType.
func (c CartIssueType) IsValid() bool {
	for _, candidate := range validCartIssueTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartIssueType converts raw input into a CartIssueType.
func ParseCartIssueType(value string) (CartIssueType, error) {
	for _, candidate := range validCartIssueTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart issue type %q", value)
}
