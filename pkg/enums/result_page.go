package enums

import "fmt"

// ResultPage is the category of checkout landing page a buyer should see.
type ResultPage string

const (
	ResultPageSuccess ResultPage = "success"
	ResultPagePending ResultPage = "pending"
	ResultPageFailure ResultPage = "failure"
)

var validResultPages = []ResultPage{
	ResultPageSuccess,
	ResultPagePending,
	ResultPageFailure,
}

// String implements fmt.Stringer.
func (r ResultPage) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ResultPage.
func (r ResultPage) IsValid() bool {
	for _, candidate := range validResultPages {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseResultPage converts raw input into a ResultPage.
func ParseResultPage(value string) (ResultPage, error) {
	for _, candidate := range validResultPages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid result page %q", value)
}

// ResultPageFor maps a canonical payment status to the page that describes it.
func ResultPageFor(p PaymentStatus) ResultPage {
	switch p {
	case PaymentStatusPaid:
		return ResultPageSuccess
	case PaymentStatusFailed:
		return ResultPageFailure
	default:
		return ResultPagePending
	}
}
