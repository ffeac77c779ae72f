package checkout

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// totalTolerance is the largest accepted gap between the stored total and the
// sum of the item snapshot.
var totalTolerance = decimal.RequireFromString("0.01")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateCustomer checks the buyer contact block.
func ValidateCustomer(customer types.Customer) error {
	if err := validate.Struct(customer); err != nil {
		details := map[string]string{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range errs {
				details[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid customer").WithDetails(details)
	}
	if strings.TrimSpace(customer.Name) == "" || strings.TrimSpace(customer.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name and phone are required")
	}
	return nil
}

// VerifyTotal ensures total matches the item snapshot within one cent.
func VerifyTotal(items types.OrderItems, total decimal.Decimal) error {
	expected := items.Total()
	if expected.Sub(total).Abs().GreaterThan(totalTolerance) {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("order total %s does not match items %s", total.StringFixed(2), expected.StringFixed(2)))
	}
	return nil
}

// ResultURL builds the buyer-facing result page for an order:
// {base}/checkout/{page}?orderId=...&business=...
func ResultURL(base string, page enums.ResultPage, orderID, businessID uuid.UUID) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid back url base %q", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/checkout/" + page.String()
	q := url.Values{}
	q.Set("orderId", orderID.String())
	q.Set("business", businessID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NotificationURL scopes the gateway notification endpoint to a business so
// webhooks can resolve the tenant credentials.
func NotificationURL(endpoint string, businessID uuid.UUID) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid notification url %q", endpoint)
	}
	q := u.Query()
	q.Set("business", businessID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
