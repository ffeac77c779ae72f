package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Client calls the MercadoPago checkout and payments APIs through the
// official SDK. The access token is passed per call because every business
// owns its own account.
type Client struct {
	requester *requester
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.requester.httpClient = client
		}
	}
}

// WithBaseURL points the SDK at another API host (sandbox proxies, tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed == "" {
			return
		}
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			c.requester.baseURL = parsed
		}
	}
}

// NewClient builds a MercadoPago client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		requester: &requester{httpClient: &http.Client{Timeout: 15 * time.Second}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Item is one line of a checkout preference.
type Item struct {
	ID         string
	Title      string
	Quantity   int
	UnitPrice  float64
	CurrencyID string
}

// Phone is the payer phone block.
type Phone struct {
	Number string
}

// Payer identifies the buyer.
type Payer struct {
	Name  string
	Email string
	Phone *Phone
}

// BackURLs are the result pages MercadoPago redirects to.
type BackURLs struct {
	Success string
	Pending string
	Failure string
}

// PreferenceRequest describes the checkout to create.
type PreferenceRequest struct {
	Items             []Item
	Payer             *Payer
	BackURLs          BackURLs
	AutoReturn        string
	ExternalReference string
	NotificationURL   string
}

// Preference is the created checkout.
type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// Payment is the subset of the payment resource the storefront reads.
type Payment struct {
	ID                json.Number
	Status            string
	StatusDetail      string
	ExternalReference string
}

// CreatePreference creates a checkout preference. The external reference is
// also sent as the idempotency key so retried creations collapse.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, req PreferenceRequest) (*Preference, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercadopago client not configured")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference requires at least one item")
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	cfg, err := c.config(accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := preference.NewClient(cfg).Create(withIdempotencyKey(ctx, req.ExternalReference), toSDKPreference(req))
	if err != nil {
		return nil, mapError(err, "create preference")
	}
	if resp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercadopago returned a preference without id")
	}
	return &Preference{ID: resp.ID, InitPoint: resp.InitPoint, SandboxInitPoint: resp.SandboxInitPoint}, nil
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercadopago client not configured")
	}
	id, err := strconv.Atoi(strings.TrimSpace(paymentID))
	if err != nil || id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id must be a positive number")
	}
	cfg, err := c.config(accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := payment.NewClient(cfg).Get(ctx, id)
	if err != nil {
		return nil, mapError(err, "get payment")
	}
	out := fromSDKPayment(*resp)
	return &out, nil
}

// SearchLatestPayment returns the most recent payment carrying the external
// reference, or nil when none exists.
func (c *Client) SearchLatestPayment(ctx context.Context, accessToken, externalReference string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercadopago client not configured")
	}
	trimmed := strings.TrimSpace(externalReference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	cfg, err := c.config(accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := payment.NewClient(cfg).Search(ctx, payment.SearchRequest{
		Limit: 1,
		Filters: map[string]string{
			"external_reference": trimmed,
			"sort":               "date_created",
			"criteria":           "desc",
		},
	})
	if err != nil {
		return nil, mapError(err, "search payments")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	out := fromSDKPayment(resp.Results[0])
	return &out, nil
}

func (c *Client) config(accessToken string) (*mpconfig.Config, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "mercadopago access token is required")
	}
	cfg, err := mpconfig.New(token, mpconfig.WithHTTPClient(c.requester))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mercadopago config")
	}
	return cfg, nil
}

func toSDKPreference(req PreferenceRequest) preference.Request {
	items := make([]preference.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, preference.ItemRequest{
			ID:         item.ID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CurrencyID: item.CurrencyID,
		})
	}
	out := preference.Request{
		Items: items,
		BackURLs: &preference.BackURLsRequest{
			Success: req.BackURLs.Success,
			Pending: req.BackURLs.Pending,
			Failure: req.BackURLs.Failure,
		},
		AutoReturn:        req.AutoReturn,
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
	}
	if req.Payer != nil {
		out.Payer = &preference.PayerRequest{Name: req.Payer.Name, Email: req.Payer.Email}
		if req.Payer.Phone != nil {
			out.Payer.Phone = &preference.PhoneRequest{Number: req.Payer.Phone.Number}
		}
	}
	return out
}

func fromSDKPayment(resp payment.Response) Payment {
	return Payment{
		ID:                json.Number(strconv.Itoa(resp.ID)),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
	}
}

func mapError(err error, op string) error {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		return pkgerrors.Wrap(codeForStatus(respErr.StatusCode), err, op+" request failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeCredentialsUnavailable
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
