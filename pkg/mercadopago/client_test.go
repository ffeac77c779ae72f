package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestClient(rt roundTripFunc) *Client {
	return NewClient(WithBaseURL("http://mp.test"), WithHTTPClient(&http.Client{Transport: rt}))
}

func TestCreatePreferenceRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any

	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusCreated, `{"id":"pref_1","init_point":"https://mp.test/checkout/pref_1"}`), nil
	})

	pref, err := client.CreatePreference(context.Background(), "tok", PreferenceRequest{
		Items:             []Item{{ID: "item", Title: "Pan", Quantity: 2, UnitPrice: 3.5, CurrencyID: "ARS"}},
		BackURLs:          BackURLs{Success: "s", Pending: "p", Failure: "f"},
		AutoReturn:        "approved",
		ExternalReference: "order-1",
		NotificationURL:   "https://shop.test/api/v1/webhooks/payments",
	})
	if err != nil {
		t.Fatalf("create preference: %v", err)
	}
	if pref.ID != "pref_1" || pref.InitPoint != "https://mp.test/checkout/pref_1" {
		t.Fatalf("unexpected preference %+v", pref)
	}
	if captured.Method != http.MethodPost || captured.URL.String() != "http://mp.test/checkout/preferences" {
		t.Fatalf("unexpected request %s %s", captured.Method, captured.URL)
	}
	if captured.Header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("missing bearer token")
	}
	if captured.Header.Get("X-Idempotency-Key") != "order-1" {
		t.Fatalf("unexpected idempotency key %q", captured.Header.Get("X-Idempotency-Key"))
	}
	if payload["external_reference"] != "order-1" {
		t.Fatalf("unexpected external reference %v", payload["external_reference"])
	}
	items := payload["items"].([]any)
	if items[0].(map[string]any)["unit_price"] != 3.5 {
		t.Fatalf("unit price must be numeric, got %v", items[0])
	}
}

func TestCreatePreferenceValidatesInput(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})

	_, err := client.CreatePreference(context.Background(), "tok", PreferenceRequest{ExternalReference: "x"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = client.CreatePreference(context.Background(), "", PreferenceRequest{Items: []Item{{ID: "a"}}, ExternalReference: "x"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeCredentialsUnavailable) {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestGetPaymentDecodesNumericID(t *testing.T) {
	var capturedURL string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return jsonResponse(http.StatusOK, `{"id":1234567890123,"status":"approved","external_reference":"order-1"}`), nil
	})

	payment, err := client.GetPayment(context.Background(), "tok", "1234567890123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if capturedURL != "http://mp.test/v1/payments/1234567890123" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if payment.ID.String() != "1234567890123" || payment.Status != "approved" || payment.ExternalReference != "order-1" {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestSearchLatestPayment(t *testing.T) {
	var query string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		query = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `{"results":[{"id":9,"status":"rejected","external_reference":"order-1"}]}`), nil
	})

	payment, err := client.SearchLatestPayment(context.Background(), "tok", "order-1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if payment == nil || payment.Status != "rejected" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if !strings.Contains(query, "external_reference=order-1") || !strings.Contains(query, "criteria=desc") {
		t.Fatalf("unexpected query %q", query)
	}

	empty := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"results":[]}`), nil
	})
	payment, err = empty.SearchLatestPayment(context.Background(), "tok", "order-2")
	if err != nil || payment != nil {
		t.Fatalf("expected no payment, got %+v %v", payment, err)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeCredentialsUnavailable},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusTooManyRequests, pkgerrors.CodeDependency},
		{http.StatusBadGateway, pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		client := newTestClient(func(*http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{"message":"boom"}`), nil
		})
		_, err := client.GetPayment(context.Background(), "tok", "1")
		if !pkgerrors.IsCode(err, tc.code) {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.code, err)
		}
	}
}

func TestTransportErrorIsDependency(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	_, err := client.GetPayment(context.Background(), "tok", "1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("transport errors must be retryable")
	}
}

func TestGetPaymentRejectsNonNumericID(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := client.GetPayment(context.Background(), "tok", "pay_abc")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIdempotencyKeyOnlyOnPreferenceCreation(t *testing.T) {
	var keys []string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		keys = append(keys, req.Header.Get("X-Idempotency-Key"))
		if req.Method == http.MethodPost {
			return jsonResponse(http.StatusCreated, `{"id":"pref_1"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":5,"status":"pending"}`), nil
	})

	for i := 0; i < 2; i++ {
		if _, err := client.CreatePreference(context.Background(), "tok", PreferenceRequest{
			Items:             []Item{{ID: "a", Title: "Pan", Quantity: 1, UnitPrice: 1}},
			ExternalReference: "order-9",
		}); err != nil {
			t.Fatalf("create preference: %v", err)
		}
	}
	if _, err := client.GetPayment(context.Background(), "tok", "5"); err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if keys[0] != "order-9" || keys[1] != "order-9" {
		t.Fatalf("retried creations must share the order key, got %v", keys)
	}
	if keys[2] == "order-9" {
		t.Fatalf("payment lookups must not carry the preference key")
	}
}
