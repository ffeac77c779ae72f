package mercadopago

import (
	"context"
	"net/http"
	"net/url"
)

type idempotencyKey struct{}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// requester is the transport handed to the SDK. It pins the idempotency key
// to the caller's value instead of the SDK's random one and can redirect
// requests to another host.
type requester struct {
	httpClient *http.Client
	baseURL    *url.URL
}

func (r *requester) Do(req *http.Request) (*http.Response, error) {
	if key, ok := req.Context().Value(idempotencyKey{}).(string); ok && key != "" {
		req.Header.Set("X-Idempotency-Key", key)
	}
	if r.baseURL != nil {
		req.URL.Scheme = r.baseURL.Scheme
		req.URL.Host = r.baseURL.Host
		req.Host = r.baseURL.Host
	}
	return r.httpClient.Do(req)
}
