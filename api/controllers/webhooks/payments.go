package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/payments"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const maxNotificationBytes = 1 << 20

type notificationSubmitter interface {
	Submit(ctx context.Context, n paymentwebhook.Notification) error
}

type signatureVerifier interface {
	Verify(req paymentwebhook.SignedRequest) error
}

// PaymentNotification receives gateway payment notifications. It always
// answers 200 {"received": true}: the gateway retries anything else, and the
// notification is only a hint to go read the payment. Processing happens on
// the dispatcher after the response is written.
func PaymentNotification(dispatcher notificationSubmitter, verifier signatureVerifier, notificationURL string, m *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer responses.WriteSuccess(w, map[string]bool{"received": true})

		body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			logWarn(ctx, logg, "payment notification body unreadable", err)
		}

		n := paymentwebhook.ParseNotification(r.URL.Query(), body)
		n.RequestID = strings.TrimSpace(r.Header.Get("X-Request-Id"))

		if verifier != nil {
			signed := paymentwebhook.SignedRequest{
				Signature: firstHeader(r, "X-Signature", "X-Square-Hmacsha256-Signature"),
				RequestID: n.RequestID,
				URL:       signedURL(notificationURL, r),
				Body:      body,
				DataID:    firstNonEmpty(r.URL.Query().Get("data.id"), n.ID),
			}
			if err := verifier.Verify(signed); err != nil {
				m.IncNotification(paymentwebhook.OutcomeBadSignature)
				logWarn(logg.WithField(ctx, "notification_id", n.ID), logg, "payment notification signature rejected", err)
				return
			}
		}

		if dispatcher == nil {
			logWarn(ctx, logg, "payment notification dropped", errors.New("dispatcher unavailable"))
			return
		}
		if err := dispatcher.Submit(ctx, n); err != nil {
			logWarn(logg.WithField(ctx, "notification_id", n.ID), logg, "payment notification dropped", err)
		}
	}
}

func signedURL(base string, r *http.Request) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	if r.URL.RawQuery == "" || strings.Contains(base, "?") {
		return base
	}
	return base + "?" + r.URL.RawQuery
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func logWarn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Warn(logg.WithField(ctx, "error", err.Error()), msg)
}
