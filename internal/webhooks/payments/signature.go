package paymentwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var (
	errSignatureMissing = errors.New("signature header missing")
	errSignatureInvalid = errors.New("signature mismatch")
)

// SignedRequest is the raw material a signature is checked against.
type SignedRequest struct {
	Signature string
	RequestID string
	URL       string
	Body      []byte
	DataID    string
}

// Verifier checks notification signatures. A zero Verifier accepts
// everything, matching deployments that did not configure a secret.
type Verifier struct {
	scheme string
	secret []byte
}

const (
	schemeMercadoPago = "mercadopago"
	schemeSquare      = "square"
)

// NewMercadoPagoVerifier checks the x-signature header ("ts=...,v1=...") over
// "id:{data.id};request-id:{x-request-id};ts:{ts};".
func NewMercadoPagoVerifier(secret string) Verifier {
	return Verifier{scheme: schemeMercadoPago, secret: []byte(strings.TrimSpace(secret))}
}

// NewSquareVerifier checks x-square-hmacsha256-signature, a base64 HMAC over
// the notification URL followed by the raw body.
func NewSquareVerifier(secret string) Verifier {
	return Verifier{scheme: schemeSquare, secret: []byte(strings.TrimSpace(secret))}
}

// VerifierFor returns the verifier matching the configured provider.
func VerifierFor(cfg *config.Config) Verifier {
	if cfg.Gateway.IsSquare() {
		return NewSquareVerifier(cfg.Square.WebhookSecret)
	}
	return NewMercadoPagoVerifier(cfg.Gateway.WebhookSecret)
}

// Enabled reports whether a secret is configured.
func (v Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify returns nil when the request is authentic or verification is off.
func (v Verifier) Verify(req SignedRequest) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(req.Signature) == "" {
		return errSignatureMissing
	}
	switch v.scheme {
	case schemeSquare:
		return v.verifySquare(req)
	default:
		return v.verifyMercadoPago(req)
	}
}

func (v Verifier) verifyMercadoPago(req SignedRequest) error {
	var ts, sig string
	for _, part := range strings.Split(req.Signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			sig = strings.TrimSpace(value)
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed x-signature", errSignatureInvalid)
	}
	manifest := MercadoPagoManifest(req.DataID, req.RequestID, ts)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return errSignatureInvalid
	}
	return nil
}

func (v Verifier) verifySquare(req SignedRequest) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(req.URL))
	mac.Write(req.Body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(req.Signature))) {
		return errSignatureInvalid
	}
	return nil
}

// MercadoPagoManifest is the string MercadoPago signs. Empty parts are
// omitted the same way the gateway omits them.
func MercadoPagoManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
