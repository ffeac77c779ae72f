package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type samplePayload struct {
	Name  string  `json:"name" validate:"required,max=5"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestDecodeJSONBody(t *testing.T) {
	var ok samplePayload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`))
	require.NoError(t, DecodeJSONBody(req, &ok))
	require.Equal(t, "ana", ok.Name)

	cases := map[string]string{
		"malformed":     `{"name":`,
		"unknown field": `{"name":"ana","role":"admin"}`,
		"missing":       `{}`,
		"too long":      `{"name":"anastasia"}`,
		"bad email":     `{"name":"ana","email":"nope"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dest samplePayload
			err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &dest)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "err=%v", err)
		})
	}
}

func TestDecodeJSONBodyReportsFieldNames(t *testing.T) {
	var dest samplePayload
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, map[string]string{"name": "is required"}, typed.Details())
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(withParam(uuid.Nil.String()), "orderId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseOptionalUUID(t *testing.T) {
	id := uuid.New()
	require.Equal(t, id, ParseOptionalUUID(" "+id.String()+" "))
	require.Equal(t, uuid.Nil, ParseOptionalUUID(""))
	require.Equal(t, uuid.Nil, ParseOptionalUUID("garbage"))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "abc", SanitizeString("  abc  ", 0))
	require.Equal(t, "ab", SanitizeString(" abc", 2))
}
