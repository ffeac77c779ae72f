package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const ctxAdminClaims contextKey = "admin_claims"

// AdminClaimsFromContext returns the admin claims seeded by AdminAuth.
func AdminClaimsFromContext(ctx context.Context) (*auth.AdminClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(ctxAdminClaims).(*auth.AdminClaims)
	return claims, ok && claims != nil
}

// WithAdminClaims injects admin claims into the context.
func WithAdminClaims(ctx context.Context, claims *auth.AdminClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAdminClaims, claims)
}
