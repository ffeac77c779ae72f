package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "storefront-admin",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAdminToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	businessID := uuid.New()

	token, err := MintAdminToken(cfg, now, AdminTokenPayload{
		Subject:     "ops@example.com",
		Role:        enums.AdminRoleOperator,
		BusinessIDs: []uuid.UUID{businessID},
	})
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}

	claims, err := ParseAdminToken(cfg, token)
	if err != nil {
		t.Fatalf("parse admin token: %v", err)
	}

	if claims.Subject != "ops@example.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Role != enums.AdminRoleOperator {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if len(claims.BusinessIDs) != 1 || claims.BusinessIDs[0] != businessID {
		t.Fatalf("business scope not preserved: %v", claims.BusinessIDs)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected a generated jti")
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseAdminTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAdminToken(cfg, time.Now(), AdminTokenPayload{Subject: "a", Role: enums.AdminRoleOwner})
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}

	if _, err := ParseAdminToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Secret = "another"
	if _, err := ParseAdminToken(other, token); err == nil {
		t.Fatal("expected error for a token signed with another secret")
	}
}

func TestParseAdminTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAdminToken(cfg, time.Now(), AdminTokenPayload{Subject: "a", Role: enums.AdminRoleOwner})
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAdminToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestParseAdminTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAdminToken(cfg, time.Now().Add(-time.Hour), AdminTokenPayload{Subject: "a", Role: enums.AdminRoleOwner})
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}

	_, err = ParseAdminToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAdminTokenRejectsBadPayload(t *testing.T) {
	cfg := testJWTConfig()
	cases := map[string]AdminTokenPayload{
		"missing role":    {Subject: "a"},
		"unknown role":    {Subject: "a", Role: "viewer"},
		"missing subject": {Subject: "  ", Role: enums.AdminRoleOwner},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := MintAdminToken(cfg, time.Now(), payload); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := MintAdminToken(config.JWTConfig{}, time.Now(), AdminTokenPayload{Subject: "a", Role: enums.AdminRoleOwner}); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestAdminClaimsCanManage(t *testing.T) {
	scoped := uuid.New()
	owner := &AdminClaims{Role: enums.AdminRoleOwner, BusinessIDs: []uuid.UUID{scoped}}
	platform := &AdminClaims{Role: enums.AdminRolePlatform}

	if !owner.CanManage(scoped) {
		t.Fatal("owner should manage its business")
	}
	if owner.CanManage(uuid.New()) {
		t.Fatal("owner must not manage another business")
	}
	if !platform.CanManage(uuid.New()) {
		t.Fatal("platform role manages every business")
	}
	if platform.CanManage(uuid.Nil) {
		t.Fatal("nil business is never manageable")
	}
	var nilClaims *AdminClaims
	if nilClaims.CanManage(scoped) {
		t.Fatal("nil claims manage nothing")
	}
}
