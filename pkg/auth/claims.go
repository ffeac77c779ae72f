package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AdminTokenPayload captures the data available when minting an admin JWT.
type AdminTokenPayload struct {
	Subject     string
	Role        enums.AdminRole
	BusinessIDs []uuid.UUID
	JTI         string
}

// AdminClaims represents the typed JWT presented to the admin API.
type AdminClaims struct {
	Role        enums.AdminRole `json:"role"`
	BusinessIDs []uuid.UUID     `json:"business_ids,omitempty"`
	jwt.RegisteredClaims
}

// CanManage reports whether the token is scoped to businessID.
func (c *AdminClaims) CanManage(businessID uuid.UUID) bool {
	if c == nil || businessID == uuid.Nil {
		return false
	}
	if c.Role == enums.AdminRolePlatform {
		return true
	}
	for _, id := range c.BusinessIDs {
		if id == businessID {
			return true
		}
	}
	return false
}
