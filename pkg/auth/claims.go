package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID         uuid.UUID
	ActiveTenantID *uuid.UUID
	Role           enums.MemberRole
	JTI            string
}

// AccessTokenClaims is the JWT issued by the identity service. Older tokens
// carry the tenant as active_store_id.
type AccessTokenClaims struct {
	UserID         uuid.UUID        `json:"user_id"`
	ActiveTenantID *uuid.UUID       `json:"active_tenant_id,omitempty"`
	LegacyStoreID  *uuid.UUID       `json:"active_store_id,omitempty"`
	Role           enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Tenant returns the tenant the token is scoped to, or nil.
func (c *AccessTokenClaims) Tenant() *uuid.UUID {
	if c.ActiveTenantID != nil && *c.ActiveTenantID != uuid.Nil {
		return c.ActiveTenantID
	}
	if c.LegacyStoreID != nil && *c.LegacyStoreID != uuid.Nil {
		return c.LegacyStoreID
	}
	return nil
}

// Validate runs after the registered claims checks during parsing.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token has no user")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token has unknown role %q", c.Role)
	}
	return nil
}
