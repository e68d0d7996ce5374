package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject  string
	TenantID string
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims is the dashboard token. The tenant it names is the only
// tenant a request may touch.
type AccessTokenClaims struct {
	TenantID string           `json:"tenant_id"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the registered claims checks during parsing.
func (c *AccessTokenClaims) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return errors.New("token has no tenant")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", c.Role)
	}
	return nil
}
