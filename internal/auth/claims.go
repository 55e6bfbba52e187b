package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: OrganizationID must be present for all non-admin activity.
// Admin override capabilities (bypass_limits, granted plans) live on the
// organization row, not in the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	TokenType      TokenType `json:"token_type"`
}
