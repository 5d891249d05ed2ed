package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tells access tokens and refresh tokens apart.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// IsValid checks the kind is one of the known kinds
func (k TokenKind) IsValid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// Claims is the payload carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UID   string    `json:"userId"`
	Roles []string  `json:"roles,omitempty"`
	Kind  TokenKind `json:"type"`
}

// Username returns the subject claim
func (c *Claims) Username() string {
	return c.Subject
}

// AccountID parses the userId claim.
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.UID)
}

// Expiry returns the exp claim, zero when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the iat claim, zero when absent.
func (c *Claims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// RoleSet returns the known roles embedded in the token.
func (c *Claims) RoleSet() []Role {
	return ParseRoles(c.Roles)
}

// ExpiredAt reports whether the token is no longer valid at now. A token
// is valid strictly before exp.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.Expiry())
}

func (c *Claims) wellFormed(issuer string) bool {
	if c.Subject == "" || c.ExpiresAt == nil || c.IssuedAt == nil {
		return false
	}
	if !c.Kind.IsValid() {
		return false
	}
	if issuer != "" && c.Issuer != issuer {
		return false
	}
	if _, err := c.AccountID(); err != nil {
		return false
	}
	return true
}
