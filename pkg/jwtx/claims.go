package jwtx

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes. The authority overrides both from its config.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshableDuration is the default window in which a refresh
	// token can be redeemed, measured from its iat.
	DefaultRefreshableDuration = 24 * time.Hour
)

// ScopePrefix is prepended to a role to build the scope claim.
const ScopePrefix = "ROLE_"

// refreshType is the value of the "type" claim on refresh tokens.
const refreshType = "refresh"

// Kind distinguishes access tokens from refresh tokens.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Claims are the claims carried by every token the authority mints. Access
// tokens carry Scope, refresh tokens carry Type instead.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is "ROLE_" + role, e.g. "ROLE_ADMIN"
	Scope string `json:"scope,omitempty"`

	// Type is "refresh" on refresh tokens and empty otherwise
	Type string `json:"type,omitempty"`
}

// NewClaims builds the claim set for a token of the given kind.
func NewClaims(kind Kind, subject, role, issuer string, ttl time.Duration, now time.Time) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}

	if kind == KindRefresh {
		c.Type = refreshType
	} else {
		c.Scope = ScopePrefix + role
	}

	return c
}

// NewJTI returns a random UUID for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// Kind reports whether these are access or refresh claims.
func (c *Claims) Kind() Kind {
	if c.Type == refreshType {
		return KindRefresh
	}
	return KindAccess
}

// Role returns the role encoded in the scope claim, or "" for refresh tokens.
func (c *Claims) Role() string {
	return strings.TrimPrefix(c.Scope, ScopePrefix)
}

// HasScope reports whether the scope claim contains s.
func (c *Claims) HasScope(s string) bool {
	for _, have := range strings.Fields(c.Scope) {
		if have == s {
			return true
		}
	}
	return false
}

// ExpiryTime returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiryTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// validateExpiry checks exp against now, allowing leeway for clock skew.
func (c *Claims) validateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrMalformed
	}

	if !now.Before(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	return nil
}

// validateRefreshWindow checks iat + window against now. The exp claim is
// ignored so refresh tokens get a lifetime policy of their own.
func (c *Claims) validateRefreshWindow(now time.Time, window, leeway time.Duration) error {
	if c.IssuedAt == nil {
		return ErrMalformed
	}

	if !now.Before(c.IssuedAt.Add(window).Add(leeway)) {
		return ErrExpired
	}

	return nil
}
