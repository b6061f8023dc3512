package jwtx

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the HMAC-SHA-512 key size in bytes.
const MinSecretLength = 64

// CodecConfig is the immutable configuration of a Codec.
type CodecConfig struct {
	// Secret is the shared HMAC key. Must be at least MinSecretLength bytes.
	Secret []byte

	// Issuer is written to and enforced on the iss claim.
	Issuer string

	// RefreshableDuration is the window, from iat, in which a refresh token
	// may be redeemed.
	RefreshableDuration time.Duration

	// Leeway allows small clock skew on expiry checks. Zero by default.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Codec mints and verifies HS512 tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	secret      []byte
	issuer      string
	refreshable time.Duration
	leeway      time.Duration
	now         func() time.Time
	parser      *jwt.Parser
}

var _ Verifier = (*Codec)(nil)

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes, got %d",
			ErrEncoding, MinSecretLength, len(cfg.Secret))
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if cfg.RefreshableDuration <= 0 {
		return nil, fmt.Errorf("%w: refreshable duration must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("%w: leeway must not be negative", ErrInvalidConfig)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret:      secret,
		issuer:      cfg.Issuer,
		refreshable: cfg.RefreshableDuration,
		leeway:      cfg.Leeway,
		now:         now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
			jwt.WithoutClaimsValidation(), // expiry and kind are checked by the codec
		),
	}, nil
}

// Issuer returns the configured issuer.
func (c *Codec) Issuer() string { return c.issuer }

// RefreshableDuration returns the configured refresh window.
func (c *Codec) RefreshableDuration() time.Duration { return c.refreshable }

// Leeway returns the clock skew allowed on expiry checks.
func (c *Codec) Leeway() time.Duration { return c.leeway }

// AcceptedUntil is the first instant at which the codec stops accepting a
// token with these claims, leeway included. Refresh tokens run out at iat
// plus the refreshable duration, access tokens at exp. A revocation record
// must live at least this long.
func (c *Codec) AcceptedUntil(claims Claims) time.Time {
	if claims.Kind() == KindRefresh {
		if claims.IssuedAt == nil {
			return time.Time{}
		}
		return claims.IssuedAt.Add(c.refreshable).Add(c.leeway)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Add(c.leeway)
}

// Mint signs a new token for subject. Access tokens carry scope "ROLE_"+role,
// refresh tokens carry type "refresh" instead.
func (c *Codec) Mint(kind Kind, subject, role string, validFor time.Duration) (string, error) {
	if validFor <= 0 {
		return "", fmt.Errorf("%w: validity must be positive", ErrInvalidConfig)
	}

	claims := NewClaims(kind, subject, role, c.issuer, validFor, c.now().UTC())
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	return signed, nil
}

// Verify checks an access token: shape, signature, expiry, kind and issuer.
func (c *Codec) Verify(token string) (Claims, error) {
	claims, err := c.verifySignedClaims(token)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.validateExpiry(c.now().UTC(), c.leeway); err != nil {
		return Claims{}, err
	}

	if claims.Kind() != KindAccess {
		return Claims{}, ErrWrongKind
	}

	if err := claims.ValidateIssuer(c.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// VerifyRefresh checks a refresh token. The effective expiry is iat plus the
// refreshable duration; the token's own exp claim is not consulted.
func (c *Codec) VerifyRefresh(token string) (Claims, error) {
	claims, err := c.verifyWindow(token)
	if err != nil {
		return Claims{}, err
	}

	if claims.Kind() != KindRefresh {
		return Claims{}, ErrWrongKind
	}

	if err := claims.ValidateIssuer(c.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// VerifyAnyKind checks a token of either kind under the refresh window rule.
// It is used where a caller may hold either token, such as logout.
func (c *Codec) VerifyAnyKind(token string) (Claims, error) {
	claims, err := c.verifyWindow(token)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateIssuer(c.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

func (c *Codec) verifyWindow(token string) (Claims, error) {
	claims, err := c.verifySignedClaims(token)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.validateRefreshWindow(c.now().UTC(), c.refreshable, c.leeway); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// verifySignedClaims checks the MAC before decoding anything, so no claim is
// looked at until the signature is known to be good.
func (c *Codec) verifySignedClaims(token string) (Claims, error) {
	// 1. Structural shape
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformed
	}

	// 2. Signature segment
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrMalformed
	}

	// 3. MAC over header.payload
	signingString := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodHS512.Verify(signingString, sig, c.secret); err != nil {
		return Claims{}, ErrBadSignature
	}

	// 4. Decode header and claims, enforcing alg=HS512
	var claims Claims
	if _, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return claims, nil
}
