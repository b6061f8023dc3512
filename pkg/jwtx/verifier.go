package jwtx

import (
	"errors"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrBadSignature = errors.New("jwtx: bad signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrWrongKind    = errors.New("jwtx: wrong token kind")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")

	ErrEncoding      = errors.New("jwtx: cannot encode token")
	ErrInvalidConfig = errors.New("jwtx: invalid codec config")
)
