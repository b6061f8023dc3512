package authsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
)

// ErrTokenRejected is returned by Decoder.Decode for every failure.
var ErrTokenRejected = errors.New("authsdk: token rejected")

// Decoder decodes bearer tokens for a resource service: the authority must
// vouch for the token and the signature must verify locally.
type Decoder struct {
	Introspector Introspector
	Verifier     jwtx.Verifier
}

func NewDecoder(introspector Introspector, verifier jwtx.Verifier) *Decoder {
	return &Decoder{Introspector: introspector, Verifier: verifier}
}

// Decode returns the token's claims or an error wrapping ErrTokenRejected.
func (d *Decoder) Decode(ctx context.Context, token string) (jwtx.Claims, error) {
	res := d.Introspector.Introspect(ctx, token)
	switch res.Outcome {
	case OutcomeValid:
	case OutcomeInvalid:
		return jwtx.Claims{}, fmt.Errorf("%w: authority reports token invalid", ErrTokenRejected)
	default:
		if res.Err == nil {
			return jwtx.Claims{}, fmt.Errorf("%w: authority unreachable", ErrTokenRejected)
		}
		return jwtx.Claims{}, fmt.Errorf("%w: authority unreachable: %w", ErrTokenRejected, res.Err)
	}

	claims, err := d.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}

	return claims, nil
}
