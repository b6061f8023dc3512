package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

const bearerPrefix = "Bearer "

// TokenDecoder turns a bearer token into verified claims. authsdk.Decoder is
// the usual implementation.
type TokenDecoder interface {
	Decode(ctx context.Context, token string) (jwtx.Claims, error)
}

// RequestContext is the authenticated caller of a request. It is built by
// Authenticate and handed to the handler as an argument.
type RequestContext struct {
	Token  string
	Claims jwtx.Claims
}

// Subject is the authenticated username.
func (rc RequestContext) Subject() string { return rc.Claims.Subject }

// Role is the authenticated role without its scope prefix.
func (rc RequestContext) Role() string { return rc.Claims.Role() }

// AuthedHandlerFunc is a handler that only runs for authenticated requests.
type AuthedHandlerFunc func(w http.ResponseWriter, r *http.Request, rc RequestContext)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. ok is false for a missing header, another scheme or an empty
// token.
func BearerToken(header string) (token string, ok bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token = strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Authenticate decodes the bearer token with decoder and calls next with the
// resulting RequestContext. Any failure is the uniform 401.
func Authenticate(decoder TokenDecoder, next AuthedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogx.FromContext(ctx)

		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			log.Debug("authentication failed", "reason", "missing_token")
			WriteUnauthenticated(w)
			return
		}

		claims, err := decoder.Decode(ctx, token)
		if err != nil {
			log.Info("authentication failed",
				"reason", "token_rejected",
				"token_fp", cryptox.FingerprintToken(token),
				"err", err,
			)
			WriteUnauthenticated(w)
			return
		}

		r = r.WithContext(slogx.With(ctx, "sub", claims.Subject))
		next(w, r, RequestContext{Token: token, Claims: claims})
	})
}

// RequireRole lets the request through when the caller holds any of roles,
// otherwise it responds 403.
func RequireRole(next AuthedHandlerFunc, roles ...string) AuthedHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, rc RequestContext) {
		for _, role := range roles {
			if rc.Claims.HasScope(jwtx.ScopePrefix + role) {
				next(w, r, rc)
				return
			}
		}

		slogx.FromContext(r.Context()).Info("authorization failed",
			"sub", rc.Subject(),
			"scope", rc.Claims.Scope,
			"required", roles,
		)
		WriteError(w, http.StatusForbidden, CodeForbidden, "You do not have permission")
	}
}
