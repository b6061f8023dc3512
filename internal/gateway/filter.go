package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/gin-gonic/gin"
)

// Reasons recorded on a Decision. Only logs see them; every deny looks the
// same to the client.
const (
	ReasonPublicPath           = "public_path"
	ReasonNonCanonicalPath     = "non_canonical_path"
	ReasonTokenValid           = "token_valid"
	ReasonMissingToken         = "missing_token"
	ReasonTokenRejected        = "token_rejected"
	ReasonAuthorityUnreachable = "authority_unreachable"
	ReasonRequestCancelled     = "request_cancelled"
)

// Decision is the outcome of filtering one request.
type Decision struct {
	Allow  bool
	Reason string

	// TokenFingerprint identifies the presented token in logs, if any.
	TokenFingerprint string
}

// AuthFilter is the gateway's authentication gate. Public paths pass
// straight through; everything else needs a bearer token that the authority
// introspects as valid.
type AuthFilter struct {
	Public       PublicPaths
	Introspector authsdk.Introspector
	Timeout      time.Duration
}

// Decide classifies a request by its Authorization header and decoded path.
// A path that is not in canonical form is denied before anything else, since
// the upstream may resolve it to a different resource than the one matched.
func (f *AuthFilter) Decide(ctx context.Context, header, path string) Decision {
	if _, ok := CleanPath(path); !ok {
		return Decision{Reason: ReasonNonCanonicalPath}
	}
	if f.Public.Match(path) {
		return Decision{Allow: true, Reason: ReasonPublicPath}
	}

	token, ok := httpx.BearerToken(header)
	if !ok {
		return Decision{Reason: ReasonMissingToken}
	}
	fp := cryptox.FingerprintToken(token)

	ictx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	res := f.Introspector.Introspect(ictx, token)

	// A result that arrives after the caller gave up is never applied.
	if ctx.Err() != nil {
		return Decision{Reason: ReasonRequestCancelled, TokenFingerprint: fp}
	}

	switch res.Outcome {
	case authsdk.OutcomeValid:
		return Decision{Allow: true, Reason: ReasonTokenValid, TokenFingerprint: fp}
	case authsdk.OutcomeInvalid:
		return Decision{Reason: ReasonTokenRejected, TokenFingerprint: fp}
	default:
		return Decision{Reason: ReasonAuthorityUnreachable, TokenFingerprint: fp}
	}
}

// Handle is the gin middleware form of Decide.
func (f *AuthFilter) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := slogx.FromContext(ctx)

	d := f.Decide(ctx, c.GetHeader("Authorization"), c.Request.URL.Path)
	if !d.Allow {
		log.Info("request denied",
			"reason", d.Reason,
			"path", c.Request.URL.Path,
			"token_fp", d.TokenFingerprint,
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpx.ErrorBody{
			Code:    httpx.CodeUnauthenticated,
			Message: httpx.MessageUnauthenticated,
		})
		return
	}

	log.Debug("request allowed", "reason", d.Reason, "token_fp", d.TokenFingerprint)
	c.Next()
}
