package service

import (
	"context"

	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
)

// LocalIntrospector answers introspection in-process so the authority's own
// protected endpoints decode tokens the same way downstream services do.
type LocalIntrospector struct {
	Auth *AuthService
}

var _ authsdk.Introspector = LocalIntrospector{}

func (l LocalIntrospector) Introspect(ctx context.Context, token string) authsdk.IntrospectResult {
	if l.Auth.Introspect(ctx, token) {
		return authsdk.IntrospectResult{Outcome: authsdk.OutcomeValid}
	}
	return authsdk.IntrospectResult{Outcome: authsdk.OutcomeInvalid}
}
