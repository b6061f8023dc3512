// Package httpx holds the net/http plumbing shared by the authority and the
// services that sit behind the gateway: middleware chaining, bearer
// authentication, role checks, rate limiting and JSON responses.
package httpx

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with mws so that the first middleware is the outermost one.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
