package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// Outcome is the result of asking the authority about a token.
type Outcome int

const (
	// OutcomeUnreachable means no answer was obtained: transport failure,
	// timeout, a non-200 status or an unreadable body.
	OutcomeUnreachable Outcome = iota
	OutcomeValid
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unreachable"
	}
}

// IntrospectResult carries the outcome and, for OutcomeUnreachable, the cause.
type IntrospectResult struct {
	Outcome Outcome
	Err     error
}

// Valid reports whether the authority vouched for the token.
func (r IntrospectResult) Valid() bool { return r.Outcome == OutcomeValid }

// Introspector asks the authority whether a token is currently valid.
type Introspector interface {
	Introspect(ctx context.Context, token string) IntrospectResult
}

var _ Introspector = (*Client)(nil)

// Introspect calls POST /users/introspect. It never returns OutcomeValid
// unless the authority answered 200 with {"valid": true}.
func (c *Client) Introspect(ctx context.Context, token string) IntrospectResult {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/introspect", TokenRequest{Token: token}, "")
	if err != nil {
		return IntrospectResult{Outcome: OutcomeUnreachable, Err: err}
	}

	var out IntrospectResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return IntrospectResult{Outcome: OutcomeUnreachable, Err: fmt.Errorf("introspect: %w", err)}
	}

	if out.Valid {
		return IntrospectResult{Outcome: OutcomeValid}
	}
	return IntrospectResult{Outcome: OutcomeInvalid}
}
