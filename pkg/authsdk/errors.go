package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// APIError is an error response from the authority. It is used both by the
// server, to write responses, and by the client, to report them.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the application error code, see the httpx.Code constants
	Code int `json:"code"`

	// Message is a human-readable description of the error
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Message)
}

// WithMessage returns a copy of e carrying msg.
func (e *APIError) WithMessage(msg string) *APIError {
	out := *e
	out.Message = msg
	return &out
}

var (
	ErrBadRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       httpx.CodeBadRequest,
		Message:    "Invalid request",
	}

	ErrUnauthenticated = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       httpx.CodeUnauthenticated,
		Message:    httpx.MessageUnauthenticated,
	}

	ErrUserNotExisted = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       httpx.CodeUserNotExisted,
		Message:    "User not existed",
	}

	ErrForbidden = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       httpx.CodeForbidden,
		Message:    "You do not have permission",
	}

	ErrNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       httpx.CodeNotFound,
		Message:    "Not found",
	}

	ErrInvalidPassword = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       httpx.CodeInvalidPassword,
		Message:    "Invalid password",
	}

	ErrUserExisted = &APIError{
		StatusCode: http.StatusConflict,
		Code:       httpx.CodeConflict,
		Message:    "User existed",
	}

	ErrAccountInactive = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       httpx.CodeForbidden,
		Message:    "Account not activated",
	}

	ErrInvalidOTP = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       httpx.CodeBadRequest,
		Message:    "Invalid or expired code",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       httpx.CodeInternal,
		Message:    "Internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not in the {code, message} shape still produce an APIError built from
// the status code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp httpx.ErrorBody
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != 0 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Code,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       httpx.CodeUncategorized,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
