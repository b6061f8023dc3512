package httpx

import (
	"encoding/json"
	"net/http"
)

// Application error codes carried in the "code" field of error bodies.
const (
	CodeUncategorized   = 1000
	CodeBadRequest      = 1400
	CodeUnauthenticated = 1401
	CodeUserNotExisted  = 1402
	CodeForbidden       = 1403
	CodeNotFound        = 1404
	CodeInvalidPassword = 1405
	CodeConflict        = 1409
	CodeTooManyRequests = 1429
	CodeInternal        = 1500
	CodeBadGateway      = 1502
)

// MessageUnauthenticated is the one message every 401 carries, whatever the
// underlying reason.
const MessageUnauthenticated = "Unauthenticated"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody with the given HTTP status.
func WriteError(w http.ResponseWriter, status, code int, message string) {
	WriteJSON(w, status, ErrorBody{Code: code, Message: message})
}

// WriteUnauthenticated writes the uniform 401 response.
func WriteUnauthenticated(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, MessageUnauthenticated)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
