package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestNewClientTrimsSlash(t *testing.T) {
	t.Parallel()

	c := NewClient("http://authority:8080/")
	require.Equal(t, "http://authority:8080", c.BaseURL)
	require.Equal(t, DefaultTimeout, c.HTTPClient.Timeout)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/users/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Password {
		case "right":
			httpx.WriteJSON(w, http.StatusOK, LoginResponse{
				AccessToken:  "access",
				RefreshToken: "refresh",
				User:         User{ID: "01J", Username: req.Username, Role: "STUDENT"},
			})
		default:
			ErrInvalidPassword.WriteError(w)
		}
	})

	t.Run("success", func(t *testing.T) {
		out, err := client.Login(context.Background(), "alice", "right")
		require.NoError(t, err)
		require.Equal(t, "access", out.AccessToken)
		require.Equal(t, "refresh", out.RefreshToken)
		require.Equal(t, "alice", out.User.Username)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := client.Login(context.Background(), "alice", "wrong")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		require.Equal(t, httpx.CodeInvalidPassword, apiErr.Code)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch r.URL.Path {
		case "/users/refresh":
			if req.Token != "refresh-1" {
				ErrUnauthenticated.WriteError(w)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, RefreshResponse{AccessToken: "access-2", RefreshToken: "refresh-2"})
		case "/users/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	out, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", out.AccessToken)
	require.Equal(t, "refresh-2", out.RefreshToken)

	_, err = client.Refresh(context.Background(), "stale")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, httpx.MessageUnauthenticated, apiErr.Message)

	require.NoError(t, client.Logout(context.Background(), "refresh-2"))
}

func TestUserEndpoints(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/create":
			var req CreateUserRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			httpx.WriteJSON(w, http.StatusCreated, UserResponse{User: User{ID: "01J", Username: req.Username, Role: "STUDENT"}})
		case r.Header.Get("Authorization") != "Bearer admin-token":
			ErrUnauthenticated.WriteError(w)
		case r.URL.Path == "/users/me":
			httpx.WriteJSON(w, http.StatusOK, UserResponse{User: User{ID: "01A", Username: "admin", Role: "ADMIN"}})
		case r.URL.Path == "/users/01J":
			httpx.WriteJSON(w, http.StatusOK, UserResponse{User: User{ID: "01J", Username: "bob", Role: "STUDENT"}})
		default:
			ErrNotFound.WriteError(w)
		}
	})

	ctx := context.Background()

	created, err := client.CreateUser(ctx, CreateUserRequest{Username: "bob", Password: "password1"})
	require.NoError(t, err)
	require.Equal(t, "bob", created.Username)

	me, err := client.Me(ctx, "admin-token")
	require.NoError(t, err)
	require.Equal(t, "ADMIN", me.Role)

	_, err = client.Me(ctx, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, httpx.CodeUnauthenticated, apiErr.Code)

	got, err := client.GetUser(ctx, "admin-token", "01J")
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)

	_, err = client.GetUser(ctx, "admin-token", "missing")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestVerifyOTP(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req VerifyOTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "/users/verify-otp", r.URL.Path)
		if req.Username != "bob" || req.Code != "123456" {
			ErrInvalidOTP.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Account activated"})
	})

	ctx := context.Background()
	require.NoError(t, client.VerifyOTP(ctx, "bob", "123456"))

	err := client.VerifyOTP(ctx, "bob", "000000")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, httpx.CodeBadRequest, apiErr.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/livez" {
			httpx.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: "test"})
			return
		}
		httpx.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			Checks: &HealthChecks{Database: "ok", Revocation: "error: dial tcp: connection refused"},
		})
	})

	live, err := client.GetLiveness(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := client.GetReadiness(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
	require.Equal(t, "degraded", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Contains(t, ready.Checks.Revocation, "connection refused")
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	t.Run("valid and invalid", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/users/introspect", r.URL.Path)
			var req TokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			httpx.WriteJSON(w, http.StatusOK, IntrospectResponse{Valid: req.Token == "good"})
		})

		require.Equal(t, OutcomeValid, client.Introspect(context.Background(), "good").Outcome)

		res := client.Introspect(context.Background(), "bad")
		require.Equal(t, OutcomeInvalid, res.Outcome)
		require.NoError(t, res.Err)
	})

	t.Run("server error is unreachable", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			ErrServerError.WriteError(w)
		})

		res := client.Introspect(context.Background(), "good")
		require.Equal(t, OutcomeUnreachable, res.Outcome)
		require.Error(t, res.Err)
	})

	t.Run("undecodable body is unreachable", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html>"))
		})

		require.Equal(t, OutcomeUnreachable, client.Introspect(context.Background(), "good").Outcome)
	})

	t.Run("timeout is unreachable", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		client := NewClientWithTimeout(srv.URL, 50*time.Millisecond)
		res := client.Introspect(context.Background(), "good")
		require.Equal(t, OutcomeUnreachable, res.Outcome)
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := NewClient(url).Introspect(context.Background(), "good")
		require.Equal(t, OutcomeUnreachable, res.Outcome)
		require.False(t, errors.Is(res.Err, context.Canceled))
	})
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "valid", OutcomeValid.String())
	require.Equal(t, "invalid", OutcomeInvalid.String())
	require.Equal(t, "unreachable", OutcomeUnreachable.String())
}
