package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// TokensHandler serves the token lifecycle endpoints.
type TokensHandler struct {
	AuthService *service.AuthService
}

// HandleLogin handles POST /users/login
//
//	@Summary		Log in
//	@Description	Checks a username and password and returns an access token, a refresh token and the user.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"accessToken, refreshToken, user"
//	@Failure		400		{object}	httpx.ErrorBody			"1400 bad body, 1402 user not existed, 1405 invalid password"
//	@Failure		403		{object}	httpx.ErrorBody			"1403 account not activated"
//	@Failure		429		{object}	httpx.ErrorBody			"rate limited"
//	@Failure		500		{object}	httpx.ErrorBody			"internal error"
//	@Router			/users/login [post].
func (h *TokensHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := decodeBody(w, r, &req); err != nil || req.Username == "" || req.Password == "" {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Login(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		authsdk.ErrUserNotExisted.WriteError(w)
		return
	case errors.Is(err, service.ErrInvalidPassword):
		authsdk.ErrInvalidPassword.WriteError(w)
		return
	case errors.Is(err, service.ErrAccountInactive):
		authsdk.ErrAccountInactive.WriteError(w)
		return
	case err != nil:
		log.Error("login failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         principalView(pair.Principal),
	})
}

// HandleIntrospect handles POST /users/introspect
//
//	@Summary		Introspect an access token
//	@Description	Reports whether the token is a currently valid, unrevoked access token.
//	@Description	Always 200 for a well-formed body; the verdict is in the "valid" field.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest		true	"Token to check"
//	@Success		200		{object}	authsdk.IntrospectResponse	"valid"
//	@Failure		400		{object}	httpx.ErrorBody				"1400 bad body"
//	@Router			/users/introspect [post].
func (h *TokensHandler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectResponse{
		Valid: h.AuthService.Introspect(r.Context(), req.Token),
	})
}

// HandleRefresh handles POST /users/refresh
//
//	@Summary		Rotate a refresh token
//	@Description	Redeems a refresh token exactly once and returns a new access token and refresh token.
//	@Description	A second redemption of the same refresh token is rejected.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.RefreshResponse	"accessToken, refreshToken"
//	@Failure		400		{object}	httpx.ErrorBody			"1400 bad body"
//	@Failure		401		{object}	httpx.ErrorBody			"1401 unauthenticated"
//	@Failure		429		{object}	httpx.ErrorBody			"rate limited"
//	@Router			/users/refresh [post].
func (h *TokensHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.TokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(ctx, req.Token)
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	case err != nil:
		log.Error("refresh failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// HandleLogout handles POST /users/logout
//
//	@Summary		Log out
//	@Description	Revokes an access or refresh token. Revoking a token twice succeeds.
//	@Tags			Tokens
//	@Accept			json
//	@Param			request	body	authsdk.TokenRequest	true	"Token to revoke"
//	@Success		204		"Token revoked"
//	@Failure		400		{object}	httpx.ErrorBody	"1400 bad body"
//	@Failure		401		{object}	httpx.ErrorBody	"1401 unauthenticated"
//	@Router			/users/logout [post].
func (h *TokensHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.TokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	err := h.AuthService.Logout(ctx, req.Token)
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	case err != nil:
		log.Error("logout failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

func principalView(p domain.Principal) authsdk.User {
	return authsdk.User{ID: p.ID, Username: p.Username, Role: p.Role.String()}
}

func userView(u domain.User) authsdk.User {
	return authsdk.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role.String(),
		Active:      u.Active,
	}
}
