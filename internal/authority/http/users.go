package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/authority/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/idx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// UsersHandler serves account endpoints.
type UsersHandler struct {
	UserService *service.UserService
}

// HandleCreate handles POST /users/create
//
//	@Summary		Create an account
//	@Description	Registers a new STUDENT account. The account starts inactive and an activation code is sent to its holder.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateUserRequest	true	"New account"
//	@Success		201		{object}	authsdk.UserResponse		"user"
//	@Failure		400		{object}	httpx.ErrorBody				"1400 invalid input"
//	@Failure		409		{object}	httpx.ErrorBody				"1409 username or email taken"
//	@Failure		429		{object}	httpx.ErrorBody				"rate limited"
//	@Router			/users/create [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	// Self-service accounts always start as students.
	user, err := h.UserService.Create(ctx, service.CreateUserInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		authsdk.ErrBadRequest.WithMessage(err.Error()).WriteError(w)
		return
	case errors.Is(err, service.ErrUserExists):
		authsdk.ErrUserExisted.WriteError(w)
		return
	case err != nil:
		log.Error("create user failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{User: userView(user)})
}

// HandleVerifyOTP handles POST /users/verify-otp
//
//	@Summary		Activate an account
//	@Description	Activates a new account with the code it was sent. Codes expire five minutes after signup.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyOTPRequest	true	"Username and code"
//	@Success		200		{object}	authsdk.MessageResponse		"activated"
//	@Failure		400		{object}	httpx.ErrorBody				"1400 invalid or expired code"
//	@Failure		429		{object}	httpx.ErrorBody				"rate limited"
//	@Router			/users/verify-otp [post].
func (h *UsersHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.VerifyOTPRequest
	if err := decodeBody(w, r, &req); err != nil || req.Username == "" || req.Code == "" {
		authsdk.ErrBadRequest.WriteError(w)
		return
	}

	err := h.UserService.VerifyOTP(ctx, req.Username, req.Code)
	switch {
	case errors.Is(err, service.ErrInvalidOTP):
		authsdk.ErrInvalidOTP.WriteError(w)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("verify otp failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Account activated"})
}

// HandleMe handles GET /users/me
//
//	@Summary		Current user
//	@Description	Returns the account the bearer token was issued to.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"user"
//	@Failure		401	{object}	httpx.ErrorBody			"1401 unauthenticated"
//	@Router			/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request, rc httpx.RequestContext) {
	ctx := r.Context()

	user, err := h.UserService.GetByUsername(ctx, rc.Subject())
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		// Valid token for an account that no longer exists.
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("load current user failed", "sub", rc.Subject(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: userView(user)})
}

// HandleGet handles GET /users/{id}
//
//	@Summary		Get a user
//	@Description	Returns any account by id. Requires ROLE_ADMIN.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User id"
//	@Success		200	{object}	authsdk.UserResponse	"user"
//	@Failure		401	{object}	httpx.ErrorBody			"1401 unauthenticated"
//	@Failure		403	{object}	httpx.ErrorBody			"1403 forbidden"
//	@Failure		404	{object}	httpx.ErrorBody			"1404 not found"
//	@Router			/users/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request, rc httpx.RequestContext) {
	ctx := r.Context()

	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		authsdk.ErrNotFound.WriteError(w)
		return
	}

	user, err := h.UserService.Get(ctx, id.String())
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		authsdk.ErrNotFound.WriteError(w)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("load user failed", "user_id", id, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: userView(user)})
}
