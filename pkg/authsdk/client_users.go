package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// CreateUser registers a new STUDENT account.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/create", req, "")
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// VerifyOTP activates a new account with the code it was sent.
func (c *Client) VerifyOTP(ctx context.Context, username, code string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/verify-otp", VerifyOTPRequest{Username: username, Code: code}, "")
	if err != nil {
		return err
	}

	var out MessageResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// Me returns the account the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/users/me", nil, accessToken)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// GetUser looks up any account by id. Requires an ADMIN access token.
func (c *Client) GetUser(ctx context.Context, accessToken, id string) (*User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, accessToken)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}
