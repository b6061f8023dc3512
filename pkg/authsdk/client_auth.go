package authsdk

import (
	"context"
	"net/http"
)

// Login exchanges a username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/login", LoginRequest{
		Username: username,
		Password: password,
	}, "")
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh redeems a refresh token for a new token pair. A refresh token can
// only be redeemed once.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/refresh", TokenRequest{Token: refreshToken}, "")
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes token, which may be an access or a refresh token.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/users/logout", TokenRequest{Token: token}, "")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
