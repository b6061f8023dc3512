package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUserNotFound    = errors.New("user_not_existed")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrUserExists      = errors.New("user_existed")
	ErrInvalidInput    = errors.New("invalid_input")
	ErrInvalidOTP      = errors.New("invalid_otp")
	ErrAccountInactive = errors.New("account_inactive")

	// ErrTokenReplayed is returned when a refresh token is redeemed a second
	// time. Callers that only care about the 401 can match ErrUnauthenticated.
	ErrTokenReplayed = fmt.Errorf("token_replayed: %w", ErrUnauthenticated)
)
