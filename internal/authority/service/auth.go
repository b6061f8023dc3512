package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// AuthService issues, introspects, rotates and revokes tokens.
type AuthService struct {
	Store       store.Store
	Revocations revocation.Store
	Codec       *jwtx.Codec
	Hasher      *cryptox.PasswordHasher
	AccessTTL   time.Duration

	// RequireActivation refuses logins to accounts that have not verified
	// their activation code.
	RequireActivation bool
}

// Login checks a username and password and mints a fresh token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Info("login failed", "reason", "invalid_password", "username", username)
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if s.RequireActivation && !user.Active {
		l.Info("login failed", "reason", "account_inactive", "username", username)
		return nil, ErrAccountInactive
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return pair, nil
}

// Introspect reports whether token is a currently valid access token that has
// not been revoked. Every failure, including a store failure, is false.
func (s *AuthService) Introspect(ctx context.Context, token string) bool {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Verify(token)
	if err != nil {
		l.Debug("introspect rejected token", "err", err)
		return false
	}

	revoked, err := s.Revocations.Exists(ctx, claims.ID)
	if err != nil {
		l.Warn("introspect could not check revocation", "jti", claims.ID, "err", err)
		return false
	}

	return !revoked
}

// Refresh redeems a refresh token exactly once. The token's jti is recorded
// before anything is minted, so of two concurrent redemptions only one wins.
func (s *AuthService) Refresh(ctx context.Context, token string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.VerifyRefresh(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrUnauthenticated
	}

	if err := s.Revocations.Insert(ctx, claims.ID, s.Codec.AcceptedUntil(claims)); err != nil {
		if errors.Is(err, revocation.ErrDuplicate) {
			l.Warn("refresh token replayed",
				"event", "refresh_token_replayed",
				"jti", claims.ID,
				"sub", claims.Subject,
			)
			return nil, ErrTokenReplayed
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return s.issue(user)
}

// Logout revokes token, which may be either kind. Revoking an already
// revoked token succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.Codec.VerifyAnyKind(token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.ID == "" {
		return ErrUnauthenticated
	}

	// The record outlives every instant at which the codec would still
	// accept the token.
	err = s.Revocations.Insert(ctx, claims.ID, s.Codec.AcceptedUntil(claims))
	if err != nil && !errors.Is(err, revocation.ErrDuplicate) {
		return fmt.Errorf("revoke token: %w", err)
	}

	slogx.FromContext(ctx).Info("logout", "jti", claims.ID, "sub", claims.Subject, "kind", claims.Kind())
	return nil
}

func (s *AuthService) issue(user domain.User) (*domain.TokenPair, error) {
	access, err := s.Codec.Mint(jwtx.KindAccess, user.Username, user.Role.String(), s.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refresh, err := s.Codec.Mint(jwtx.KindRefresh, user.Username, user.Role.String(), s.Codec.RefreshableDuration())
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Principal:    user.Principal(),
	}, nil
}
