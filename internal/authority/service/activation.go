package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	activationIssuer = "gatekeep"
	activationPeriod = 300 // seconds per code
	activationTTL    = 5 * time.Minute
)

// A code minted at creation stays valid for the rest of its period and one
// period after, which covers activationTTL. The stored expiry enforces the
// exact bound.
var activationOpts = totp.ValidateOpts{
	Period:    activationPeriod,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// CodeSender delivers an activation code to a new account holder, usually
// by email.
type CodeSender interface {
	SendActivationCode(ctx context.Context, user domain.User, code string) error
}

// DiscardCodeSender drops every code. It is used when no delivery channel is
// configured.
type DiscardCodeSender struct{}

func (DiscardCodeSender) SendActivationCode(context.Context, domain.User, string) error { return nil }

// newActivationSecret returns a fresh per-user TOTP secret.
func newActivationSecret(username string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      activationIssuer,
		AccountName: username,
		Period:      activationPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate activation secret: %w", err)
	}
	return key.Secret(), nil
}

// sendActivationCode mints the current code for user and hands it to the
// sender. A failed delivery leaves the account pending.
func (s *UserService) sendActivationCode(ctx context.Context, user domain.User, now time.Time) {
	l := slogx.FromContext(ctx)

	code, err := totp.GenerateCodeCustom(user.ActivationSecret, now, activationOpts)
	if err != nil {
		l.Error("generate activation code failed", "user_id", user.ID, "err", err)
		return
	}

	sender := s.Codes
	if sender == nil {
		sender = DiscardCodeSender{}
	}
	if err := sender.SendActivationCode(ctx, user, code); err != nil {
		l.Warn("activation code not delivered", "user_id", user.ID, "err", err)
	}
}

// VerifyOTP activates the named account when code is its current activation
// code. Unknown users, accounts already active, expired codes and wrong
// codes all fail with ErrInvalidOTP.
func (s *UserService) VerifyOTP(ctx context.Context, username, code string) error {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if user.Active || user.ActivationSecret == "" {
		return ErrInvalidOTP
	}

	now := s.now()
	if !now.Before(user.ActivationExpiresAt) {
		return ErrInvalidOTP
	}

	ok, err := totp.ValidateCustom(code, user.ActivationSecret, now, activationOpts)
	if err != nil || !ok {
		return ErrInvalidOTP
	}

	if err := s.Store.Users().ActivateUser(ctx, user.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("activate user: %w", err)
	}

	slogx.FromContext(ctx).Info("account activated", "user_id", user.ID)
	return nil
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
