package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/idx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

type CreateUserInput struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	Role        domain.Role // defaults to STUDENT

	// Active skips the activation code and creates the account active.
	Active bool
}

type UserService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher

	// Codes delivers activation codes. Nil discards them.
	Codes CodeSender
	// Now is the activation clock. Nil means time.Now.
	Now func() time.Time
}

// Create validates in and stores a new user. Unless in.Active is set the
// account starts inactive with a per-user activation secret, and its first
// code is handed to Codes.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if err := validateCreate(&in); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
		Active:       in.Active,
	}
	if !user.Active {
		if user.ActivationSecret, err = newActivationSecret(user.Username); err != nil {
			return domain.User{}, err
		}
		user.ActivationExpiresAt = now.Add(activationTTL)
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", "user_id", user.ID, "role", user.Role, "active", user.Active)
	if !user.Active {
		s.sendActivationCode(ctx, user, now)
	}
	return user, nil
}

func validateCreate(in *CreateUserInput) error {
	if n := utf8.RuneCountInString(in.Username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if strings.ContainsAny(in.Username, " \t\r\n") {
		return fmt.Errorf("%w: username must not contain whitespace", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email {
			return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
		}
	}

	if in.Role == "" {
		in.Role = domain.RoleStudent
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidInput, domain.ErrUnknownRole)
	}
	return nil
}

// Get fetches a user by id.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// GetByUsername fetches a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// AdminSeed describes the account SeedAdmin creates. When Password is empty
// a generated one is written to PasswordFile, readable by the owner only.
type AdminSeed struct {
	Username     string
	Password     string
	PasswordFile string
}

// SeedAdmin creates an ADMIN account when the user table is empty. A
// generated password never reaches the log; only the file holding it does.
func (s *UserService) SeedAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	l := slogx.FromContext(ctx)

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("check users: %w", err)
	}
	if !empty {
		return false, nil
	}

	password := seed.Password
	generated := password == ""
	if generated {
		if seed.PasswordFile == "" {
			return false, errors.New("seed admin: no password and no password file")
		}
		if password, err = cryptox.GeneratePassword(); err != nil {
			return false, err
		}
		if err := cryptox.WriteSecretFile(seed.PasswordFile, password); err != nil {
			return false, fmt.Errorf("seed admin: write password file: %w", err)
		}
	}

	user, err := s.Create(ctx, CreateUserInput{
		Username:    seed.Username,
		Password:    password,
		DisplayName: "Administrator",
		Role:        domain.RoleAdmin,
		Active:      true,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	if generated {
		l.Warn("seeded admin user with generated password, change it after first login",
			"username", user.Username,
			"password_file", seed.PasswordFile,
		)
	} else {
		l.Info("seeded admin user", "username", user.Username)
	}
	return true, nil
}
