package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

var ErrUnknownRole = errors.New("domain: unknown role")

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return r, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

type User struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string // bcrypt or argon2id encoded
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Active is false until the account holder proves the activation code.
	Active bool
	// ActivationSecret seeds the account's activation codes. It is cleared
	// once the account is activated.
	ActivationSecret    string
	ActivationExpiresAt time.Time
}

// Principal is the immutable identity a token is minted for.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Principal returns the identity part of the user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}
