package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Revocation backends.
const (
	RevocationSQL    = "sql"
	RevocationRedis  = "redis"
	RevocationMemory = "memory"
)

type Config struct {
	SignerKey           string        // Required: HMAC-SHA-512 secret, at least 64 bytes
	Issuer              string        // Optional: issuer claim for tokens (default: gatekeep-authority)
	ValidDuration       time.Duration // Optional: access token lifetime (default: 1h)
	RefreshableDuration time.Duration // Optional: refresh window from iat (default: 24h)

	PasswordAlgorithm string // Optional: bcrypt or argon2id (default: bcrypt)
	BcryptCost        int    // Optional: bcrypt cost 4-31 (default: 10)
	PepperFile        string // Optional: path to file containing pepper for argon2id (default: ./pepper)

	DatabaseDriver    string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile      string // Optional: path to SQLite database file (default: ./auth.db)
	DatabaseURL       string // Required for postgres: connection string
	RevocationBackend string // Optional: sql, redis or memory (default: sql)
	RedisURL          string // Optional: redis URL for the redis backend

	RequireActivation bool // Optional: refuse logins to accounts without a verified activation code (default: false)

	AdminUsername     string // Optional: seeded admin username (default: admin)
	AdminPassword     string // Optional: seeded admin password (default: generated)
	AdminPasswordFile string // Optional: where a generated admin password is written (default: next to the pepper file)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	pepperFile := getEnvOrDefault("AUTH_PEPPER_FILE", "pepper") // Default to ./pepper

	return Config{
		SignerKey:           os.Getenv("AUTH_SIGNER_KEY"),
		Issuer:              getEnvOrDefault("AUTH_ISSUER", "gatekeep-authority"),
		ValidDuration:       getEnvDurationOrDefault("AUTH_VALID_DURATION", jwtx.DefaultAccessTokenTTL),
		RefreshableDuration: getEnvDurationOrDefault("AUTH_REFRESHABLE_DURATION", jwtx.DefaultRefreshableDuration),

		PasswordAlgorithm: getEnvOrDefault("AUTH_PASSWORD_ALGORITHM", string(cryptox.AlgorithmBcrypt)),
		BcryptCost:        getEnvIntOrDefault("AUTH_BCRYPT_COST", cryptox.DefaultBcryptCost),
		PepperFile:        pepperFile,

		DatabaseDriver:    getEnvOrDefault("AUTH_DATABASE_DRIVER", DriverSQLite),
		DatabaseFile:      getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:       os.Getenv("AUTH_DATABASE_URL"),
		RevocationBackend: getEnvOrDefault("AUTH_REVOCATION_BACKEND", RevocationSQL),
		RedisURL:          getEnvOrDefault("AUTH_REDIS_URL", "redis://localhost:6379/0"),

		RequireActivation: getEnvBoolOrDefault("AUTH_REQUIRE_ACTIVATION", false),

		AdminUsername:     getEnvOrDefault("AUTH_ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("AUTH_ADMIN_PASSWORD"),
		AdminPasswordFile: getEnvOrDefault("AUTH_ADMIN_PASSWORD_FILE", filepath.Join(filepath.Dir(pepperFile), "admin-password")),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.SignerKey) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_SIGNER_KEY must be at least %d bytes", jwtx.MinSecretLength))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER must not be empty"))
	}
	if c.ValidDuration <= 0 {
		errs = append(errs, errors.New("AUTH_VALID_DURATION must be positive"))
	}
	if c.RefreshableDuration <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESHABLE_DURATION must be positive"))
	}

	if _, err := cryptox.ParseAlgorithm(c.PasswordAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_PASSWORD_ALGORITHM: %w", err))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("AUTH_BCRYPT_COST must be between 4 and 31"))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE must not be empty"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_DATABASE_DRIVER %q is not one of sqlite, postgres", c.DatabaseDriver))
	}

	switch c.RevocationBackend {
	case RevocationSQL, RevocationMemory:
	case RevocationRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("AUTH_REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_REVOCATION_BACKEND %q is not one of sql, redis, memory", c.RevocationBackend))
	}

	if c.AdminUsername == "" {
		errs = append(errs, errors.New("AUTH_ADMIN_USERNAME must not be empty"))
	}
	if c.AdminPassword == "" && c.AdminPasswordFile == "" {
		errs = append(errs, errors.New("AUTH_ADMIN_PASSWORD_FILE is required when AUTH_ADMIN_PASSWORD is unset"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("PORT must be between 1 and 65535"))
	}
	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_GRACE_PERIOD must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}
