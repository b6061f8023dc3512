package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxIntrospectTimeout bounds how long a single request may wait on the
// authority.
const MaxIntrospectTimeout = 30 * time.Second

// Config is the top-level configuration for the gateway.
type Config struct {
	// Listen is the TCP address to serve on. Defaults to ":8888".
	Listen string `yaml:"listen"`

	// APIPrefix is prepended to every public path and stripped before a
	// request is routed upstream. Defaults to "/api".
	APIPrefix string `yaml:"api_prefix"`

	// PublicPaths are suffixes of APIPrefix that bypass authentication. A
	// request is public when its path starts with APIPrefix+suffix, so
	// sub-paths of a public path are public too.
	PublicPaths []string `yaml:"public_paths"`

	Authority AuthorityConfig `yaml:"authority"`

	// Routes map path prefixes (after APIPrefix) to upstream services. The
	// longest matching prefix wins.
	Routes []RouteConfig `yaml:"routes"`

	// ShutdownGracePeriod bounds graceful shutdown. Defaults to 10s.
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`

	Log LogConfig `yaml:"log"`
}

// AuthorityConfig locates the introspection endpoint.
type AuthorityConfig struct {
	// URL is the authority's base URL, e.g. "http://localhost:8080".
	URL string `yaml:"url"`

	// IntrospectTimeout bounds each introspection call. Defaults to 2s.
	IntrospectTimeout time.Duration `yaml:"introspect_timeout"`
}

// RouteConfig defines a single upstream.
type RouteConfig struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Env    string `yaml:"env"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Listen:      ":8888",
		APIPrefix:   "/api",
		PublicPaths: []string{"/users/login", "/users/refresh", "/users/create", "/users/verify-otp"},
		Authority: AuthorityConfig{
			URL:               "http://localhost:8080",
			IntrospectTimeout: 2 * time.Second,
		},
		Routes: []RouteConfig{
			{Prefix: "/users", Upstream: "http://localhost:8080"},
		},
		ShutdownGracePeriod: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Env:    "dev",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path uses the defaults alone.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GATEWAY_LISTEN"); v != "" {
		c.Listen = v
	}
	if v, ok := os.LookupEnv("GATEWAY_API_PREFIX"); ok {
		c.APIPrefix = v
	}
	if v := os.Getenv("GATEWAY_AUTHORITY_URL"); v != "" {
		c.Authority.URL = v
	}
	if v := os.Getenv("GATEWAY_INTROSPECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_INTROSPECT_TIMEOUT: %w", err)
		}
		c.Authority.IntrospectTimeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Log.Env = v
	}
	return nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	if c.APIPrefix != "" && (!strings.HasPrefix(c.APIPrefix, "/") || strings.HasSuffix(c.APIPrefix, "/")) {
		errs = append(errs, fmt.Errorf("api_prefix %q must start and not end with /", c.APIPrefix))
	}
	for _, p := range c.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("public path %q must start with /", p))
		}
	}

	if err := validateHTTPURL(c.Authority.URL); err != nil {
		errs = append(errs, fmt.Errorf("authority.url: %w", err))
	}
	if c.Authority.IntrospectTimeout <= 0 || c.Authority.IntrospectTimeout > MaxIntrospectTimeout {
		errs = append(errs, fmt.Errorf("authority.introspect_timeout must be in (0, %s]", MaxIntrospectTimeout))
	}

	if len(c.Routes) == 0 {
		errs = append(errs, errors.New("at least one route is required"))
	}
	for i, r := range c.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			errs = append(errs, fmt.Errorf("routes[%d].prefix %q must start with /", i, r.Prefix))
		}
		if err := validateHTTPURL(r.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("routes[%d].upstream: %w", i, err))
		}
	}

	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, errors.New("shutdown_grace_period must be positive"))
	}

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
