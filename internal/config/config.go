// Package config loads graphadm settings from a TOML file with environment
// overrides. Secrets are expected in the environment (or a .env file) rather
// than on disk; a missing client secret can be prompted for interactively.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"
)

// Defaults for the retry and rate-limit sections.
const (
	DefaultMaxRetries        = 5
	DefaultBaseDelaySeconds  = 15
	DefaultRequestsPerSecond = 10.0
	DefaultBurst             = 15
)

// ErrMissingCredentials indicates tenant or client identifiers are not set.
var ErrMissingCredentials = errors.New("config: tenant_id and client_id are required")

// RetryConfig controls the resilient call executor.
type RetryConfig struct {
	// MaxRetries bounds total invocations per call (default 5).
	MaxRetries int `toml:"max_retries"`
	// BaseDelaySeconds is multiplied by the attempt number between retries
	// (default 15).
	BaseDelaySeconds int `toml:"base_delay_seconds"`
}

// BaseDelay returns the configured base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds) * time.Second
}

// RateLimitConfig controls the client-side token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Config is the full graphadm configuration.
type Config struct {
	// TenantID is the Entra tenant GUID.
	TenantID string `toml:"tenant_id"`
	// ClientID is the app registration (client) GUID.
	ClientID string `toml:"client_id"`
	// ClientSecret authenticates the app. Prefer GRAPHADM_CLIENT_SECRET
	// over storing it in the file.
	ClientSecret string `toml:"client_secret"`

	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// DefaultPath returns ~/.graphadm/config.toml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".graphadm", "config.toml")
}

// Load reads the config file at path (skipped silently when absent), applies
// environment overrides, and fills defaults. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	// Ignore the error: a missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		Retry: RetryConfig{
			MaxRetries:       DefaultMaxRetries,
			BaseDelaySeconds: DefaultBaseDelaySeconds,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fine; environment-only configuration.
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Retry.MaxRetries < 1 {
		cfg.Retry.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retry.BaseDelaySeconds < 0 {
		cfg.Retry.BaseDelaySeconds = DefaultBaseDelaySeconds
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = DefaultBurst
	}

	return cfg, nil
}

// applyEnv overrides file values with GRAPHADM_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GRAPHADM_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("GRAPHADM_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("GRAPHADM_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("GRAPHADM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("GRAPHADM_BASE_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retry.BaseDelaySeconds = n
		}
	}
}

// Validate checks the identifiers needed to open a session.
func (c *Config) Validate() error {
	if c.TenantID == "" || c.ClientID == "" {
		return ErrMissingCredentials
	}
	if err := validateGUID(c.TenantID, "tenant_id"); err != nil {
		return err
	}
	if err := validateGUID(c.ClientID, "client_id"); err != nil {
		return err
	}
	return nil
}

// validateGUID checks the 8-4-4-4-12 shape without being strict about case.
func validateGUID(guid, field string) error {
	guid = strings.TrimSpace(guid)
	if len(guid) != 36 {
		return fmt.Errorf("config: %s must be a GUID (36 characters)", field)
	}
	if guid[8] != '-' || guid[13] != '-' || guid[18] != '-' || guid[23] != '-' {
		return fmt.Errorf("config: %s is not a valid GUID", field)
	}
	for i, r := range guid {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			continue
		}
		if !isHex(byte(r)) {
			return fmt.Errorf("config: %s is not a valid GUID", field)
		}
	}
	return nil
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// PromptSecret reads the client secret from the terminal without echo.
// Fails when stdin is not a terminal (CI, piped input).
func PromptSecret() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", errors.New("config: client secret not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Client secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
