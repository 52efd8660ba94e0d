// Package config handles configuration for the vault, including defaults,
// JSON overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/cryptox"
)

// Config holds runtime settings.
//
// Fields:
//   - DatabaseDriver / DatabaseDSN: "sqlite" (file path DSN) or "postgres" (pgx DSN).
//   - KDFTime / KDFMemoryKiB / KDFThreads: Argon2id cost for new accounts.
//   - CipherVersion: blob format written by the credential store (1 AES-GCM, 2 XChaCha20-Poly1305).
//   - SessionTimeout: lifetime of an authenticated session.
//   - LockoutThreshold / LockoutDuration: failures before lockout and its length.
//   - MinPasswordLength: shortest master password accepted at account creation.
//   - DefaultViewTimeout: view permission lifetime when the caller does not pick one.
//   - GrantRateLimit / GrantRateWindow: view permission attempts allowed per session per window.
//   - MaxViewsPerGrant: reveals allowed per permission, 0 for unlimited.
//   - SweepInterval: background cleanup period, 0 disables the sweepers.
//   - RevokeSessionsOnLockout: end live sessions when an account locks.
//   - LogLevel / LogFormat: slog level name and "text" or "json".
type Config struct {
	DatabaseDriver string
	DatabaseDSN    string

	KDFTime      uint32
	KDFMemoryKiB uint32
	KDFThreads   uint8

	CipherVersion int

	SessionTimeout          time.Duration
	LockoutThreshold        int
	LockoutDuration         time.Duration
	MinPasswordLength       int
	RevokeSessionsOnLockout bool

	DefaultViewTimeout time.Duration
	GrantRateLimit     int
	GrantRateWindow    time.Duration
	MaxViewsPerGrant   int

	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "keyvault.db"
	c.KDFTime = cryptox.DefaultKDF.Time
	c.KDFMemoryKiB = cryptox.DefaultKDF.MemoryKiB
	c.KDFThreads = cryptox.DefaultKDF.Threads
	c.CipherVersion = int(cryptox.DefaultCipherVersion)
	c.SessionTimeout = 30 * time.Minute
	c.LockoutThreshold = 5
	c.LockoutDuration = 15 * time.Minute
	c.MinPasswordLength = 8
	c.RevokeSessionsOnLockout = true
	c.DefaultViewTimeout = 5 * time.Minute
	c.GrantRateLimit = 10
	c.GrantRateWindow = time.Hour
	c.MaxViewsPerGrant = 0
	c.SweepInterval = 60 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// KDF returns the key derivation parameters for new accounts.
func (c *Config) KDF() cryptox.KDF {
	k := cryptox.DefaultKDF
	k.Time = c.KDFTime
	k.MemoryKiB = c.KDFMemoryKiB
	k.Threads = c.KDFThreads
	return k
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		add("database driver %q is not supported", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		add("database dsn is empty")
	}
	if err := c.KDF().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cryptox.ParseVersion(c.CipherVersion); err != nil {
		errs = append(errs, err)
	}
	if c.SessionTimeout <= 0 {
		add("session timeout must be positive")
	}
	if c.LockoutThreshold < 1 {
		add("lockout threshold must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		add("lockout duration must be positive")
	}
	if c.MinPasswordLength < 1 {
		add("minimum password length must be at least 1")
	}
	if c.DefaultViewTimeout < time.Minute || c.DefaultViewTimeout > time.Hour {
		add("default view timeout must be between 1m and 60m")
	}
	if c.GrantRateLimit < 1 {
		add("grant rate limit must be at least 1")
	}
	if c.GrantRateWindow <= 0 {
		add("grant rate window must be positive")
	}
	if c.MaxViewsPerGrant < 0 {
		add("max views per grant must not be negative")
	}
	if c.SweepInterval < 0 {
		add("sweep interval must not be negative")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		add("log level %q is not valid", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		add("log format %q is not valid", c.LogFormat)
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags. The
// result is validated.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
