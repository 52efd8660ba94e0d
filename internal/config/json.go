package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keyvault/internal/flagx"
	"github.com/dmitrijs2005/keyvault/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Duration fields use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	DatabaseDriver          string         `json:"database_driver"`
	DatabaseDSN             string         `json:"database_dsn"`
	KDFTime                 uint32         `json:"kdf_time"`
	KDFMemoryKiB            uint32         `json:"kdf_memory_kib"`
	KDFThreads              uint8          `json:"kdf_threads"`
	CipherVersion           int            `json:"cipher_version"`
	SessionTimeout          timex.Duration `json:"session_timeout"`
	LockoutThreshold        int            `json:"lockout_threshold"`
	LockoutDuration         timex.Duration `json:"lockout_duration"`
	MinPasswordLength       int            `json:"min_password_length"`
	RevokeSessionsOnLockout bool           `json:"revoke_sessions_on_lockout"`
	DefaultViewTimeout      timex.Duration `json:"default_view_timeout"`
	GrantRateLimit          int            `json:"grant_rate_limit"`
	GrantRateWindow         timex.Duration `json:"grant_rate_window"`
	MaxViewsPerGrant        int            `json:"max_views_per_grant"`
	SweepInterval           timex.Duration `json:"sweep_interval"`
	LogLevel                string         `json:"log_level"`
	LogFormat               string         `json:"log_format"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		DatabaseDriver:          c.DatabaseDriver,
		DatabaseDSN:             c.DatabaseDSN,
		KDFTime:                 c.KDFTime,
		KDFMemoryKiB:            c.KDFMemoryKiB,
		KDFThreads:              c.KDFThreads,
		CipherVersion:           c.CipherVersion,
		SessionTimeout:          timex.Duration{Duration: c.SessionTimeout},
		LockoutThreshold:        c.LockoutThreshold,
		LockoutDuration:         timex.Duration{Duration: c.LockoutDuration},
		MinPasswordLength:       c.MinPasswordLength,
		RevokeSessionsOnLockout: c.RevokeSessionsOnLockout,
		DefaultViewTimeout:      timex.Duration{Duration: c.DefaultViewTimeout},
		GrantRateLimit:          c.GrantRateLimit,
		GrantRateWindow:         timex.Duration{Duration: c.GrantRateWindow},
		MaxViewsPerGrant:        c.MaxViewsPerGrant,
		SweepInterval:           timex.Duration{Duration: c.SweepInterval},
		LogLevel:                c.LogLevel,
		LogFormat:               c.LogFormat,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.DatabaseDriver = j.DatabaseDriver
	c.DatabaseDSN = j.DatabaseDSN
	c.KDFTime = j.KDFTime
	c.KDFMemoryKiB = j.KDFMemoryKiB
	c.KDFThreads = j.KDFThreads
	c.CipherVersion = j.CipherVersion
	c.SessionTimeout = j.SessionTimeout.Duration
	c.LockoutThreshold = j.LockoutThreshold
	c.LockoutDuration = j.LockoutDuration.Duration
	c.MinPasswordLength = j.MinPasswordLength
	c.RevokeSessionsOnLockout = j.RevokeSessionsOnLockout
	c.DefaultViewTimeout = j.DefaultViewTimeout.Duration
	c.GrantRateLimit = j.GrantRateLimit
	c.GrantRateWindow = j.GrantRateWindow.Duration
	c.MaxViewsPerGrant = j.MaxViewsPerGrant
	c.SweepInterval = j.SweepInterval.Duration
	c.LogLevel = j.LogLevel
	c.LogFormat = j.LogFormat
}

// parseJson overlays values from the file named by -c or -config. Keys
// missing from the file keep their current value. Without either flag
// nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.apply(config)
	return nil
}
