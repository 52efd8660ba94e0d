package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"database_driver":            "postgres",
		"database_dsn":               "postgres://vault",
		"kdf_time":                   1,
		"kdf_memory_kib":             8192,
		"kdf_threads":                1,
		"cipher_version":             2,
		"session_timeout":            "45m",
		"lockout_threshold":          3,
		"lockout_duration":           "5m",
		"min_password_length":        12,
		"revoke_sessions_on_lockout": false,
		"default_view_timeout":       "2m",
		"grant_rate_limit":           4,
		"grant_rate_window":          "30m",
		"max_views_per_grant":        7,
		"sweep_interval":             int64(30 * time.Second),
		"log_level":                  "warn",
		"log_format":                 "json",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-config", full}))

		want := &Config{
			DatabaseDriver:          "postgres",
			DatabaseDSN:             "postgres://vault",
			KDFTime:                 1,
			KDFMemoryKiB:            8192,
			KDFThreads:              1,
			CipherVersion:           2,
			SessionTimeout:          45 * time.Minute,
			LockoutThreshold:        3,
			LockoutDuration:         5 * time.Minute,
			MinPasswordLength:       12,
			RevokeSessionsOnLockout: false,
			DefaultViewTimeout:      2 * time.Minute,
			GrantRateLimit:          4,
			GrantRateWindow:         30 * time.Minute,
			MaxViewsPerGrant:        7,
			SweepInterval:           30 * time.Second,
			LogLevel:                "warn",
			LogFormat:               "json",
		}
		assert.Empty(t, cmp.Diff(want, cfg))
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"database_dsn": "other.db"})
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-c", partial}))

		want := &Config{}
		want.LoadDefaults()
		want.DatabaseDSN = "other.db"
		assert.Empty(t, cmp.Diff(want, cfg))
	})

	t.Run("no config flag, no changes", func(t *testing.T) {
		cfg := &Config{DatabaseDSN: "keep.db", SessionTimeout: 2 * time.Minute}
		require.NoError(t, parseJson(cfg, []string{"-d", "x"}))
		assert.Equal(t, "keep.db", cfg.DatabaseDSN)
		assert.Equal(t, 2*time.Minute, cfg.SessionTimeout)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		require.Error(t, parseJson(&Config{}, []string{"-config", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		require.Error(t, parseJson(&Config{}, []string{"-c", filepath.Join(dir, "nope.json")}))
	})
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{"database_dsn": "from-json.db", "lockout_threshold": 7})

	cfg, err := LoadConfig([]string{"-c", path, "-d", "from-flag.db"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.DatabaseDSN)
	assert.Equal(t, 7, cfg.LockoutThreshold)
}
