package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name     string
		args     []string
		expected func() *Config
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{"-b", "postgres", "-d", "postgres://u:p@db/vault", "-t", "10", "-v", "2",
				"-n", "3", "-k", "2", "-log-level", "debug", "-log-format=json"},
			expected: func() *Config {
				c := defaults()
				c.DatabaseDriver = "postgres"
				c.DatabaseDSN = "postgres://u:p@db/vault"
				c.SessionTimeout = 10 * time.Minute
				c.DefaultViewTimeout = 2 * time.Minute
				c.LockoutThreshold = 3
				c.CipherVersion = 2
				c.LogLevel = "debug"
				c.LogFormat = "json"
				return c
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"-x", "1", "-c", "cfg.json", "positional"},
			expected: defaults,
		},
		{
			name:    "bad int",
			args:    []string{"-t", "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := defaults()
			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected(), config))
		})
	}
}

func TestParseFlags_KeepsSubMinuteDurationsWhenUnset(t *testing.T) {
	config := &Config{}
	config.LoadDefaults()
	config.SessionTimeout = 90 * time.Second

	require.NoError(t, parseFlags(config, []string{"-n", "4"}))
	assert.Equal(t, 90*time.Second, config.SessionTimeout)
}
