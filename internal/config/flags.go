package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-b string       storage backend, "sqlite" or "postgres"
//	-d string       database DSN
//	-t int          session timeout, minutes
//	-v int          default view permission timeout, minutes
//	-n int          failed attempts before lockout
//	-k int          cipher blob version for new secrets
//	-log-level      slog level
//	-log-format     "text" or "json"
//
// Arguments belonging to other components are filtered out first with
// flagx.FilterArgs.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-b", "-d", "-t", "-v", "-n", "-k", "-log-level", "-log-format"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.DatabaseDriver, "b", config.DatabaseDriver, "storage backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	sessionTimeout := fs.Int("t", int(config.SessionTimeout.Minutes()), "session timeout (in minutes)")
	viewTimeout := fs.Int("v", int(config.DefaultViewTimeout.Minutes()), "default view permission timeout (in minutes)")
	fs.IntVar(&config.LockoutThreshold, "n", config.LockoutThreshold, "failed attempts before lockout")
	fs.IntVar(&config.CipherVersion, "k", config.CipherVersion, "cipher version for new secrets")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// minute flags only override when given, so sub-minute JSON values survive
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.SessionTimeout = time.Duration(*sessionTimeout) * time.Minute
		case "v":
			config.DefaultViewTimeout = time.Duration(*viewTimeout) * time.Minute
		}
	})
	return nil
}
