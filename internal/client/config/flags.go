package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/lecom/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   API base URL
//	-r string   token refresh URL
//	-w string   realtime hub URL
//	-t int      request timeout in seconds
//	-d string   SQLite database path
//	-k string   passphrase that enables persisted credentials
//	-l string   log level
//	-m string   metrics listen address
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-w", "-t", "-d", "-k", "-l", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "API base URL")
	fs.StringVar(&cfg.RefreshURL, "r", cfg.RefreshURL, "token refresh URL (default: <api>/auth/refresh)")
	fs.StringVar(&cfg.HubURL, "w", cfg.HubURL, "realtime hub URL (default: derived from the API URL)")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.VaultPassphrase, "k", cfg.VaultPassphrase, "passphrase for persisted credentials")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address, empty to disable")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
