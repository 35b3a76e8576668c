package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "http://h/api", "-t", "3", "-l", "debug", "-k", "secret", "-x", "ignored"}, expectPanic: false,
			expected: &Config{APIBaseURL: "http://h/api", RequestTimeout: 3 * time.Second, LogLevel: "debug", VaultPassphrase: "secret"}},
		{name: "Test2 all endpoints", args: []string{"cmd", "-r", "http://r", "-w", "ws://w", "-d", "x.db", "-m", ":9090"}, expectPanic: false,
			expected: &Config{RefreshURL: "http://r", HubURL: "ws://w", DBPath: "x.db", MetricsAddr: ":9090"}},
		{name: "Test3 incorrect timeout", args: []string{"cmd", "-t", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
