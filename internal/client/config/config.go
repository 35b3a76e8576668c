package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds runtime settings for the lecom client.
//
// RefreshURL and HubURL may be left empty; RefreshEndpoint and HubEndpoint
// then derive them from APIBaseURL.
type Config struct {
	APIBaseURL     string
	RefreshURL     string
	HubURL         string
	RequestTimeout time.Duration

	// DBPath is the SQLite file for persisted credentials. It is only used
	// when VaultPassphrase is set; otherwise credentials live in memory.
	DBPath          string
	VaultPassphrase string

	LogLevel    string
	MetricsAddr string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.RefreshURL = ""
	c.HubURL = ""
	c.RequestTimeout = 10 * time.Second
	c.DBPath = "lecom.db"
	c.VaultPassphrase = ""
	c.LogLevel = "info"
	c.MetricsAddr = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// Validate checks that the endpoints are usable absolute URLs.
func (c *Config) Validate() error {
	if _, err := absolute(c.APIBaseURL); err != nil {
		return fmt.Errorf("api base url: %w", err)
	}
	if _, err := c.HubEndpoint(); err != nil {
		return fmt.Errorf("hub url: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// RefreshEndpoint returns RefreshURL, or APIBaseURL + "/auth/refresh".
func (c *Config) RefreshEndpoint() string {
	if c.RefreshURL != "" {
		return c.RefreshURL
	}
	return strings.TrimRight(c.APIBaseURL, "/") + "/auth/refresh"
}

// HubEndpoint returns HubURL, or the /hubs/chat websocket endpoint on the
// API host (ws for http, wss for https).
func (c *Config) HubEndpoint() (string, error) {
	if c.HubURL != "" {
		u, err := absolute(c.HubURL)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}

	u, err := absolute(c.APIBaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/hubs/chat"
	u.RawQuery = ""
	return u.String(), nil
}

func absolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute url", raw)
	}
	return u, nil
}
