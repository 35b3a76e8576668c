package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/lecom/internal/flagx"
	"github.com/dmitrijs2005/lecom/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "10s" or as integer nanoseconds.
type JsonConfig struct {
	APIBaseURL      string         `json:"api_base_url"`
	RefreshURL      string         `json:"refresh_url"`
	HubURL          string         `json:"hub_url"`
	RequestTimeout  timex.Duration `json:"request_timeout"`
	DBPath          string         `json:"db_path"`
	VaultPassphrase string         `json:"vault_passphrase"`
	LogLevel        string         `json:"log_level"`
	MetricsAddr     string         `json:"metrics_addr"`
}

// parseJson overlays Config with values loaded from a JSON file found via
// flagx.ConfigPath (-c, -config or $LECOM_CONFIG). Keys missing from the
// file leave the current values alone. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.RefreshURL, jc.RefreshURL)
	setString(&cfg.HubURL, jc.HubURL)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.VaultPassphrase, jc.VaultPassphrase)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
