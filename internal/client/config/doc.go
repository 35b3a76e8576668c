// Package config loads runtime configuration for the lecom client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c / -config or $LECOM_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   API base URL
//	-r string   token refresh URL
//	-w string   realtime hub URL
//	-t int      request timeout (seconds)
//	-d string   SQLite database path
//	-k string   passphrase that enables persisted credentials
//	-l string   log level
//	-m string   metrics listen address
//
// # JSON schema
//
//	{
//	  "api_base_url": "https://lecom.example/api",
//	  "request_timeout": "10s",
//	  "db_path": "lecom.db",
//	  "log_level": "debug"
//	}
package config
