// Package config holds the bot configuration: a JSON5 file overlaid with
// ROLESBOT_* environment variables. Secrets (the Gupshup API key and the
// Postgres DSN) come from env only and never persist in the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Gupshup   GupshupConfig   `json:"gupshup"`
	ClubsDir  string          `json:"clubs_dir"`
	Sessions  SessionsConfig  `json:"sessions"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// GupshupConfig configures the WhatsApp provider.
// APIKey is NEVER read from the file — only from env ROLESBOT_GUPSHUP_API_KEY.
type GupshupConfig struct {
	APIKey         string `json:"-"`
	AppName        string `json:"app_name"`
	Source         string `json:"source"`
	VerifyToken    string `json:"verify_token"`
	RateLimitRPM   int    `json:"rate_limit_rpm"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SessionsConfig selects where conversation sessions live.
// Backend is "memory" (default), "sqlite" or "postgres".
type SessionsConfig struct {
	Backend    string `json:"backend"`
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// DatabaseConfig holds the Postgres connection for the postgres session
// backend. DSN from env ROLESBOT_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Protocol    string  `json:"protocol,omitempty"`
	Insecure    bool    `json:"insecure,omitempty"`
	ServiceName string  `json:"service_name,omitempty"`
	Environment string  `json:"environment,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		ClubsDir: "./clubs",
		Gupshup: GupshupConfig{
			RateLimitRPM:   40,
			TimeoutSeconds: 10,
		},
		Sessions: SessionsConfig{
			Backend:    "memory",
			SQLitePath: "./sessions.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "rolesbot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; env vars alone can configure the bot.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ROLESBOT_GUPSHUP_API_KEY", &c.Gupshup.APIKey)
	envStr("ROLESBOT_GUPSHUP_APP_NAME", &c.Gupshup.AppName)
	envStr("ROLESBOT_GUPSHUP_SOURCE", &c.Gupshup.Source)
	envStr("ROLESBOT_VERIFY_TOKEN", &c.Gupshup.VerifyToken)
	envStr("ROLESBOT_CLUBS_DIR", &c.ClubsDir)
	envStr("ROLESBOT_SESSIONS_BACKEND", &c.Sessions.Backend)
	envStr("ROLESBOT_SESSIONS_SQLITE_PATH", &c.Sessions.SQLitePath)
	envStr("ROLESBOT_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("ROLESBOT_HOST", &c.Server.Host)
	if v := os.Getenv("ROLESBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	envStr("ROLESBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("ROLESBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("ROLESBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("ROLESBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ROLESBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Validate fails fast on configuration the bot cannot run without.
func (c *Config) Validate() error {
	if c.Gupshup.APIKey == "" {
		return fmt.Errorf("gupshup api key is required (set ROLESBOT_GUPSHUP_API_KEY)")
	}
	if c.Gupshup.Source == "" {
		return fmt.Errorf("gupshup source number is required")
	}
	if c.Gupshup.VerifyToken == "" {
		return fmt.Errorf("webhook verify token is required")
	}
	switch c.Sessions.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("postgres session backend needs ROLESBOT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown sessions backend %q", c.Sessions.Backend)
	}
	return nil
}
