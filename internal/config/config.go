// Package config handles configuration loading from TOML files, .env files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the root configuration structure.
type Config struct {
	Client    ClientConfig    `toml:"client"`
	Server    ServerConfig    `toml:"server"`
	Responder ResponderConfig `toml:"responder"`
}

// ClientConfig holds settings for the chat client.
type ClientConfig struct {
	ServerURL      string   `toml:"server_url"`
	Token          string   `toml:"token"`
	SendRateLimit  float64  `toml:"send_rate_limit"`
	SendRateBurst  int      `toml:"send_rate_burst"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// ServerConfig holds settings for the development server.
type ServerConfig struct {
	Listen           string   `toml:"listen"`
	DBPath           string   `toml:"db_path"`
	APIToken         string   `toml:"api_token"`
	ResponseTimeout  Duration `toml:"response_timeout"`
	KeepAlive        Duration `toml:"keep_alive"`
	PlaceholderReply bool     `toml:"placeholder_reply"`
}

// ResponderConfig selects the assistant backend used by the development server.
type ResponderConfig struct {
	Provider    string  `toml:"provider"`
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	RateLimit   float64 `toml:"rate_limit"`
	RateBurst   int     `toml:"rate_burst"`
	APIKey      string  `toml:"api_key"`
}

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			ServerURL:      "http://localhost:8000",
			SendRateLimit:  1.0,
			SendRateBurst:  2,
			RequestTimeout: Duration{30 * time.Second},
		},
		Server: ServerConfig{
			Listen:           "127.0.0.1:8000",
			ResponseTimeout:  Duration{2 * time.Minute},
			KeepAlive:        Duration{15 * time.Second},
			PlaceholderReply: true,
		},
		Responder: ResponderConfig{
			Provider:    "echo",
			Endpoint:    "http://localhost:11434/v1",
			Model:       "llama3",
			Temperature: 0.7,
			RateLimit:   2.0,
			RateBurst:   3,
		},
	}
}

// Load reads configuration from a TOML file and applies environment variable overrides.
// Variables from a .env file next to the config file (or in the working directory) are
// loaded first; variables already set in the environment take precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	loadDotEnv(path)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				log.Warn().Err(err).Str("path", p).Msg("Ignoring unreadable .env file")
			}
			return
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}

	if v := os.Getenv("PARLEY_TOKEN"); v != "" {
		cfg.Client.Token = v
	}

	if v := os.Getenv("PARLEY_SEND_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Client.SendRateLimit = f
		}
	}

	if v := os.Getenv("PARLEY_SEND_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Client.SendRateBurst = n
		}
	}

	if v := os.Getenv("PARLEY_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.RequestTimeout = Duration{d}
		}
	}

	if v := os.Getenv("PARLEY_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}

	if v := os.Getenv("PARLEY_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}

	if v := os.Getenv("PARLEY_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}

	if v := os.Getenv("PARLEY_RESPONSE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ResponseTimeout = Duration{d}
		}
	}

	if v := os.Getenv("PARLEY_PLACEHOLDER_REPLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.PlaceholderReply = b
		}
	}

	if v := os.Getenv("PARLEY_RESPONDER"); v != "" {
		cfg.Responder.Provider = v
	}

	if v := os.Getenv("PARLEY_RESPONDER_ENDPOINT"); v != "" {
		cfg.Responder.Endpoint = v
	}

	if v := os.Getenv("PARLEY_RESPONDER_API_KEY"); v != "" {
		cfg.Responder.APIKey = v
	}

	if v := os.Getenv("PARLEY_RESPONDER_MODEL"); v != "" {
		cfg.Responder.Model = v
	}

	if v := os.Getenv("PARLEY_RESPONDER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Responder.Temperature = f
		}
	}

	if v := os.Getenv("PARLEY_RESPONDER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Responder.RateLimit = f
		}
	}

	if v := os.Getenv("PARLEY_RESPONDER_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Responder.RateBurst = n
		}
	}
}

// DataDir returns the path to the Parley data directory (~/.parley).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
