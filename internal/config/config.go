// Package config loads locvault settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Switch is a boolean that also accepts yes/no and on/off
type Switch bool

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Switch) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes", "on", "y", "t":
		*s = true
	case "0", "false", "no", "off", "n", "f", "":
		*s = false
	default:
		return fmt.Errorf("invalid boolean: %q", text)
	}
	return nil
}

// Config holds server settings
type Config struct {
	Port             int           `env:"PORT"                           envDefault:"10000"`
	Passphrase       string        `env:"ENCRYPT_PASSPHRASE"             envDefault:"mySecret123"`
	EncryptResponse  Switch        `env:"ENCRYPT_RESPONSE"               envDefault:"true"`
	DataDir          string        `env:"LOCVAULT_DATA_DIR"              envDefault:"./data"`
	Storage          string        `env:"LOCVAULT_STORAGE"               envDefault:"file"`
	DefaultGrantMins int           `env:"LOCVAULT_DEFAULT_GRANT_MINUTES" envDefault:"5"`
	SweepInterval    time.Duration `env:"LOCVAULT_SWEEP_INTERVAL"        envDefault:"1m"`
	KDF              string        `env:"LOCVAULT_KDF"                   envDefault:"argon2id"`
	Cipher           string        `env:"LOCVAULT_CIPHER"                envDefault:"aes-256-gcm"`
	PlacesFile       string        `env:"LOCVAULT_PLACES_FILE"`
	SearchRadius     string        `env:"LOCVAULT_SEARCH_RADIUS"         envDefault:"2km"`
	PublicURL        string        `env:"LOCVAULT_PUBLIC_URL"            envDefault:"http://localhost:10000"`
	CORSOrigins      []string      `env:"LOCVAULT_CORS_ORIGINS"          envDefault:"*" envSeparator:","`
	LogLevel         string        `env:"LOCVAULT_LOG_LEVEL"             envDefault:"info"`
	LogFormat        string        `env:"LOCVAULT_LOG_FORMAT"            envDefault:"text"`
	ShutdownTimeout  time.Duration `env:"LOCVAULT_SHUTDOWN_TIMEOUT"      envDefault:"15s"`
	History          Switch        `env:"LOCVAULT_HISTORY"               envDefault:"true"`
	HistoryLimit     int           `env:"LOCVAULT_HISTORY_LIMIT"         envDefault:"100"`
	WebhookURL       string        `env:"LOCVAULT_WEBHOOK_URL"`
	WebhookSecret    string        `env:"LOCVAULT_WEBHOOK_SECRET"`
	WebhookEvents    []string      `env:"LOCVAULT_WEBHOOK_EVENTS"        envSeparator:","`
	AdminToken       string        `env:"LOCVAULT_ADMIN_TOKEN"`
}

// Load parses the environment, applying defaults
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that env tags cannot express
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.Passphrase == "" {
		return fmt.Errorf("ENCRYPT_PASSPHRASE must not be empty")
	}
	if c.DefaultGrantMins <= 0 {
		return fmt.Errorf("LOCVAULT_DEFAULT_GRANT_MINUTES must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("LOCVAULT_HISTORY_LIMIT must be positive")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("LOCVAULT_SWEEP_INTERVAL must not be negative")
	}
	switch c.Storage {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("LOCVAULT_STORAGE must be memory, file or sqlite: %q", c.Storage)
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("LOCVAULT_WEBHOOK_URL must be an http(s) URL: %q", c.WebhookURL)
		}
	}
	return nil
}

// Addr returns the listen address for Port
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger builds a logrus logger from the level and format settings
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOCVAULT_LOG_LEVEL: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	switch c.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOCVAULT_LOG_FORMAT must be text or json: %q", c.LogFormat)
	}
	return logger, nil
}
