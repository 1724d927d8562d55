package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/illarion/stegvault/internal/crypto"
)

// Config holds settings read from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
type Config struct {
	Password       string `env:"STEGVAULT_PASSWORD"`
	PlainInputFile string `env:"PLAIN_INPUT_FILE"`
	KDFIterations  int    `env:"STEGVAULT_KDF_ITERATIONS" envDefault:"200000"`
	Ledger         string `env:"STEGVAULT_LEDGER" envDefault:".stegvault"`
	NoLedger       bool   `env:"STEGVAULT_NO_LEDGER" envDefault:"false"`
	LogLevel       string `env:"STEGVAULT_LOG_LEVEL" envDefault:"info"`

	Server ServerConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `env:"STEGVAULT_ADDR" envDefault:":4000"`
	MaxUploadBytes  int64         `env:"STEGVAULT_MAX_UPLOAD" envDefault:"33554432"`
	MaxInlineBytes  int64         `env:"STEGVAULT_MAX_INLINE" envDefault:"204800"`
	ReadTimeout     time.Duration `env:"STEGVAULT_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"STEGVAULT_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"STEGVAULT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"STEGVAULT_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:5174,http://localhost:3000"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads .env (if any) and parses the environment into a Config
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse()
}

// Parse reads the current environment without touching .env files
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that the env tags cannot express
func (c *Config) Validate() error {
	if c.KDFIterations < 1 {
		return fmt.Errorf("%w: STEGVAULT_KDF_ITERATIONS must be at least 1", ErrInvalidConfig)
	}
	if c.Ledger == "" && !c.NoLedger {
		return fmt.Errorf("%w: STEGVAULT_LEDGER is empty", ErrInvalidConfig)
	}
	if c.Server.MaxUploadBytes <= 0 || c.Server.MaxInlineBytes < 0 {
		return fmt.Errorf("%w: upload and inline limits must be positive", ErrInvalidConfig)
	}
	return nil
}

// PasswordBytes returns a copy of the configured password, or nil when
// STEGVAULT_PASSWORD is unset. The caller should clear it after use.
func (c *Config) PasswordBytes() []byte {
	if c.Password == "" {
		return nil
	}
	return []byte(c.Password)
}

// Envelope builds the crypto envelope for the configured iteration count
func (c *Config) Envelope() *crypto.Envelope {
	return crypto.NewEnvelope(crypto.WithIterations(c.KDFIterations))
}
