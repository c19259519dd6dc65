// Package config loads the process-wide settings of the playground backend.
//
// A Config is built once at startup and then only read. The bearer-token
// secret is decoded into an unexported field so that nothing can swap it
// after the token issuer has been constructed.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendAWS    = "aws"
	BackendMemory = "memory"

	minSecretBytes = 32
)

type Config struct {
	DevMode       bool   `env:"DEV_MODE" envDefault:"false"`
	HostPort      string `env:"HOST_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecretBase64 string        `env:"JWT_SECRET,required,unset"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	KDFScheme  string `env:"KDF_SCHEME" envDefault:"scrypt"`
	KDFWorkers int    `env:"KDF_WORKERS" envDefault:"4"`

	Backend            string `env:"BACKEND" envDefault:"aws"`
	DynamoDBEndpoint   string `env:"DYNAMODB_ENDPOINT"`
	DynamoDBTable      string `env:"DYNAMODB_TABLE" envDefault:"SpectraPlayground"`
	RedisEndpoint      string `env:"REDIS_ENDPOINT" envDefault:"localhost:6379"`
	SQSEndpoint        string `env:"SQS_ENDPOINT"`
	SQSShareSweepQueue string `env:"SQS_SHARE_SWEEP_QUEUE" envDefault:"PurgeExpiredSharesQueue"`

	LabAPIURL       string `env:"LAB_API_URL" envDefault:"http://localhost:8000/api"`
	LabClientID     string `env:"LAB_CLIENT_ID"`
	LabClientSecret string `env:"LAB_CLIENT_SECRET,unset"`
	LabTokenURL     string `env:"LAB_TOKEN_URL"`

	DecryptMaxAttempts   int           `env:"DECRYPT_MAX_ATTEMPTS" envDefault:"10"`
	DecryptAttemptWindow time.Duration `env:"DECRYPT_ATTEMPT_WINDOW" envDefault:"15m"`
	DecryptRatePerSecond float64       `env:"DECRYPT_RATE_PER_SECOND" envDefault:"1"`
	DecryptBurst         int           `env:"DECRYPT_BURST" envDefault:"5"`

	LoginRatePerSecond float64 `env:"LOGIN_RATE_PER_SECOND" envDefault:"1"`
	LoginBurst         int     `env:"LOGIN_BURST" envDefault:"10"`

	secret []byte
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	secret, err := base64.StdEncoding.DecodeString(c.JWTSecretBase64)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: invalid base64: %w", err)
	}
	if len(secret) < minSecretBytes {
		return fmt.Errorf("JWT_SECRET: got %d bytes, want at least %d", len(secret), minSecretBytes)
	}
	c.secret = secret
	c.JWTSecretBase64 = ""

	switch c.Backend {
	case BackendAWS, BackendMemory:
	default:
		return fmt.Errorf("BACKEND: unsupported value %q", c.Backend)
	}
	switch c.KDFScheme {
	case "scrypt", "argon2id":
	default:
		return fmt.Errorf("KDF_SCHEME: unsupported value %q", c.KDFScheme)
	}
	if c.KDFWorkers < 1 {
		return errors.New("KDF_WORKERS must be at least 1")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.DecryptMaxAttempts < 1 {
		return errors.New("DECRYPT_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Secret returns a copy of the bearer-token signing secret.
func (c *Config) Secret() []byte {
	out := make([]byte, len(c.secret))
	copy(out, c.secret)
	return out
}
