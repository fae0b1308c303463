package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config holds all configuration for the application
type Config struct {
	Addr          string
	PublicURL     string
	SessionSecret string
	SessionMaxAge int
	Production    bool

	StorageBackend string
	DSN            string

	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	BucketPrefix    string

	GoogleKey    string
	GoogleSecret string

	GeneratorURL      string
	ImageWidth        int
	ImageHeight       int
	VerifyGeneration  bool
	GenerationTimeout time.Duration
	GenerationSpacing time.Duration

	RateLimit int
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Addr:            orDefault(getenv("ADDR"), ":3000"),
		PublicURL:       orDefault(getenv("PUBLIC_URL"), "http://localhost:3000"),
		SessionSecret:   getenv("SESSION_SECRET"),
		Production:      getenv("ENV") == "production",
		StorageBackend:  orDefault(getenv("STORAGE_BACKEND"), BackendMemory),
		DSN:             getenv("DSN"),
		AccountID:       getenv("ACCOUNT_ID"),
		AccessKeyID:     getenv("ACCESS_KEY_ID"),
		AccessKeySecret: getenv("ACCESS_KEY_SECRET"),
		BucketName:      getenv("BUCKET_NAME"),
		BucketPrefix:    orDefault(getenv("BUCKET_PREFIX"), "galleries"),
		GoogleKey:       getenv("GOOGLE_KEY"),
		GoogleSecret:    getenv("GOOGLE_SECRET"),
		GeneratorURL:    getenv("GENERATOR_URL"),
	}

	var err error
	if cfg.SessionMaxAge, err = intOr(getenv, "SESSION_MAX_AGE", 86400*30); err != nil {
		return nil, err
	}
	if cfg.ImageWidth, err = intOr(getenv, "IMAGE_WIDTH", 1024); err != nil {
		return nil, err
	}
	if cfg.ImageHeight, err = intOr(getenv, "IMAGE_HEIGHT", 1024); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = intOr(getenv, "RATE_LIMIT_PER_MINUTE", 20); err != nil {
		return nil, err
	}

	timeout, err := intOr(getenv, "GENERATION_TIMEOUT", 120)
	if err != nil {
		return nil, err
	}
	cfg.GenerationTimeout = time.Duration(timeout) * time.Second

	spacing, err := intOr(getenv, "GENERATION_SPACING_MS", 0)
	if err != nil {
		return nil, err
	}
	cfg.GenerationSpacing = time.Duration(spacing) * time.Millisecond

	if v := getenv("VERIFY_GENERATION"); v != "" {
		if cfg.VerifyGeneration, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("VERIFY_GENERATION: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("DSN is required for the postgres backend")
		}
	case BackendS3:
		if c.AccountID == "" || c.AccessKeyID == "" || c.AccessKeySecret == "" {
			return fmt.Errorf("ACCOUNT_ID, ACCESS_KEY_ID and ACCESS_KEY_SECRET are required for the s3 backend")
		}
		if c.BucketName == "" {
			return fmt.Errorf("BUCKET_NAME is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	// Accounts always live in postgres unless everything runs in memory.
	if c.StorageBackend == BackendS3 && c.DSN == "" {
		return fmt.Errorf("DSN is required for user accounts")
	}
	return nil
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleKey != "" && c.GoogleSecret != ""
}

// CallbackURL is the OAuth redirect target for provider.
func (c *Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/%s/callback", c.PublicURL, provider)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
