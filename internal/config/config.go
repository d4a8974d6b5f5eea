// Package config loads the authgate server configuration from the environment and
// an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/spf13/viper"
)

// Backend names accepted by LEDGER_BACKEND and CREDENTIAL_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds server settings. Env vars override .env.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is "development" or "production". Production refuses the development secret.
	Env       string `mapstructure:"APP_ENV"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`

	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	LedgerBackend     string `mapstructure:"LEDGER_BACKEND"`
	CredentialBackend string `mapstructure:"CREDENTIAL_BACKEND"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTSigningMethod string        `mapstructure:"JWT_SIGNING_METHOD"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL     time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTTL       time.Duration `mapstructure:"REFRESH_TTL"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`

	PasswordAlgorithm string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`

	LoginThrottle    bool `mapstructure:"LOGIN_THROTTLE"`
	MaxLoginAttempts int  `mapstructure:"MAX_LOGIN_ATTEMPTS"`

	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`
	// KafkaBrokers is a comma-separated broker list. Empty disables the Kafka audit sink.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env (if present) from the working directory, then the environment.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LEDGER_BACKEND", BackendRedis)
	v.SetDefault("CREDENTIAL_BACKEND", BackendMemory)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_SIGNING_METHOD", "hs512")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_ACCESS_TTL", "5m")
	v.SetDefault("REFRESH_TTL", "24h")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("PASSWORD_ALGORITHM", "bcrypt")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("LOGIN_THROTTLE", false)
	v.SetDefault("MAX_LOGIN_ATTEMPTS", 5)
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "authgate-audit")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields the engine config cannot check on its own.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.LedgerBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis ledger")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	switch c.CredentialBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for postgres credentials")
		}
	default:
		return fmt.Errorf("config: unknown CREDENTIAL_BACKEND %q", c.CredentialBackend)
	}
	// refresh_tokens.user_id references users(id), which only the postgres
	// credential store populates.
	if c.LedgerBackend == BackendPostgres && c.CredentialBackend != BackendPostgres {
		return errors.New("config: LEDGER_BACKEND=postgres requires CREDENTIAL_BACKEND=postgres")
	}
	if c.LoginThrottle && c.LedgerBackend != BackendRedis && c.RedisAddr == "" {
		return errors.New("config: LOGIN_THROTTLE requires REDIS_ADDR")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set when APP_ENV=production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NeedsRedis reports whether the server must dial Redis.
func (c *Config) NeedsRedis() bool {
	return c.LedgerBackend == BackendRedis || c.LoginThrottle
}

// NeedsDatabase reports whether the server must open Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.LedgerBackend == BackendPostgres || c.CredentialBackend == BackendPostgres
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}

// KafkaBrokersList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EngineConfig maps server settings onto authgate.DefaultConfig.
func (c *Config) EngineConfig() authgate.Config {
	cfg := authgate.DefaultConfig()

	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.SigningMethod = c.JWTSigningMethod
	cfg.JWT.Issuer = c.JWTIssuer
	if c.JWTSecret != "" {
		cfg.JWT.Secret = []byte(c.JWTSecret)
	}

	cfg.Refresh.TTL = c.RefreshTTL
	cfg.Refresh.SweepInterval = c.SweepInterval

	cfg.Password.Algorithm = c.PasswordAlgorithm
	cfg.Password.BcryptCost = c.BcryptCost

	cfg.Security.ProductionMode = c.IsProduction()
	cfg.Security.EnableLoginThrottle = c.LoginThrottle
	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts

	cfg.Audit.Enabled = c.AuditEnabled
	return cfg
}
