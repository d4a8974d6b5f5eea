package authgate

import (
	"bytes"
	"errors"
	"time"
)

// DevelopmentSecret is the signing secret used when none is configured. It is
// refused in production mode.
const DevelopmentSecret = "authgate-development-secret-do-not-use"

// Config is the full Engine configuration.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs512" or "hs256"
	Secret        []byte
	Issuer        string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures the refresh token ledger and its sweeper.
type RefreshConfig struct {
	TTL            time.Duration
	RedisPrefix    string
	SweepInterval  time.Duration
	SweepBatchSize int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hash algorithm and its cost.
type PasswordConfig struct {
	Algorithm        string // "argon2id" or "bcrypt"
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	BcryptCost       int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds production guards and the login throttle.
type SecurityConfig struct {
	ProductionMode        bool
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration suitable for development. Production
// deployments must at least set JWT.Secret and Security.ProductionMode.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "hs512",
			Secret:        []byte(DevelopmentSecret),
		},
		Refresh: RefreshConfig{
			TTL:            24 * time.Hour,
			RedisPrefix:    "ag",
			SweepInterval:  5 * time.Minute,
			SweepBatchSize: 500,
		},
		Password: PasswordConfig{
			Algorithm:        "argon2id",
			Memory:           64 * 1024,
			Time:             1,
			Parallelism:      4,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			BcryptCost:       10,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = append([]byte(nil), cfg.JWT.Secret...)
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "hs512" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.Secret) < 8 {
		return errors.New("JWT Secret must be at least 8 bytes")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.SweepInterval <= 0 {
		return errors.New("Refresh SweepInterval must be > 0")
	}
	if c.Refresh.SweepBatchSize <= 0 {
		return errors.New("Refresh SweepBatchSize must be > 0")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix must not be empty")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be within [4, 31]")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.MaxPasswordBytes < 8 {
		return errors.New("Password MaxPasswordBytes must be >= 8")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return errors.New("Security EnableIPThrottle requires EnableLoginThrottle")
	}
	if c.Security.ProductionMode {
		if bytes.Equal(c.JWT.Secret, []byte(DevelopmentSecret)) {
			return errors.New("the development JWT secret is not allowed in production mode")
		}
		if len(c.JWT.Secret) < 32 {
			return errors.New("JWT Secret must be at least 32 bytes in production mode")
		}
		if c.Password.Algorithm == "argon2id" && c.Password.Memory < 64*1024 {
			return errors.New("Password Memory must be >= 65536 KB in production mode")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}

	return nil
}
