package authgate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/permission"
	"github.com/MrEthical07/authgate/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once, call Build, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	ledger      refresh.Ledger
	credentials CredentialStore
	policy      *permission.Policy
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for the default refresh ledger and the
// login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLedger sets the refresh token ledger. It takes precedence over the
// Redis-backed default.
func (b *Builder) WithLedger(l refresh.Ledger) *Builder {
	b.ledger = l
	return b
}

// WithCredentialStore sets the user store. Required.
func (b *Builder) WithCredentialStore(s CredentialStore) *Builder {
	b.credentials = s
	return b
}

// WithPolicy overrides permission.DefaultPolicy.
func (b *Builder) WithPolicy(p *permission.Policy) *Builder {
	b.policy = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for engine faults. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the wall clock for the codec, the default ledger and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. A Builder can
// be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrEngineNotReady)
	}
	if b.ledger == nil && b.redis == nil {
		return nil, fmt.Errorf("%w: refresh ledger or redis client required", ErrEngineNotReady)
	}
	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// -------- ACCESS TOKEN CODEC --------
	codec, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.New(password.Options{
		Algorithm: password.Algorithm(cfg.Password.Algorithm),
		Argon2: password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
		},
		BcryptCost: cfg.Password.BcryptCost,
	})
	if err != nil {
		return nil, err
	}

	// -------- REFRESH LEDGER --------
	ledger := b.ledger
	if ledger == nil {
		ledger = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix, refresh.StoreConfig{
			TTL:            cfg.Refresh.TTL,
			SweepBatchSize: cfg.Refresh.SweepBatchSize,
			Now:            now,
		})
	}

	// -------- LOGIN THROTTLE --------
	var limiter *rate.Limiter
	if cfg.Security.EnableLoginThrottle {
		limiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Refresh.RedisPrefix,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	policy := b.policy
	if policy == nil {
		policy = permission.DefaultPolicy()
	}

	b.built = true

	return &Engine{
		config:      cfg,
		codec:       codec,
		hasher:      hasher,
		ledger:      ledger,
		credentials: b.credentials,
		limiter:     limiter,
		policy:      policy,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		now:         now,
	}, nil
}
