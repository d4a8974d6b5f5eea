package authgate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/credentials"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/permission"
	"github.com/MrEthical07/authgate/refresh"
)

// Engine is the session service: it registers users, exchanges credentials for
// token pairs, rotates refresh tokens and resolves access tokens to identities.
//
// Engine is safe for concurrent use. It holds no lock across storage I/O;
// single-use refresh semantics come from the ledger's atomic consume.
type Engine struct {
	config      Config
	codec       *jwt.Manager
	hasher      password.Hasher
	ledger      refresh.Ledger
	credentials CredentialStore
	limiter     *rate.Limiter
	policy      *permission.Policy
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Policy returns the route authorization policy.
func (e *Engine) Policy() *permission.Policy {
	return e.policy
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) fault(ctx context.Context, op string, err error) error {
	e.metricInc(MetricInternalErrors)
	e.logger.ErrorContext(ctx, "authgate: "+op+" failed", slog.Any("err", err))
	return internalError(op, err)
}

// Register validates req, rejects a login or email that is already in use
// (case-insensitively), hashes the password and persists the user.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if err := req.Validate(); err != nil {
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, AuditRegisterFailure, false, 0, err, nil)
		return User{}, err
	}
	if req.Password != req.PasswordConfirmation {
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, AuditRegisterFailure, false, 0, ErrPasswordMismatch, nil)
		return User{}, ErrPasswordMismatch
	}

	_, err := e.credentials.FindByLoginOrEmail(ctx, req.Login, req.Email)
	switch {
	case err == nil:
		return User{}, e.registerConflict(ctx, req)
	case !errors.Is(err, credentials.ErrNotFound):
		return User{}, e.fault(ctx, "register lookup", err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			verr := &ValidationError{}
			verr.Add("password", err.Error())
			e.metricInc(MetricRegisterRejected)
			return User{}, verr
		}
		return User{}, e.fault(ctx, "password hash", err)
	}

	user, err := e.credentials.Create(ctx, NewUser{
		Login:        req.Login,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	})
	if err != nil {
		// A concurrent registration can win the race after the lookup above.
		if errors.Is(err, credentials.ErrTaken) {
			return User{}, e.registerConflict(ctx, req)
		}
		return User{}, e.fault(ctx, "register create", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegisterSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"role": string(user.Role),
		}
	})
	return user, nil
}

func (e *Engine) registerConflict(ctx context.Context, req RegisterRequest) error {
	e.metricInc(MetricRegisterConflict)
	e.emitAudit(ctx, AuditRegisterFailure, false, 0, ErrIdentityTaken, func() map[string]string {
		return map[string]string{
			"login": req.Login,
		}
	})
	return ErrIdentityTaken
}

// Login exchanges a login-or-email and password for a fresh token pair.
// The identifier is trimmed before lookup. Unknown users get ErrUserNotFound
// and wrong passwords ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, loginOrEmail, plain string) (TokenPair, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	loginOrEmail = strings.TrimSpace(loginOrEmail)
	if err := validateLogin(loginOrEmail, plain); err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, err
	}

	ip := ClientIPFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, loginOrEmail, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, AuditLoginRateLimited, false, 0, ErrLoginRateLimited, func() map[string]string {
					return map[string]string{
						"identifier": loginOrEmail,
					}
				})
				return TokenPair{}, ErrLoginRateLimited
			}
			return TokenPair{}, e.fault(ctx, "login throttle", err)
		}
	}

	user, err := e.credentials.FindByCredential(ctx, loginOrEmail)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			e.loginFailed(ctx, loginOrEmail, 0, ErrUserNotFound, "user_not_found")
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, e.fault(ctx, "login lookup", err)
	}

	ok, err := e.hasher.Verify(plain, user.PasswordHash)
	if err != nil && errors.Is(err, password.ErrMalformedHash) {
		return TokenPair{}, e.fault(ctx, "password verify", err)
	}
	if err != nil || !ok {
		e.loginFailed(ctx, loginOrEmail, user.ID, ErrInvalidCredentials, "password_mismatch")
		return TokenPair{}, ErrInvalidCredentials
	}

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, loginOrEmail, ip); err != nil {
			e.logger.WarnContext(ctx, "authgate: login throttle reset failed", slog.Any("err", err))
		}
	}
	if upgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash); err == nil && upgrade {
		e.logger.InfoContext(ctx, "authgate: password hash uses outdated parameters", slog.Int64("user_id", user.ID))
	}

	pair, err := e.issuePair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, e.fault(ctx, "login issue", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, user.ID, nil, nil)
	return pair, nil
}

func (e *Engine) loginFailed(ctx context.Context, identifier string, userID int64, err error, reason string) {
	if e.limiter != nil {
		// ErrRateLimited here only means this attempt crossed the limit; the next
		// CheckLogin rejects.
		if incErr := e.limiter.IncrementLogin(ctx, identifier, ClientIPFromContext(ctx)); incErr != nil && !errors.Is(incErr, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "authgate: login throttle increment failed", slog.Any("err", incErr))
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailure, false, userID, err, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     reason,
		}
	})
}

// Refresh consumes token and issues a fresh pair for the same subject. The
// consumed token is gone whether or not the call succeeds. Unknown, reused and
// expired tokens all map to ErrUnauthorized; ErrRefreshExpired and
// ErrRefreshInvalid tell them apart for callers that care.
func (e *Engine) Refresh(ctx context.Context, token string) (TokenPair, error) {
	if token == "" {
		e.refreshRejected(ctx, 0, ErrRefreshInvalid, "missing")
		return TokenPair{}, ErrRefreshInvalid
	}

	rec, err := e.ledger.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			e.refreshRejected(ctx, 0, ErrRefreshInvalid, "not_found")
			return TokenPair{}, ErrRefreshInvalid
		}
		return TokenPair{}, e.fault(ctx, "refresh consume", err)
	}

	// The sweeper may not have reached this record yet.
	if rec.Expired(e.now()) {
		e.refreshRejected(ctx, rec.SubjectID, ErrRefreshExpired, "expired")
		return TokenPair{}, ErrRefreshExpired
	}

	pair, err := e.issuePair(ctx, rec.SubjectID)
	if err != nil {
		return TokenPair{}, e.fault(ctx, "refresh issue", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefreshSuccess, true, rec.SubjectID, nil, nil)
	return pair, nil
}

func (e *Engine) refreshRejected(ctx context.Context, subjectID int64, err error, reason string) {
	event := AuditRefreshInvalid
	metric := MetricRefreshInvalid
	level := slog.LevelWarn
	if errors.Is(err, ErrRefreshExpired) {
		event = AuditRefreshExpired
		metric = MetricRefreshExpired
		level = slog.LevelInfo
	}
	e.metricInc(metric)
	e.logger.Log(ctx, level, "authgate: refresh rejected", slog.String("reason", reason), slog.Int64("user_id", subjectID))
	e.emitAudit(ctx, event, false, subjectID, err, nil)
}

// Logout deletes token from the ledger. Unknown and empty tokens are a no-op.
// Access tokens already issued stay valid until they expire.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := e.ledger.Delete(ctx, token); err != nil {
		return e.fault(ctx, "logout", err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, 0, nil, nil)
	return nil
}

// CurrentUser returns the user attached to ctx by the authentication gate.
func (e *Engine) CurrentUser(ctx context.Context) (User, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return id.User, nil
}

// Authenticate verifies an access token and resolves its subject. It performs
// no writes.
func (e *Engine) Authenticate(ctx context.Context, token string) (Identity, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	subjectID, err := e.codec.Verify(token)
	if err != nil {
		out := ErrTokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			out = ErrTokenExpired
		}
		e.metricInc(MetricAuthenticateRejected)
		e.logger.DebugContext(ctx, "authgate: access token rejected", slog.Any("err", err))
		e.emitAudit(ctx, AuditAccessRejected, false, 0, out, nil)
		return Identity{}, out
	}

	user, err := e.credentials.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			e.metricInc(MetricAuthenticateRejected)
			e.emitAudit(ctx, AuditAccessRejected, false, subjectID, ErrSubjectUnknown, nil)
			return Identity{}, ErrSubjectUnknown
		}
		return Identity{}, e.fault(ctx, "subject lookup", err)
	}

	e.metricInc(MetricAuthenticateSuccess)
	return Identity{
		SubjectID: user.ID,
		Role:      user.Role,
		User:      user,
	}, nil
}

// SweepExpired deletes every expired refresh record and returns how many were removed.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := e.ledger.SweepExpired(ctx)
	if err != nil {
		e.metricInc(MetricSweepFailures)
		e.emitAudit(ctx, AuditSweepFailed, false, 0, err, nil)
		return n, err
	}
	e.metricInc(MetricSweepRuns)
	if n > 0 {
		e.metrics.Add(MetricSweptTokens, uint64(n))
	}
	e.emitAudit(ctx, AuditSweepCompleted, true, 0, nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.FormatInt(n, 10),
		}
	})
	return n, nil
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Ping checks the ledger backend when it supports health checks.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	p, ok := e.ledger.(pinger)
	if !ok {
		return 0, nil
	}
	return p.Ping(ctx)
}

func (e *Engine) issuePair(ctx context.Context, subjectID int64) (TokenPair, error) {
	refreshToken, err := e.ledger.Create(ctx, subjectID)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := e.codec.Issue(subjectID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}
