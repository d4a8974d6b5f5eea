package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the HMAC variant used to sign access tokens.
type SigningMethod string

const (
	// MethodHS512 signs with HMAC-SHA512. It is the default.
	MethodHS512 SigningMethod = "hs512"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

const minSecretBytes = 8

var (
	// ErrTokenInvalid is returned for malformed tokens, bad signatures, unexpected
	// algorithms and claims that do not carry a usable subject.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired is returned when a correctly signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Config holds codec settings. Secret is loaded once at startup; rotating it
// invalidates every outstanding access token.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string

	// Now overrides the wall clock. Used by tests.
	Now func() time.Time
}

// Manager issues and verifies stateless access tokens bound to a numeric subject.
//
// Manager is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
	parser *jwt.Parser
}

// AccessClaims is the claim set carried by an access token. The subject id is
// encoded in the standard "sub" claim.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS512
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS512:
		m.method = jwt.SigningMethodHS512
	case MethodHS256:
		m.method = jwt.SigningMethodHS256
	default:
		return nil, errors.New("unsupported signing method")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the configured access token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs a token for subjectID that expires AccessTTL from now.
func (m *Manager) Issue(subjectID int64) (string, error) {
	now := m.config.Now()

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.method, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenStr and returns the embedded
// subject id. The error is ErrTokenExpired for an authentic but stale token and
// ErrTokenInvalid for everything else; the underlying parser error is wrapped
// for diagnostics.
func (m *Manager) Verify(tokenStr string) (int64, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %q is not numeric", ErrTokenInvalid, claims.Subject)
	}
	return id, nil
}

// Parse verifies tokenStr and returns its claims.
func (m *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	token, err := m.parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
