package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a refresh token.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned by Consume when the token was never issued, has already
	// been consumed or deleted, or was reclaimed by a sweep.
	ErrNotFound = errors.New("refresh token not found")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCollision is returned when a freshly generated token already exists.
	ErrCollision = errors.New("refresh token collision")
)

// Record is what the ledger keeps for one refresh token.
type Record struct {
	SubjectID int64
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Ledger persists single-use refresh tokens.
//
// Implementations must make Consume atomic: the read and the delete happen in one
// storage operation so that at most one caller ever observes a given record.
type Ledger interface {
	// Create stores a new token for subjectID and returns it.
	Create(ctx context.Context, subjectID int64) (string, error)
	// Consume reads and deletes the record for token. It returns ErrNotFound when
	// there is nothing to consume. Expired records are still returned.
	Consume(ctx context.Context, token string) (Record, error)
	// Delete removes token. Missing tokens are not an error.
	Delete(ctx context.Context, token string) error
	// SweepExpired removes records that expired before now and returns how many
	// were removed by this call.
	SweepExpired(ctx context.Context) (int64, error)
}

// NewToken returns a fresh opaque refresh token.
func NewToken() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return a.String() + "-" + b.String(), nil
}

// HashToken returns the storage key material for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
