package password

import (
	"errors"
	"fmt"
)

// DefaultMaxPasswordBytes caps plaintext length when a config leaves it unset.
const DefaultMaxPasswordBytes = 1024

const minPassBytes = 8

var (
	// ErrPasswordTooShort is returned by Hash for passwords under 8 bytes.
	ErrPasswordTooShort = errors.New("password must be at least 8 bytes")
	// ErrPasswordTooLong is returned when a password exceeds the configured maximum.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher is the one-way hash and compare capability the session service needs.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Algorithm names a supported hash family.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Options selects and tunes a Hasher.
type Options struct {
	Algorithm  Algorithm
	Argon2     Config
	BcryptCost int
}

// New returns the Hasher described by opts.
func New(opts Options) (Hasher, error) {
	switch opts.Algorithm {
	case AlgorithmArgon2id, "":
		return NewArgon2(opts.Argon2)
	case AlgorithmBcrypt:
		return NewBcrypt(opts.BcryptCost, opts.Argon2.MaxPasswordBytes)
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", opts.Algorithm)
	}
}

func checkLength(password string, max int) error {
	if len(password) < minPassBytes {
		return ErrPasswordTooShort
	}
	if len(password) > max {
		return ErrPasswordTooLong
	}
	return nil
}
