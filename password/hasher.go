package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPassBytes = 10
	// bcrypt ignores everything past 72 bytes; refuse rather than truncate.
	maxBcryptBytes = 72
)

var (
	// ErrTooShort is returned for passwords under the minimum length.
	ErrTooShort = errors.New("password must be at least 10 bytes")
	// ErrUnknownFormat is returned by Verify for hashes it cannot attribute to an algorithm.
	ErrUnknownFormat = errors.New("unrecognized password hash format")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

var (
	_ Hasher = (*Argon2)(nil)
	_ Hasher = (*Bcrypt)(nil)
)

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash implements [Hasher].
func (b *Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}
	if len(password) > maxBcryptBytes {
		return "", bcrypt.ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify implements [Hasher]. A mismatch is (false, nil).
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Verify checks password against a hash produced by either supported algorithm, picking
// the algorithm from the hash prefix.
func Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return verifyArgon2(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return (&Bcrypt{}).Verify(password, encodedHash)
	default:
		return false, ErrUnknownFormat
	}
}

func checkLength(password string) error {
	if len(password) < minPassBytes {
		return ErrTooShort
	}
	return nil
}
