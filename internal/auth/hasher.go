// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/samber/oops"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// Algorithm names a password digest function.
type Algorithm string

// Supported digest algorithms.
const (
	AlgorithmSHA256   Algorithm = "sha256"
	AlgorithmBLAKE3   Algorithm = "blake3"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// DefaultAlgorithm is used when no algorithm is configured. Accounts stored
// without an algorithm are verified with it too.
const DefaultAlgorithm = AlgorithmSHA256

// Salt sizes in bytes.
const (
	SaltSize    = 16
	MinSaltSize = 4
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// ErrEmptySalt is returned when attempting to hash with an empty salt.
var ErrEmptySalt = oops.Code("AUTH_EMPTY_SALT").Errorf("salt cannot be empty")

// PasswordHasher derives salted password digests.
type PasswordHasher interface {
	// Algorithm returns the algorithm new digests are produced with.
	Algorithm() Algorithm

	// NewSalt returns a fresh random salt, base64 encoded.
	NewSalt() (string, error)

	// Hash digests salt || password with the configured algorithm.
	Hash(password, salt string) (string, error)

	// Verify recomputes the digest with algorithm and compares it in
	// constant time. Returns (false, nil) on mismatch.
	Verify(algorithm Algorithm, password, salt, digest string) (bool, error)

	// NeedsUpgrade reports whether a digest made with algorithm should be
	// re-derived with the configured one.
	NeedsUpgrade(algorithm Algorithm) bool
}

// ParseAlgorithm validates an algorithm name. Empty selects DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(name); a {
	case "":
		return DefaultAlgorithm, nil
	case AlgorithmSHA256, AlgorithmBLAKE3, AlgorithmArgon2id:
		return a, nil
	default:
		return "", oops.Code("AUTH_UNKNOWN_ALGORITHM").With("algorithm", name).Errorf("unknown hash algorithm %q", name)
	}
}

// SaltedHasher implements PasswordHasher.
type SaltedHasher struct {
	algorithm Algorithm
}

// NewHasher creates a SaltedHasher producing digests with algorithm.
func NewHasher(algorithm Algorithm) (*SaltedHasher, error) {
	a, err := ParseAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}
	return &SaltedHasher{algorithm: a}, nil
}

// Algorithm implements PasswordHasher.
func (h *SaltedHasher) Algorithm() Algorithm {
	return h.algorithm
}

// NewSalt implements PasswordHasher.
func (h *SaltedHasher) NewSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash implements PasswordHasher.
func (h *SaltedHasher) Hash(password, salt string) (string, error) {
	sum, err := digest(h.algorithm, password, salt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Verify implements PasswordHasher.
func (h *SaltedHasher) Verify(algorithm Algorithm, password, salt, encoded string) (bool, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	expected, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	computed, err := digest(algorithm, password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade implements PasswordHasher.
func (h *SaltedHasher) NeedsUpgrade(algorithm Algorithm) bool {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return algorithm != h.algorithm
}

func digest(algorithm Algorithm, password, salt string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if salt == "" {
		return nil, ErrEmptySalt
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_SALT").Wrap(err)
	}
	if len(saltBytes) < MinSaltSize {
		return nil, oops.Code("AUTH_INVALID_SALT").With("min", MinSaltSize).Errorf("salt must be at least %d bytes", MinSaltSize)
	}

	switch algorithm {
	case AlgorithmSHA256:
		sum := sha256.Sum256(salted(saltBytes, password))
		return sum[:], nil
	case AlgorithmBLAKE3:
		sum := blake3.Sum256(salted(saltBytes, password))
		return sum[:], nil
	case AlgorithmArgon2id:
		return argon2.IDKey([]byte(password), saltBytes, argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_ALGORITHM").With("algorithm", string(algorithm)).Errorf("unknown hash algorithm %q", algorithm)
	}
}

func salted(salt []byte, password string) []byte {
	buf := make([]byte, 0, len(salt)+len(password))
	buf = append(buf, salt...)
	return append(buf, password...)
}

// Compile-time interface check.
var _ PasswordHasher = (*SaltedHasher)(nil)
