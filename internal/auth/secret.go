package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for the login secret. It is hashed once at startup and
// checked on every login.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 4
	argonSaltSize    = 16
	argonKeySize     = 32

	// Longer inputs are rejected before hashing.
	maxSecretLength = 1024
)

// SharedSecret is the one password every account logs in with. It is a
// demo scheme kept on purpose, not a per-user credential store.
type SharedSecret struct {
	encoded string
}

// NewSharedSecret hashes secret with argon2id.
func NewSharedSecret(secret string) (*SharedSecret, error) {
	encoded, err := hashSecret(secret)
	if err != nil {
		return nil, err
	}
	return &SharedSecret{encoded: encoded}, nil
}

// Matches reports whether password equals the configured secret. The
// comparison is constant time.
func (s *SharedSecret) Matches(password string) bool {
	if s == nil || len(password) > maxSecretLength {
		return false
	}
	ok, err := verifySecret(s.encoded, password)
	return err == nil && ok
}

// String hides the hash from logs.
func (s *SharedSecret) String() string {
	return "SharedSecret(argon2id)"
}

func hashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("login secret cannot be empty")
	}
	if len(secret) > maxSecretLength {
		return "", errors.New("login secret exceeds maximum length")
	}

	salt := make([]byte, argonSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeySize)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func verifySecret(encoded, candidate string) (bool, error) {
	params, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	//nolint:gosec // want comes from our own 32-byte hash
	got := argon2.IDKey([]byte(candidate), salt, params.iterations, params.memory, params.parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// decodeHash parses $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errors.New("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("invalid salt: %w", err)
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("invalid hash: %w", err)
	}
	return p, salt, sum, nil
}
