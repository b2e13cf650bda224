package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	// ErrHashCost is returned when the configured cost parameters fall outside the accepted range.
	ErrHashCost = errors.New("hasher: cost parameter out of range")
	// ErrHashFormat is returned when a stored hash cannot be decoded.
	ErrHashFormat = errors.New("hasher: invalid encoded hash format")
)

// Argon2Params defines the tunable cost of argon2id hashing.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is calibrated to roughly 100ms on a modern server core.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks the parameters against the accepted range.
func (p Argon2Params) Validate() error {
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("%w: memory must be between 8192 and 1048576 KiB", ErrHashCost)
	case p.Iterations == 0 || p.Iterations > 20:
		return fmt.Errorf("%w: iterations must be between 1 and 20", ErrHashCost)
	case p.Parallelism == 0 || p.Parallelism > 16:
		return fmt.Errorf("%w: parallelism must be between 1 and 16", ErrHashCost)
	case p.SaltLength < 16:
		return fmt.Errorf("%w: salt length must be at least 16 bytes", ErrHashCost)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", ErrHashCost)
	}
	return nil
}

// Hasher hashes and verifies passwords. Concurrent argon2 computations are
// bounded because each one allocates MemoryKiB of RAM.
type Hasher struct {
	params Argon2Params
	sem    *semaphore.Weighted
	dummy  string
}

// NewHasher validates params and prepares the dummy hash used to equalize
// timing for unknown accounts. concurrency <= 0 means unbounded.
func NewHasher(params Argon2Params, concurrency int) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	h := &Hasher{params: params}
	if concurrency > 0 {
		h.sem = semaphore.NewWeighted(int64(concurrency))
	}
	dummy, err := h.encode("dummy-password-never-matches")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Params returns the active cost parameters.
func (h *Hasher) Params() Argon2Params {
	return h.params
}

// Hash derives an encoded argon2id hash:
// argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<digest>.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	release, err := h.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return h.encode(plaintext)
}

// Verify reports whether plaintext matches encoded. Legacy bcrypt hashes are accepted.
func (h *Hasher) Verify(ctx context.Context, plaintext, encoded string) (bool, error) {
	if encoded == "" {
		return false, nil
	}
	release, err := h.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	}

	params, salt, expected, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// VerifyDummy burns the same work as a real verification. Used when the
// account does not exist so response timing does not reveal it.
func (h *Hasher) VerifyDummy(ctx context.Context, plaintext string) {
	_, _ = h.Verify(ctx, plaintext, h.dummy)
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the active ones, or by a legacy algorithm.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	params, salt, digest, err := decodeArgon2(encoded)
	if err != nil {
		return true
	}
	return params.MemoryKiB < h.params.MemoryKiB ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		uint32(len(salt)) < h.params.SaltLength ||
		uint32(len(digest)) < h.params.KeyLength
}

func (h *Hasher) acquire(ctx context.Context) (func(), error) {
	if h.sem == nil {
		return func() {}, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("hasher: wait for slot: %w", err)
	}
	return func() { h.sem.Release(1) }, nil
}

func (h *Hasher) encode(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hasher: generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	return strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	}, "$"), nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return Argon2Params{}, nil, nil, ErrHashFormat
	}
	if parts[0] != argon2Variant {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unexpected variant %q", ErrHashFormat, parts[0])
	}
	if parts[1] != argon2Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrHashFormat, parts[1])
	}

	var params Argon2Params
	for _, entry := range strings.Split(parts[2], ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return Argon2Params{}, nil, nil, ErrHashFormat
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, fmt.Errorf("%w: memory: %v", ErrHashFormat, err)
			}
			params.MemoryKiB = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, fmt.Errorf("%w: iterations: %v", ErrHashFormat, err)
			}
			params.Iterations = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return Argon2Params{}, nil, nil, fmt.Errorf("%w: parallelism: %v", ErrHashFormat, err)
			}
			params.Parallelism = uint8(v)
		default:
			return Argon2Params{}, nil, nil, ErrHashFormat
		}
	}
	if params.MemoryKiB == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return Argon2Params{}, nil, nil, ErrHashFormat
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrHashFormat, err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: digest: %v", ErrHashFormat, err)
	}
	if len(digest) == 0 {
		return Argon2Params{}, nil, nil, ErrHashFormat
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(digest))
	return params, salt, digest, nil
}
