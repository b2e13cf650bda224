package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
)

// MinTokenBytes keeps opaque tokens at 256 bits of entropy or more.
const MinTokenBytes = 32

var randReader io.Reader = rand.Reader

// RandomToken returns a URL-safe string encoding n random bytes.
func RandomToken(n int) (string, error) {
	if n < MinTokenBytes {
		return "", fmt.Errorf("token length must be at least %d bytes", MinTokenBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NumericCode returns a zero-padded code of the given number of digits,
// uniformly distributed over [0, 10^digits).
func NumericCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("digits must be between 1 and 18")
	}
	n := uint64(math.Pow10(digits))
	// Largest multiple of n that fits in uint64; values at or above it are
	// rejected so the modulo below is unbiased.
	limit := math.MaxUint64 - (math.MaxUint64 % n)

	var buf [8]byte
	for {
		if _, err := io.ReadFull(randReader, buf[:]); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v >= limit {
			continue
		}
		return fmt.Sprintf("%0*d", digits, v%n), nil
	}
}

// HashToken returns the hex SHA-256 digest used to store opaque tokens at rest.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
