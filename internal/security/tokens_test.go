package security

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"strconv"
	"testing"
)

func TestRandomTokenEntropy(t *testing.T) {
	tok, err := RandomToken(MinTokenBytes)
	if err != nil {
		t.Fatalf("random token: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("token is not url-safe base64: %v", err)
	}
	if len(raw) != MinTokenBytes {
		t.Fatalf("expected %d bytes, got %d", MinTokenBytes, len(raw))
	}

	other, _ := RandomToken(MinTokenBytes)
	if tok == other {
		t.Fatalf("expected distinct tokens")
	}

	if _, err := RandomToken(16); err == nil {
		t.Fatalf("expected short tokens to be rejected")
	}
}

func TestNumericCodeFormat(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 200; i++ {
		code, err := NumericCode(6)
		if err != nil {
			t.Fatalf("numeric code: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("unexpected code %q", code)
		}
	}
}

func TestNumericCodeKeepsLeadingZeros(t *testing.T) {
	prev := randReader
	defer func() { randReader = prev }()
	// 8 zero bytes decode to 0.
	randReader = bytes.NewReader(make([]byte, 8))

	code, err := NumericCode(6)
	if err != nil {
		t.Fatalf("numeric code: %v", err)
	}
	if code != "000000" {
		t.Fatalf("expected 000000, got %q", code)
	}
}

func TestNumericCodeRejectsBiasedDraws(t *testing.T) {
	prev := randReader
	defer func() { randReader = prev }()
	// First draw is MaxUint64, which sits above the rejection limit; the
	// second draw (value 42) must be used instead.
	src := append(bytes.Repeat([]byte{0xff}, 8), 0, 0, 0, 0, 0, 0, 0, 42)
	randReader = bytes.NewReader(src)

	code, err := NumericCode(6)
	if err != nil {
		t.Fatalf("numeric code: %v", err)
	}
	if code != "000042" {
		t.Fatalf("expected 000042, got %q", code)
	}
}

func TestNumericCodeRoughlyUniform(t *testing.T) {
	const draws = 20000
	var buckets [10]int
	for i := 0; i < draws; i++ {
		code, err := NumericCode(6)
		if err != nil {
			t.Fatalf("numeric code: %v", err)
		}
		first, _ := strconv.Atoi(code[:1])
		buckets[first]++
	}
	for d, n := range buckets {
		// Expected 2000 per bucket; allow a generous band.
		if n < 1600 || n > 2400 {
			t.Fatalf("leading digit %d drawn %d times out of %d", d, n, draws)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("digest must be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("digest must differ for different inputs")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("expected hex sha256 digest")
	}
}
