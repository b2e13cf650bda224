package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// MinSecretLength is the shortest HMAC secret accepted for signing.
const MinSecretLength = 32

var errUnknownKey = errors.New("signing key not recognized")

// SigningKey is an HMAC secret tagged with the kid written into token headers.
type SigningKey struct {
	ID     string `json:"kid"`
	Secret []byte `json:"-"`
}

func (k SigningKey) validate() error {
	if strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("signing key id is required")
	}
	if len(k.Secret) < MinSecretLength {
		return fmt.Errorf("signing key %s must be at least %d bytes", k.ID, MinSecretLength)
	}
	return nil
}

type keySet struct {
	current   SigningKey
	previous  *SigningKey
	retiredAt time.Time
}

// KeyRing holds the active signing key and, during a grace window, the key it replaced.
// Rotation swaps the whole set atomically so readers never see a torn state.
type KeyRing struct {
	set   atomic.Pointer[keySet]
	grace time.Duration
	now   func() time.Time
}

// NewKeyRing builds a ring. A previous key supplied at boot is accepted for
// grace from the moment the ring is created.
func NewKeyRing(current SigningKey, previous *SigningKey, grace time.Duration) (*KeyRing, error) {
	if err := current.validate(); err != nil {
		return nil, err
	}
	r := &KeyRing{grace: grace, now: time.Now}
	set := &keySet{current: current}
	if previous != nil {
		if err := previous.validate(); err != nil {
			return nil, err
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("previous signing key must have a different id than %s", current.ID)
		}
		prev := *previous
		set.previous = &prev
		set.retiredAt = r.now()
	}
	r.set.Store(set)
	return r, nil
}

// Current returns the key new tokens are signed with.
func (r *KeyRing) Current() SigningKey {
	return r.set.Load().current
}

// Rotate installs next as the signing key; the old current key stays valid for the grace window.
func (r *KeyRing) Rotate(next SigningKey) error {
	if err := next.validate(); err != nil {
		return err
	}
	old := r.set.Load()
	if old.current.ID == next.ID {
		if string(old.current.Secret) == string(next.Secret) {
			return nil
		}
		return fmt.Errorf("signing key id %s reused with a different secret", next.ID)
	}
	prev := old.current
	r.set.Store(&keySet{current: next, previous: &prev, retiredAt: r.now()})
	return nil
}

// Lookup resolves the secret for kid.
func (r *KeyRing) Lookup(kid string) ([]byte, error) {
	set := r.set.Load()
	if kid == set.current.ID {
		return set.current.Secret, nil
	}
	if set.previous != nil && kid == set.previous.ID && r.now().Before(set.retiredAt.Add(r.grace)) {
		return set.previous.Secret, nil
	}
	return nil, errUnknownKey
}

type keyFile struct {
	ID     string `json:"kid"`
	Secret string `json:"secret"`
}

// LoadKeyFile reads a {"kid": "...", "secret": "..."} document.
func LoadKeyFile(path string) (SigningKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SigningKey{}, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return SigningKey{}, fmt.Errorf("decode key file: %w", err)
	}
	key := SigningKey{ID: strings.TrimSpace(kf.ID), Secret: []byte(kf.Secret)}
	if err := key.validate(); err != nil {
		return SigningKey{}, err
	}
	return key, nil
}
