package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/homenest/homenest/internal/apperr"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Principal is the identity snapshot a token pair is bound to.
type Principal struct {
	ID           int64
	Role         string
	TokenVersion int
}

// Claims are carried by both token kinds. Version must equal the identity's
// current token_version or the token is revoked.
type Claims struct {
	Role    string    `json:"role"`
	Version int       `json:"ver"`
	Type    TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, apperr.ErrTokenMalformed
	}
	return id, nil
}

// TokenPair is the result of Mint.
type TokenPair struct {
	AccessToken      string    `json:"access"`
	RefreshToken     string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	RefreshID        string    `json:"-"`
}

// ClaimSignerConfig configures lifetimes and issuer.
type ClaimSignerConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ClaimSigner issues and validates HS256 tokens using a KeyRing.
type ClaimSigner struct {
	keys *KeyRing
	cfg  ClaimSignerConfig
	now  func() time.Time
}

// NewClaimSigner builds a signer with defaults of 15m access / 14d refresh.
func NewClaimSigner(keys *KeyRing, cfg ClaimSignerConfig) *ClaimSigner {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 14 * 24 * time.Hour
	}
	return &ClaimSigner{keys: keys, cfg: cfg, now: time.Now}
}

// WithClock swaps the time source; intended for tests.
func (s *ClaimSigner) WithClock(now func() time.Time) *ClaimSigner {
	if now != nil {
		s.now = now
	}
	return s
}

// Mint issues an access/refresh pair for p.
func (s *ClaimSigner) Mint(p Principal) (TokenPair, error) {
	now := s.now().UTC()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)
	jti := uuid.NewString()

	access, err := s.sign(p, TokenAccess, now, accessExp, "")
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(p, TokenRefresh, now, refreshExp, jti)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		RefreshID:        jti,
	}, nil
}

func (s *ClaimSigner) sign(p Principal, typ TokenType, iat, exp time.Time, jti string) (string, error) {
	key := s.keys.Current()
	claims := &Claims{
		Role:    p.Role,
		Version: p.TokenVersion,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and type. It does not check the token
// version; callers compare Claims.Version with the stored identity.
func (s *ClaimSigner) Verify(raw string, expected TokenType) (*Claims, error) {
	if raw == "" {
		return nil, apperr.ErrTokenMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return s.keys.Lookup(kid)
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if claims.Type != expected {
		return nil, apperr.ErrTokenWrongType
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.ErrTokenExpired
	case errors.Is(err, errUnknownKey), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.ErrTokenBadSignature
	default:
		return apperr.ErrTokenMalformed
	}
}
