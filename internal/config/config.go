package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/homenest/homenest/internal/ratelimit"
)

const (
	defaultAppName          = "HomeNest"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultSigningKeyID     = "primary"
	defaultRotationGrace    = 24 * time.Hour
	defaultIssuer           = "homenest"
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 14 * 24 * time.Hour
	defaultResetTTL         = time.Hour
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 30 * time.Minute
	defaultArgonMemoryKiB   = 64 * 1024
	defaultArgonIterations  = 3
	defaultArgonParallelism = 2
	defaultHashConcurrency  = 8
	defaultNotifyTimeout    = 5 * time.Second
	defaultPasswordScore    = 0
	defaultEmailProvider    = "log"
	defaultEmailFrom        = "no-reply@homenest.local"
	defaultPublicBaseURL    = "http://localhost:8080"
	defaultRefreshRotation  = "reusable"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSigningKey         string
	JWTSigningKeyID       string
	JWTPreviousSigningKey string
	JWTPreviousKeyID      string
	JWTKeyFile            string
	JWTRotationGrace      time.Duration
	JWTIssuer             string
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	RefreshRotation       string

	ResetTokenTTL    time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration

	Argon2MemoryKiB   uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	HashConcurrency   int

	LoginRequireVerification bool
	StrictLogout             bool
	NotifyTimeout            time.Duration
	PasswordMinScore         int
	RateLimits               map[ratelimit.Class]ratelimit.Rule

	EmailProvider   string
	EmailFrom       string
	AWSRegion       string
	SMSGatewayURL   string
	SMSGatewayToken string
	PublicBaseURL   string
	MetricsEnabled  bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		JWTSigningKey:         os.Getenv("JWT_SIGNING_KEY"),
		JWTSigningKeyID:       getEnv("JWT_SIGNING_KEY_ID", defaultSigningKeyID),
		JWTPreviousSigningKey: os.Getenv("JWT_PREVIOUS_SIGNING_KEY"),
		JWTPreviousKeyID:      os.Getenv("JWT_PREVIOUS_SIGNING_KEY_ID"),
		JWTKeyFile:            os.Getenv("JWT_KEY_FILE"),
		JWTIssuer:             getEnv("JWT_ISSUER", defaultIssuer),
		RefreshRotation:       strings.ToLower(getEnv("REFRESH_ROTATION", defaultRefreshRotation)),
		EmailProvider:         strings.ToLower(getEnv("EMAIL_PROVIDER", defaultEmailProvider)),
		EmailFrom:             getEnv("EMAIL_FROM", defaultEmailFrom),
		AWSRegion:             os.Getenv("AWS_REGION"),
		SMSGatewayURL:         os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayToken:       os.Getenv("SMS_GATEWAY_TOKEN"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL),
		RateLimits:            ratelimit.DefaultRules(),
	}

	var err error
	durations := []struct {
		dst      *time.Duration
		name     string
		fallback time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.JWTRotationGrace, "JWT_ROTATION_GRACE", defaultRotationGrace},
		{&cfg.AccessTokenTTL, "ACCESS_TOKEN_TTL", defaultAccessTTL},
		{&cfg.RefreshTokenTTL, "REFRESH_TOKEN_TTL", defaultRefreshTTL},
		{&cfg.ResetTokenTTL, "RESET_TOKEN_TTL", defaultResetTTL},
		{&cfg.LockoutDuration, "LOCKOUT_DURATION", defaultLockoutDuration},
		{&cfg.NotifyTimeout, "NOTIFY_TIMEOUT", defaultNotifyTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.name, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.LockoutThreshold, err = getInt("LOCKOUT_THRESHOLD", defaultLockoutThreshold); err != nil {
		return Config{}, err
	}
	if cfg.HashConcurrency, err = getInt("HASH_CONCURRENCY", defaultHashConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.PasswordMinScore, err = getInt("PASSWORD_DENYLIST_SCORE", defaultPasswordScore); err != nil {
		return Config{}, err
	}
	memory, err := getInt("ARGON2_MEMORY_KIB", defaultArgonMemoryKiB)
	if err != nil {
		return Config{}, err
	}
	iterations, err := getInt("ARGON2_ITERATIONS", defaultArgonIterations)
	if err != nil {
		return Config{}, err
	}
	parallelism, err := getInt("ARGON2_PARALLELISM", defaultArgonParallelism)
	if err != nil {
		return Config{}, err
	}
	if memory <= 0 || iterations <= 0 || parallelism <= 0 || parallelism > 255 {
		return Config{}, fmt.Errorf("argon2 parameters must be positive (parallelism at most 255)")
	}
	cfg.Argon2MemoryKiB = uint32(memory)
	cfg.Argon2Iterations = uint32(iterations)
	cfg.Argon2Parallelism = uint8(parallelism)

	if cfg.LoginRequireVerification, err = getBool("LOGIN_REQUIRE_VERIFICATION", false); err != nil {
		return Config{}, err
	}
	if cfg.StrictLogout, err = getBool("STRICT_LOGOUT", false); err != nil {
		return Config{}, err
	}
	if cfg.MetricsEnabled, err = getBool("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}

	for _, class := range ratelimit.Classes() {
		name := "RATE_LIMIT_" + strings.ToUpper(strings.ReplaceAll(string(class), "-", "_"))
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		rule, err := ratelimit.ParseRule(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		cfg.RateLimits[class] = rule
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.RefreshRotation {
	case "reusable", "single_use":
	default:
		return fmt.Errorf("REFRESH_ROTATION must be reusable or single_use, got %q", c.RefreshRotation)
	}
	switch c.EmailProvider {
	case "log", "ses":
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be log or ses, got %q", c.EmailProvider)
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}
	if c.PasswordMinScore < 0 || c.PasswordMinScore > 4 {
		return fmt.Errorf("PASSWORD_DENYLIST_SCORE must be between 0 and 4")
	}

	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.JWTSigningKey == "" && c.JWTKeyFile == "" {
		return fmt.Errorf("JWT_SIGNING_KEY or JWT_KEY_FILE must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.EmailProvider == "ses" && c.AWSRegion == "" {
		return fmt.Errorf("AWS_REGION must be set when EMAIL_PROVIDER=ses")
	}
	return nil
}

// IsDev reports whether in-memory fallbacks and an ephemeral signing key are allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// SigningSecret decodes a key given as "base64:<data>" or uses it verbatim.
func SigningSecret(raw string) ([]byte, error) {
	if encoded, ok := strings.CutPrefix(raw, "base64:"); ok {
		secret, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
		return secret, nil
	}
	return []byte(raw), nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads NAME_SECONDS as whole seconds, else NAME as a Go duration.
func getDuration(name string, fallback time.Duration) (time.Duration, error) {
	secondsKey := name + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func getBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}
