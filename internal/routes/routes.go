package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/homenest/homenest/internal/admin"
	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/auth"
	"github.com/homenest/homenest/internal/config"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/middleware"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/ratelimit"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes. Store,
// Notifier and AuditSink override the backends derived from DB and Cache.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Keys      *security.KeyRing
	Store     identity.Store
	Notifier  notification.Notifier
	AuditSink audit.Sink
	Registry  prometheus.Registerer
	Gatherer  prometheus.Gatherer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Store == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Keys == nil {
			return fmt.Errorf("a signing key is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	keys := d.Keys
	if keys == nil {
		ephemeral, err := ephemeralKeyRing(d.Cfg.JWTRotationGrace)
		if err != nil {
			return err
		}
		d.Logger.Warn("using an ephemeral signing key; tokens will not survive a restart")
		keys = ephemeral
	}

	recorder := audit.NewRecorder(auditSink(d), d.Logger)

	metrics, err := middleware.NewHTTPMetrics(d.Registry, "homenest")
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cfg.MetricsEnabled {
		app.Use(metrics.Handler())
	}
	app.Use(middleware.Audit(d.Logger, recorder))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)
	if d.Cfg.MetricsEnabled {
		gatherer := d.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Services and handlers
	store := d.Store
	if store == nil {
		policy := identity.LockoutPolicy{Threshold: d.Cfg.LockoutThreshold, Duration: d.Cfg.LockoutDuration}
		if d.DB != nil {
			store = identity.NewPostgresStore(d.DB, policy)
		} else {
			store = identity.NewMemoryStore(policy)
		}
	}

	params := security.DefaultArgon2Params()
	if d.Cfg.Argon2MemoryKiB > 0 {
		params.MemoryKiB = d.Cfg.Argon2MemoryKiB
		params.Iterations = d.Cfg.Argon2Iterations
		params.Parallelism = d.Cfg.Argon2Parallelism
	}
	hasher, err := security.NewHasher(params, d.Cfg.HashConcurrency)
	if err != nil {
		return fmt.Errorf("build hasher: %w", err)
	}
	signer := security.NewClaimSigner(keys, security.ClaimSignerConfig{
		Issuer:     d.Cfg.JWTIssuer,
		AccessTTL:  d.Cfg.AccessTokenTTL,
		RefreshTTL: d.Cfg.RefreshTokenTTL,
	})

	var (
		limiterStore ratelimit.Store
		ledger       auth.RefreshLedger
	)
	if d.Cache != nil {
		limiterStore = ratelimit.NewRedisStore(d.Cache, "ratelimit:")
		ledger = auth.NewRedisRefreshLedger(d.Cache)
	} else {
		limiterStore = ratelimit.NewMemoryStore()
		ledger = auth.NewMemoryRefreshLedger()
	}
	limiter := ratelimit.New(limiterStore, d.Cfg.RateLimits, d.Logger)

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	authSvc := auth.NewService(auth.Deps{
		Store:    store,
		Hasher:   hasher,
		Signer:   signer,
		Notifier: notification.NewDispatcher(notifier, d.Cfg.NotifyTimeout, d.Logger),
		Audit:    recorder,
		Ledger:   ledger,
		Policy:   validation.PasswordPolicy{MinScore: d.Cfg.PasswordMinScore},
		Logger:   d.Logger,
	}, auth.Options{
		ResetTTL:            d.Cfg.ResetTokenTTL,
		RequireVerification: d.Cfg.LoginRequireVerification,
		StrictLogout:        d.Cfg.StrictLogout,
		Rotation:            auth.RotationMode(d.Cfg.RefreshRotation),
		PublicBaseURL:       d.Cfg.PublicBaseURL,
	})
	authHandler := auth.NewHandler(authSvc)
	adminHandler := admin.NewHandler(admin.NewService(store, authSvc, recorder))
	bearer := middleware.BearerAuth(authSvc)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(app, authHandler, limiter, bearer)
	RegisterAdminRoutes(app, adminHandler, bearer)
	RegisterAgentRoutes(app, bearer)

	return nil
}

func auditSink(d Deps) audit.Sink {
	if d.AuditSink != nil {
		return d.AuditSink
	}
	if d.DB != nil {
		return audit.MultiSink{audit.NewPostgresSink(d.DB), audit.NewLogSink(d.Logger)}
	}
	return audit.NewLogSink(d.Logger)
}

func ephemeralKeyRing(grace time.Duration) (*security.KeyRing, error) {
	secret, err := security.RandomToken(security.MinTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return security.NewKeyRing(security.SigningKey{ID: "ephemeral", Secret: []byte(secret)}, nil, grace)
}
