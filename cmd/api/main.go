package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/config"
	"github.com/homenest/homenest/internal/infra"
	"github.com/homenest/homenest/internal/logging"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/routes"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := infra.Migrate(ctx, db); err != nil {
			logger.Error("apply schema", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory identity store")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, infra.CacheOptions{})
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set; using in-memory rate limiter")
	}

	keys, err := loadKeyRing(cfg)
	if err != nil {
		logger.Error("load signing key", "error", err)
		os.Exit(1)
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("build notifier", "error", err)
		os.Exit(1)
	}

	var sink audit.Sink = audit.NewLogSink(logger)
	if db != nil {
		sink = audit.MultiSink{audit.NewPostgresSink(db), sink}
	}
	auditQueue := audit.NewDispatcher(sink, 1024, 0, logger)
	defer auditQueue.Close()

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Keys:      keys,
		Notifier:  notifier,
		AuditSink: auditQueue,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadKey(cfg, keys, logger)
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			break wait
		case err := <-srvErrCh:
			if err != nil {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
			return
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// loadKeyRing builds the signing key ring from JWT_KEY_FILE or the
// JWT_SIGNING_KEY variables. It returns nil in development when neither is
// set, letting routes generate an ephemeral key.
func loadKeyRing(cfg config.Config) (*security.KeyRing, error) {
	var current security.SigningKey
	switch {
	case cfg.JWTKeyFile != "":
		key, err := security.LoadKeyFile(cfg.JWTKeyFile)
		if err != nil {
			return nil, err
		}
		current = key
	case cfg.JWTSigningKey != "":
		secret, err := config.SigningSecret(cfg.JWTSigningKey)
		if err != nil {
			return nil, err
		}
		current = security.SigningKey{ID: cfg.JWTSigningKeyID, Secret: secret}
	default:
		return nil, nil
	}

	var previous *security.SigningKey
	if cfg.JWTPreviousSigningKey != "" {
		secret, err := config.SigningSecret(cfg.JWTPreviousSigningKey)
		if err != nil {
			return nil, err
		}
		previous = &security.SigningKey{ID: cfg.JWTPreviousKeyID, Secret: secret}
	}
	return security.NewKeyRing(current, previous, cfg.JWTRotationGrace)
}

func reloadKey(cfg config.Config, keys *security.KeyRing, logger *slog.Logger) {
	if cfg.JWTKeyFile == "" || keys == nil {
		logger.Warn("SIGHUP ignored: JWT_KEY_FILE not configured")
		return
	}
	next, err := security.LoadKeyFile(cfg.JWTKeyFile)
	if err != nil {
		logger.Error("reload signing key", "error", err)
		return
	}
	if err := keys.Rotate(next); err != nil {
		logger.Error("rotate signing key", "error", err)
		return
	}
	logger.Info("signing key reloaded", "kid", next.ID)
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (notification.Notifier, error) {
	var email, sms notification.Notifier = notification.NewLoggerNotifier(logger), notification.NewLoggerNotifier(logger)

	if cfg.EmailProvider == "ses" {
		client, err := infra.NewSESClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		email = notification.NewSESNotifier(client, cfg.EmailFrom)
	}
	if cfg.SMSGatewayURL != "" {
		sms = notification.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken)
	}
	return notification.NewRouter(email, sms), nil
}
