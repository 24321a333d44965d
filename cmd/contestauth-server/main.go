// Command contestauth-server serves the contest platform's auth API.
//
// Settings come from .env, an optional config file (-config) and the
// environment; see internal/config. Without REDIS_URL an in-process miniredis
// is started, and without MONGO_URI users live in memory. Both fallbacks are
// for local development only and refused in production.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/httpapi"
	"github.com/code100x/contestauth/internal/config"
	"github.com/code100x/contestauth/mail"
	"github.com/code100x/contestauth/memstore"
	promexport "github.com/code100x/contestauth/metrics/export/prometheus"
	"github.com/code100x/contestauth/mongostore"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	jsonLogs := flag.Bool("json-logs", false, "emit JSON logs")
	flag.Parse()

	if err := run(*configPath, *jsonLogs); err != nil {
		fmt.Fprintln(os.Stderr, "contestauth-server:", err)
		os.Exit(1)
	}
}

func run(configPath string, jsonLogs bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.SlogLevel(), jsonLogs || cfg.Production())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	users, closeUsers, err := openUsers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	builder := contestauth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mailer).
		WithLogger(logger)
	if cfg.Auth.Audit {
		builder = builder.WithAuditSink(contestauth.NewSlogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	logSecurityReport(logger, engine.SecurityReport())

	if cfg.Admin.Email != "" {
		if err := seedAdmin(ctx, engine, cfg.Admin, logger); err != nil {
			return err
		}
	}

	opts := httpapi.Options{
		Prefix:            cfg.HTTP.Prefix,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Logger:            logger,
	}
	if cfg.HTTP.AccessLog {
		opts.AccessLog = os.Stdout
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "prefix", cfg.HTTP.Prefix, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openRedis(cfg *config.Server, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	logger.Warn("REDIS_URL not set, using in-process miniredis", "addr", mr.Addr())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func openUsers(ctx context.Context, cfg *config.Server, logger *slog.Logger) (contestauth.UserStore, func(), error) {
	if cfg.Mongo.URI == "" {
		if cfg.Production() {
			return nil, nil, errors.New("production requires MONGO_URI")
		}
		logger.Warn("MONGO_URI not set, users are kept in memory")
		return memstore.NewUsers(), func() {}, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	users, client, err := mongostore.Open(openCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open mongo: %w", err)
	}
	return users, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}, nil
}

func newMailer(cfg *config.Server, logger *slog.Logger) (contestauth.Mailer, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP not configured, verification codes are written to the log")
		return mail.LogMailer{Logger: logger}, nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		CodeTTL:  cfg.Auth.OTPTTL,
	}, mail.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func seedAdmin(ctx context.Context, engine *contestauth.Engine, admin config.AdminConfig, logger *slog.Logger) error {
	user, err := engine.SeedAdmin(ctx, admin.Email, admin.Password)
	switch {
	case err == nil:
		logger.Info("admin account ready", "user_id", user.ID, "email", user.Email, "role", user.Role)
	case errors.Is(err, contestauth.ErrUserExists):
		logger.Info("admin account already present", "email", contestauth.NormalizeEmail(admin.Email))
	default:
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func logSecurityReport(logger *slog.Logger, r contestauth.SecurityReport) {
	logger.Info("security posture",
		"production", r.ProductionMode,
		"signing", r.SigningAlgorithm,
		"access_ttl", r.AccessTTL,
		"refresh_ttl", r.RefreshTTL,
		"otp_ttl", r.OTPTTL,
		"otp_max_attempts", r.OTPMaxAttempts,
		"cookie_secure", r.RefreshCookieSecure,
		"rate_limiting", r.RateLimitingActive,
		"audit", r.AuditEnabled,
	)
	if r.OTPDevCodeExposed {
		logger.Warn("verification codes are returned in API responses")
	}
}
