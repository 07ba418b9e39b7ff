package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/barkeep-app/barkeep/internal/app"
	"github.com/barkeep-app/barkeep/internal/authweb"
	"github.com/barkeep-app/barkeep/internal/dashboard"
	"github.com/barkeep-app/barkeep/internal/guard"
	"github.com/barkeep-app/barkeep/internal/idclient"
	"github.com/barkeep-app/barkeep/internal/observability"
	"github.com/barkeep-app/barkeep/internal/platform/cache"
	"github.com/barkeep-app/barkeep/internal/platform/db"
	"github.com/barkeep-app/barkeep/internal/session"
	"github.com/barkeep-app/barkeep/internal/shared"
	"github.com/barkeep-app/barkeep/internal/tokenstore"
	"github.com/barkeep-app/barkeep/internal/view"
	"github.com/barkeep-app/barkeep/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	browsers := shared.NewBrowserManager(redisClient, "barkeep_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	identity := idclient.New(cfg.IdentityAPIURL)
	if err := identity.Ping(ctx); err != nil {
		// The app still serves the login page; logins fail fast until
		// the backend comes up.
		logger.Warn("identity api unreachable", slog.Any("error", err))
	}

	store := tokenstore.New(redisClient, cfg.SessionTTL, logger)
	audit := session.NewPGAudit(pool)

	sessions := session.NewController(session.Config{
		Store:       store,
		Client:      identity,
		Audit:       audit,
		Logger:      logger,
		RestoreWait: cfg.RestoreWait,
	})

	metrics := observability.NewMetrics()

	gate := guard.Gate{
		Sessions: sessions,
		Views:    templates,
		Logger:   logger,
	}

	authHandler := authweb.NewHandler(logger, sessions, templates, browsers, csrfManager, metrics)
	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Browsers:         browsers,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		Gate:             gate,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
