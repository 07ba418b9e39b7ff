// Command idstub runs the development identity API. It seeds one account
// per role, all sharing the password from IDSTUB_PASSWORD.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/barkeep-app/barkeep/internal/idstub"
)

type config struct {
	Addr     string        `envconfig:"IDSTUB_ADDR" default:":9100"`
	Secret   string        `envconfig:"IDSTUB_SECRET" default:"dev-only-secret"`
	Password string        `envconfig:"IDSTUB_PASSWORD" default:"barkeep"`
	TokenTTL time.Duration `envconfig:"IDSTUB_TOKEN_TTL" default:"1h"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	srv := idstub.NewServer(idstub.Config{
		Logger:   logger,
		Secret:   cfg.Secret,
		TokenTTL: cfg.TokenTTL,
	})
	if err := srv.SeedDefaults(cfg.Password); err != nil {
		logger.Error("seed accounts", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting identity stub", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
