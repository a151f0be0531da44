package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/guide_helper/backend/rastersource/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/usecase"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer func() { _ = l.Sync() }()

	l.Info("starting rastersource service",
		"cache_type", cfg.Cache.Type,
		"cache_capacity", cfg.Cache.Capacity,
		"pixel_ratio", cfg.Tiles.PixelRatio,
		"telemetry", cfg.Telemetry.Enabled,
	)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	tileCache, err := cache.New(cfg.Cache, cfg.Redis, l)
	if err != nil {
		l.Fatal("failed to initialize tile cache", "type", cfg.Cache.Type, "error", err)
	}
	defer func() {
		if err := tileCache.Close(); err != nil {
			l.Error("failed to close tile cache", "error", err)
		}
	}()

	httpTransport := transport.NewHTTPTransport(cfg.Transport, l)
	sourceUseCase := usecase.NewSourceUseCase(cfg, httpTransport, tileCache, l)
	l.Info("source registry ready", "scope", sourceUseCase.Scope(), "cache_backend", tileCache.Backend())

	validate := validator.New()
	h := handler.NewHandler(validate, sourceUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router, l)

	go func() {
		l.Info("starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	sourceUseCase.Close(shutdownCtx)

	l.Info("application shutdown completed")
}
