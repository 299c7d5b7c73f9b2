package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handsup/backend/internal/api/handler"
	"handsup/backend/internal/app"
	"handsup/backend/internal/config"
	"handsup/backend/internal/hub"
	"handsup/backend/internal/logger"

	"github.com/gin-gonic/gin"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Service: "handsup-server",
		Version: version,
		Env:     logger.ParseEnv(cfg.Env),
		Backend: logger.Backend(cfg.LogBackend),
		Level:   logger.ParseLevel(cfg.LogLevel),
	})
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	h := hub.NewManager(deps.Gateway)
	go h.Run(ctx)

	api := handler.NewHandler(deps.Gateway, h, handler.NewAuth(cfg.JWTSecret, cfg.JWTTTL), cfg.PublicURL)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        api.Router(),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr, "public_url", cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "err", err)
	}
	<-h.Done()
}
