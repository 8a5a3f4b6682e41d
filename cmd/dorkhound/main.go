package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/dorkhound/api"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/engine"
	"github.com/use-agent/dorkhound/proxy"
	"github.com/use-agent/dorkhound/session"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("dorkhound starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"captchaMode", cfg.Captcha.Mode,
	)

	// ── 3. Sanity-check the engine profiles ─────────────────────────
	// A typo in a selector should kill the process at boot, not the
	// first search at 3am.
	if err := engine.Validate(); err != nil {
		slog.Error("engine profile validation failed", "error", err)
		os.Exit(1)
	}

	// ── 4. Proxy provisioning client ────────────────────────────────
	var prov proxy.Provisioner
	if client := proxy.NewClient(cfg.Proxy); client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.Validate(ctx); err != nil {
			slog.Warn("proxy provisioning unavailable, running direct", "error", err)
		}
		cancel()
		prov = client
	}

	// ── 5. Session controller (launches browser) ────────────────────
	ctrl := session.NewController(cfg, prov)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	err := ctrl.Initialize(initCtx)
	cancelInit()
	if err != nil {
		slog.Error("failed to initialise session", "error", err)
		os.Exit(1)
	}
	defer ctrl.Cleanup(context.Background())

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(ctrl, cfg, prov != nil, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// ctrl.Cleanup runs via defer — stops the watchdog, kills Chrome and
	// releases the lease.
	slog.Info("dorkhound stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
