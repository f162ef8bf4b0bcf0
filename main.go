package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/capability"
	"github.com/marketbeam/orchestrator/internal/completion"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/db"
	"github.com/marketbeam/orchestrator/internal/httpapi"
	"github.com/marketbeam/orchestrator/internal/pricing"
	"github.com/marketbeam/orchestrator/internal/registry"
	"github.com/marketbeam/orchestrator/internal/session"
	"github.com/marketbeam/orchestrator/internal/tracing"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without traces", zap.Error(err))
	}

	// Config hot reload: pricing table changes apply without a restart.
	configDir := "./config"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configDir = filepath.Dir(p)
	}
	configMgr, err := config.NewManager(configDir, logger)
	if err != nil {
		logger.Warn("Config hot reload unavailable", zap.Error(err))
	} else {
		configMgr.RegisterValidator("models.yaml", pricing.ValidateMap)
		configMgr.RegisterHandler("models.yaml", func(config.ChangeEvent) error {
			pricing.Reload()
			return nil
		})
		if err := configMgr.Start(context.Background()); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		} else {
			defer configMgr.Stop()
		}
	}

	capabilities, err := capability.LoadFile(capability.DefaultPath())
	if err != nil {
		logger.Fatal("Failed to load capability catalog", zap.Error(err))
	}
	logger.Info("Loaded capability catalog",
		zap.Int("count", capabilities.Count()),
		zap.Strings("categories", capabilities.Categories()),
	)

	var sessions *session.Manager
	if cfg.Redis.Addr != "" {
		sessions, err = session.NewManager(cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("Conversation store unavailable, continuing without history", zap.Error(err))
			sessions = nil
		} else {
			defer sessions.Close()
		}
	}

	var audit *db.AuditWriter
	if cfg.Audit.Enabled {
		audit, err = db.NewAuditWriter(cfg.Audit, logger)
		if err != nil {
			logger.Warn("Audit log unavailable, continuing without it", zap.Error(err))
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	completionClient := completion.NewClient(cfg.Gateway.CompletionURL, cfg.Gateway.Timeout, logger)
	reg := registry.New(capabilities, completionClient, sessions, cfg, logger)

	apiServer := httpapi.NewServer(reg, audit, cfg.Server.RateLimit, logger)
	srv := httpapi.Start(cfg.Server.Port, apiServer, logger)

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("Starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("Orchestrator started",
		zap.Int("api_port", cfg.Server.Port),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracer shutdown failed", zap.Error(err))
	}
}
