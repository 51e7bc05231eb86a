// Package main is the entry point for unified-server, which runs the full
// stack in one process: the command executor and filesystem tools exposed
// as MCP tools over SSE/Streamable HTTP, the same operations over a REST
// API, and the read-only process dashboard, all sharing one executor and
// one listener per HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/dashboard"
	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/httptransport"
	"github.com/command-mcp/server/internal/mcpadapter"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

var (
	modeFlag          = flag.String("mode", "http", "transport mode for the MCP surface (sse, http); unified-server always also serves REST and the dashboard, so stdio is not offered here")
	hostFlag          = flag.String("host", "0.0.0.0", "listen host")
	apiPortFlag       = flag.Int("api-port", 8080, "port for the MCP + REST API surface")
	dashboardPortFlag = flag.Int("dashboard-port", 8081, "port for the read-only dashboard, 0 disables it")
)

func main() {
	flag.Parse()

	cfg := config.Load()

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	mcpMode := mcpadapter.Mode(*modeFlag)
	if mcpMode != mcpadapter.ModeSSE && mcpMode != mcpadapter.ModeHTTP {
		log.Error("unsupported unified-server mode, must be sse or http", zap.String("mode", *modeFlag))
		os.Exit(1)
	}

	store, err := outputstore.New(cfg.OutputStoragePath)
	if err != nil {
		log.Error("failed to open output store", zap.Error(err))
		os.Exit(1)
	}

	manager := procmanager.New(store, log, procmanager.Options{
		RetentionSeconds: cfg.RetentionSeconds,
		StopGrace:        cfg.StopGrace,
		DefaultEncoding:  cfg.DefaultEncoding,
	})

	x := executor.New(cfg, manager, store, log)
	fs := fstools.New(cfg.AllowedDirectories, log)

	mcpAdapter := mcpadapter.New(mcpadapter.Config{Mode: mcpMode, Host: *hostFlag, Port: *apiPortFlag}, x, fs, log)

	apiServer := httptransport.New(httptransport.Config{Host: *hostFlag, Port: *apiPortFlag}, x, fs, mcpAdapter, log)

	var dashboardServer *dashboard.Server
	if *dashboardPortFlag > 0 {
		dashboardServer = dashboard.New(dashboard.Config{
			Host:    *hostFlag,
			Port:    *dashboardPortFlag,
			WorkDir: firstAllowedDir(cfg.AllowedDirectories),
		}, x, log)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := apiServer.Start(ctx); err != nil {
			log.Error("api server exited with error", zap.Error(err))
		}
	}()
	log.Info("unified-server API listening", zap.Int("port", *apiPortFlag))

	if dashboardServer != nil {
		go func() {
			if err := dashboardServer.Start(ctx); err != nil {
				log.Error("dashboard server exited with error", zap.Error(err))
			}
		}()
		log.Info("unified-server dashboard listening", zap.Int("port", *dashboardPortFlag))
	}

	waitForShutdown(log, func(shutdownCtx context.Context) {
		cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn("api server shutdown error", zap.Error(err))
		}
		if dashboardServer != nil {
			if err := dashboardServer.Stop(shutdownCtx); err != nil {
				log.Warn("dashboard server shutdown error", zap.Error(err))
			}
		}
		if err := manager.Shutdown(shutdownCtx, cfg.StopGrace); err != nil {
			log.Warn("process manager shutdown error", zap.Error(err))
		}
	})
}

func firstAllowedDir(dirs []string) string {
	if len(dirs) == 0 {
		return os.TempDir()
	}
	return dirs[0]
}

func waitForShutdown(log *logger.Logger, cleanup func(ctx context.Context)) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down unified-server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup(ctx)

	log.Info("unified-server stopped")
}
