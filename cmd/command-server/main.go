// Package main is the entry point for command-server, an MCP server
// exposing OS command execution (command_execute/command_bg_start/
// command_ps_list/command_ps_detail/command_ps_logs/command_ps_stop/
// command_ps_clean) to MCP-compatible clients over stdio, SSE, or
// Streamable HTTP.
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

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/mcpadapter"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

var (
	modeFlag = flag.String("mode", "stdio", "transport mode (stdio, sse, http)")
	hostFlag = flag.String("host", "0.0.0.0", "listen host for sse/http modes")
	portFlag = flag.Int("port", 9090, "listen port for sse/http modes")
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
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(ctx, cfg.StopGrace); err != nil {
			log.Warn("process manager shutdown error", zap.Error(err))
		}
	}()

	x := executor.New(cfg, manager, store, log)

	mcpCfg := mcpadapter.Config{
		Mode: mcpadapter.Mode(*modeFlag),
		Host: *hostFlag,
		Port: *portFlag,
	}

	log.Info("starting command-server",
		zap.String("mode", *modeFlag),
		zap.Int("port", *portFlag))

	run(mcpCfg, x, log)
}

// run starts the adapter and waits for its own termination condition. In
// stdio mode that is EOF on stdin (Start blocks until then); in sse/http
// mode Start returns once the listener is accepting, and termination
// instead waits on an OS signal.
func run(cfg mcpadapter.Config, x *executor.Executor, log *logger.Logger) {
	ctx := context.Background()

	if cfg.Mode == mcpadapter.ModeStdio {
		srv := mcpadapter.New(cfg, x, nil, log)
		if err := srv.Start(ctx); err != nil {
			log.Error("command-server stdio loop exited with error", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	srv, cleanup, err := mcpadapter.Provide(ctx, cfg, x, nil, log)
	if err != nil {
		log.Error("failed to start command-server", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("command-server listening, SSE endpoint: %s\n", srv.SSEEndpoint())
	fmt.Printf("Streamable HTTP endpoint: %s\n", srv.StreamableHTTPEndpoint())

	waitForShutdown(log, func(ctx context.Context) {
		if err := cleanup(); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	})
}

func waitForShutdown(log *logger.Logger, cleanup func(ctx context.Context)) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down command-server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup(ctx)

	log.Info("command-server stopped")
}
