// Package main is the entry point for filesystem-server, an MCP server
// exposing the fs_read_file/fs_write_file/fs_search_files/fs_list_directory/
// fs_image_thumbnail tools over an allow-listed set of directories, with no
// command execution surface at all.
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

	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/mcpadapter"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
)

var (
	modeFlag = flag.String("mode", "stdio", "transport mode (stdio, sse, http)")
	hostFlag = flag.String("host", "0.0.0.0", "listen host for sse/http modes")
	portFlag = flag.Int("port", 9091, "listen port for sse/http modes")
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

	if len(cfg.AllowedDirectories) == 0 {
		log.Warn("FS_ALLOWED_DIRECTORIES is empty, every filesystem tool call will be rejected")
	}

	fs := fstools.New(cfg.AllowedDirectories, log)

	mcpCfg := mcpadapter.Config{
		Mode: mcpadapter.Mode(*modeFlag),
		Host: *hostFlag,
		Port: *portFlag,
	}

	log.Info("starting filesystem-server",
		zap.String("mode", *modeFlag),
		zap.Int("port", *portFlag),
		zap.Strings("allowed_directories", cfg.AllowedDirectories))

	run(mcpCfg, fs, log)
}

func run(cfg mcpadapter.Config, fs *fstools.Tools, log *logger.Logger) {
	ctx := context.Background()

	if cfg.Mode == mcpadapter.ModeStdio {
		srv := mcpadapter.New(cfg, nil, fs, log)
		if err := srv.Start(ctx); err != nil {
			log.Error("filesystem-server stdio loop exited with error", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	srv, cleanup, err := mcpadapter.Provide(ctx, cfg, nil, fs, log)
	if err != nil {
		log.Error("failed to start filesystem-server", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("filesystem-server listening, SSE endpoint: %s\n", srv.SSEEndpoint())
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

	log.Info("shutting down filesystem-server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup(ctx)

	log.Info("filesystem-server stopped")
}
