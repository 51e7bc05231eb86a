package mcpadapter

import (
	"context"
	"sync"
	"time"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/platform/logger"
)

// DefaultConfig returns the default stdio-mode configuration.
func DefaultConfig() Config {
	return Config{Mode: ModeStdio, Host: "0.0.0.0", Port: 9090}
}

// Provide starts a Server and returns a cleanup function to stop it,
// convenient for callers that want RAII-style lifecycle management without
// juggling Start/Stop themselves.
func Provide(ctx context.Context, cfg Config, x *executor.Executor, fs *fstools.Tools, log *logger.Logger) (*Server, func() error, error) {
	srv := New(cfg, x, fs, log)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}

	var stopOnce sync.Once
	cleanup := func() error {
		var stopErr error
		stopOnce.Do(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stopErr = srv.Stop(stopCtx)
		})
		return stopErr
	}

	return srv, cleanup, nil
}
