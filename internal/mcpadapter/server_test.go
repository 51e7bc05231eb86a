package mcpadapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

func newTestServerDeps(t *testing.T) (*executor.Executor, *fstools.Tools) {
	t.Helper()

	store, err := outputstore.New(t.TempDir())
	require.NoError(t, err)

	manager := procmanager.New(store, logger.Default(), procmanager.Options{
		RetentionSeconds: 3600,
		StopGrace:        200 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx, time.Second)
	})

	cfg := &config.Config{AllowedCommands: map[string]struct{}{"echo": {}}}
	x := executor.New(cfg, manager, store, logger.Default())
	fs := fstools.New([]string{t.TempDir()}, logger.Default())
	return x, fs
}

func TestNewRegistersToolsWithoutPanicking(t *testing.T) {
	x, fs := newTestServerDeps(t)

	require.NotPanics(t, func() {
		srv := New(DefaultConfig(), x, fs, logger.Default())
		require.NotNil(t, srv.mcpServer)
	})
}

func TestNewToleratesNilFsTools(t *testing.T) {
	x, _ := newTestServerDeps(t)

	require.NotPanics(t, func() {
		srv := New(DefaultConfig(), x, nil, logger.Default())
		require.NotNil(t, srv.mcpServer)
	})
}

func TestEndpointsReflectConfig(t *testing.T) {
	x, fs := newTestServerDeps(t)
	cfg := Config{Mode: ModeHTTP, Host: "127.0.0.1", Port: 9999}

	srv := New(cfg, x, fs, logger.Default())
	require.Equal(t, "http://127.0.0.1:9999/sse", srv.SSEEndpoint())
	require.Equal(t, "http://127.0.0.1:9999/mcp", srv.StreamableHTTPEndpoint())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	x, fs := newTestServerDeps(t)
	srv := New(DefaultConfig(), x, fs, logger.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
