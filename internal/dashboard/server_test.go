package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

func newTestDashboard(t *testing.T) *Server {
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

	return New(Config{Host: "127.0.0.1", Port: 0, WorkDir: t.TempDir()}, x, logger.Default())
}

func TestIndexServesHTML(t *testing.T) {
	srv := newTestDashboard(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "command-mcp")
}

func TestProcessSnapshotReflectsBackgroundRun(t *testing.T) {
	srv := newTestDashboard(t)

	_, err := srv.executor.StartBackground(executor.BackgroundRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []procmanager.ProcessRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
}

func TestProcessesWebsocketPushesSnapshot(t *testing.T) {
	srv := newTestDashboard(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	_, err := srv.executor.StartBackground(executor.BackgroundRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/processes"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var records []procmanager.ProcessRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
}

func TestShellStartStatusStop(t *testing.T) {
	srv := newTestDashboard(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/shell/start", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
	})

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/shell/status", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Running bool `json:"Running"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Running)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/shell/stop", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
