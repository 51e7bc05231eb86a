package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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

func newTestHTTPServer(t *testing.T) *Server {
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

	return New(Config{Host: "127.0.0.1", Port: 0}, x, fs, nil, logger.Default())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestHTTPServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteEndpointRunsEcho(t *testing.T) {
	srv := newTestHTTPServer(t)

	body := `{"command":"echo","args":["hi"],"directory":"/tmp"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result executor.CommandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Stdout, "hi")
}

func TestExecuteEndpointRejectsDisallowedCommand(t *testing.T) {
	srv := newTestHTTPServer(t)

	body := `{"command":"rm","args":["-rf","/"],"directory":"/tmp"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackgroundDetailClean(t *testing.T) {
	srv := newTestHTTPServer(t)

	body := `{"command":"echo","args":["bg"],"directory":"/tmp"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/background", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var record procmanager.ProcessRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.NotEmpty(t, record.ID)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/commands/"+record.ID, nil)
		srv.Router().ServeHTTP(rec, req)
		var got procmanager.ProcessRecord
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		return got.Status == procmanager.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/commands/clean", strings.NewReader(`{"ids":["`+record.ID+`"]}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFsReadWriteRoundTrip(t *testing.T) {
	srv := newTestHTTPServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fs/file", strings.NewReader(`{"path":"note.txt","content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/fs/file?path=note.txt", nil)
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result fstools.ReadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "hello", result.Content)
}
