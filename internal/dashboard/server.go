// Package dashboard is a minimal read-only web view of running and recent
// processes, pushing process list and log tail updates over websocket, plus
// an optional interactive PTY attach.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/platform/httpmw"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/ptyshell"
)

// Config configures the dashboard's HTTP listener.
type Config struct {
	Host    string
	Port    int
	WorkDir string // root directory for the optional attach shell
}

// Server serves the dashboard's HTML shell, REST snapshot endpoints, and
// websocket push streams.
type Server struct {
	cfg      Config
	executor *executor.Executor
	router   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu    sync.Mutex
	shell *ptyshell.Session
}

// New builds a dashboard Server over an already-running Executor.
func New(cfg Config, x *executor.Executor, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		executor: x,
		router:   gin.New(),
		logger:   log.WithFields(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router.Use(gin.Recovery(), httpmw.RequestLogger(s.logger, "command-mcp-dashboard"))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/api/processes", s.handleProcessSnapshot)
	s.router.GET("/ws/processes", s.handleProcessesWS)
	s.router.GET("/ws/logs/:id", s.handleLogsWS)

	s.router.GET("/api/shell/status", s.handleShellStatus)
	s.router.POST("/api/shell/start", s.handleShellStart)
	s.router.POST("/api/shell/stop", s.handleShellStop)
	s.router.GET("/ws/shell", s.handleShellWS)
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	s.logger.Info("dashboard listening")

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully shuts the listener down, stopping any attached shell.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.shell != nil {
		_ = s.shell.Stop()
		s.shell = nil
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>command-mcp dashboard</title></head>
<body>
<h1>command-mcp</h1>
<p>Read-only process dashboard. See /api/processes, /ws/processes, /ws/logs/:id.</p>
</body>
</html>
`
