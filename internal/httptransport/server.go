// Package httptransport exposes the command executor and filesystem tools
// over a gin REST API, and mounts the MCP adapter's SSE/StreamableHTTP
// handlers on the same router for --mode http.
package httptransport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/mcpadapter"
	"github.com/command-mcp/server/internal/platform/httpmw"
	"github.com/command-mcp/server/internal/platform/logger"
)

// Config configures the REST+MCP HTTP listener.
type Config struct {
	Host string
	Port int
}

// Server is the gin-based REST and MCP-mount HTTP transport.
type Server struct {
	cfg        Config
	executor   *executor.Executor
	fs         *fstools.Tools
	mcpAdapter *mcpadapter.Server
	router     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger
}

// New builds a Server. mcpAdapter may be nil to run REST-only (the
// filesystem-server binary has no command_* tools to expose over MCP).
func New(cfg Config, x *executor.Executor, fs *fstools.Tools, mcpAdapter *mcpadapter.Server, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:        cfg,
		executor:   x,
		fs:         fs,
		mcpAdapter: mcpAdapter,
		router:     gin.New(),
		logger:     log.WithFields(),
	}

	s.router.Use(gin.Recovery(), httpmw.RequestLogger(s.logger, "command-mcp-http"))
	s.setupRoutes()
	return s
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.executor != nil {
		api := s.router.Group("/api/v1/commands")
		api.POST("/execute", s.handleExecute)
		api.POST("/background", s.handleBackground)
		api.GET("", s.handleList)
		api.GET("/:id", s.handleDetail)
		api.GET("/:id/logs", s.handleLogs)
		api.POST("/:id/stop", s.handleStop)
		api.POST("/clean", s.handleClean)
	}

	if s.fs != nil {
		fsAPI := s.router.Group("/api/v1/fs")
		fsAPI.GET("/file", s.handleFsReadFile)
		fsAPI.POST("/file", s.handleFsWriteFile)
		fsAPI.GET("/search", s.handleFsSearch)
		fsAPI.GET("/tree", s.handleFsTree)
		fsAPI.POST("/thumbnail", s.handleFsThumbnail)
	}

	if s.mcpAdapter != nil {
		s.router.Any("/sse", gin.WrapH(s.mcpAdapter.SSEHandler()))
		s.router.Any("/message", gin.WrapH(s.mcpAdapter.MessageHandler()))
		s.router.Any("/mcp", gin.WrapH(s.mcpAdapter.StreamableHTTPHandler()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start begins serving and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	s.logger.Info("http transport listening")

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

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
