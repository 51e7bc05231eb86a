// Package mcpadapter exposes the command executor's operations as MCP
// tools, over stdio, SSE, or Streamable HTTP depending on Config.Mode.
package mcpadapter

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/platform/logger"
)

const (
	serverName    = "command-mcp"
	serverVersion = "1.0.0"
)

// Server wraps the MCP server and whichever transport Config.Mode selects.
type Server struct {
	cfg       Config
	executor  *executor.Executor
	mcpServer *server.MCPServer

	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server

	mu      sync.Mutex
	running bool
	logger  *logger.Logger
}

// New creates a Server. Tools are registered immediately so Stop/inspection
// can happen even before Start for stdio mode. x may be nil, in which case
// no command_* tools are registered; fs may be nil, in which case no
// filesystem tools are registered.
func New(cfg Config, x *executor.Executor, fs *fstools.Tools, log *logger.Logger) *Server {
	mcpServer := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(true))
	if x != nil {
		registerTools(mcpServer, x, log)
	}
	if fs != nil {
		registerFsTools(mcpServer, fs, log)
	}

	return &Server{
		cfg:                  cfg,
		executor:             x,
		mcpServer:            mcpServer,
		sseServer:            server.NewSSEServer(mcpServer),
		streamableHTTPServer: server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/mcp")),
		logger:               log.WithFields(),
	}
}

// SSEHandler returns the raw SSE stream handler, for mounting on a router
// other than this Server's own (e.g. the REST HTTP transport's gin engine).
func (s *Server) SSEHandler() http.Handler {
	return s.sseServer.SSEHandler()
}

// MessageHandler returns the SSE message-post handler.
func (s *Server) MessageHandler() http.Handler {
	return s.sseServer.MessageHandler()
}

// StreamableHTTPHandler returns the Streamable HTTP transport handler.
func (s *Server) StreamableHTTPHandler() http.Handler {
	return s.streamableHTTPServer
}

// Start brings up the configured transport. For stdio it blocks until the
// stdio loop exits (normally on EOF, or when ctx is cancelled). For sse/http
// it starts a listener in a background goroutine and returns once it is
// accepting connections.
func (s *Server) Start(ctx context.Context) error {
	switch s.cfg.Mode {
	case ModeStdio:
		return s.startStdio(ctx)
	case ModeSSE, ModeHTTP:
		return s.startHTTP(ctx)
	default:
		return fmt.Errorf("unknown mcp adapter mode: %s", s.cfg.Mode)
	}
}

func (s *Server) startStdio(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("MCP server serving over stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcpServer) }()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startHTTP brings up both the SSE and Streamable HTTP transports on the
// same listener, mirroring the dual-transport wiring used for compatibility
// across MCP clients. ModeSSE and ModeHTTP both start this listener; the
// distinction only changes which endpoint callers are told to use.
func (s *Server) startHTTP(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())
	mux.Handle("/mcp", s.streamableHTTPServer)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = tcpAddr.Port
	}

	s.httpServer = &http.Server{Handler: mux}

	ready := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		close(ready)

		s.logger.Info("MCP server listening",
			zap.Int("port", s.cfg.Port),
			zap.String("sse_endpoint", "/sse"),
			zap.String("streamable_http_endpoint", "/mcp"))

		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("MCP server error", zap.Error(err))
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down whichever transport is active.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to shutdown SSE server", zap.Error(err))
		}
	}
	if s.streamableHTTPServer != nil {
		if err := s.streamableHTTPServer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to shutdown Streamable HTTP server", zap.Error(err))
		}
	}
	return nil
}

// SSEEndpoint returns the SSE transport URL.
func (s *Server) SSEEndpoint() string {
	return fmt.Sprintf("http://%s:%d/sse", s.cfg.Host, s.cfg.Port)
}

// StreamableHTTPEndpoint returns the Streamable HTTP transport URL.
func (s *Server) StreamableHTTPEndpoint() string {
	return fmt.Sprintf("http://%s:%d/mcp", s.cfg.Host, s.cfg.Port)
}
