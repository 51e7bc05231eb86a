package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gorilla/websocket"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/procmanager"
	"github.com/command-mcp/server/internal/ptyshell"
)

const (
	processPollInterval = time.Second
	logPollInterval     = 500 * time.Millisecond

	// descriptionDisplayLimit keeps one runaway description from blowing up
	// the process list view; the full value is still available via the
	// detail endpoint.
	descriptionDisplayLimit = 200
)

// snapshotView renders the process list for display, truncating the
// free-form Description field rather than echoing it back unbounded.
func snapshotView(records []procmanager.ProcessRecord) []procmanager.ProcessRecord {
	view := make([]procmanager.ProcessRecord, len(records))
	for i, r := range records {
		r.Description = truncateWithEllipsis(r.Description, descriptionDisplayLimit)
		view[i] = r
	}
	return view
}

// truncateWithEllipsis bounds s to maxLen bytes, appending "..." in place of
// the last three when truncation occurred. Below a 4-byte budget there's no
// room for the ellipsis, so it falls back to a hard cut.
func truncateWithEllipsis(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func (s *Server) handleProcessSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotView(s.executor.List(nil, nil)))
}

// handleProcessesWS pushes a process list snapshot on a fixed interval,
// mirroring the teacher's workspace stream push loop but polling the
// executor instead of subscribing to file-watcher/git events, since the
// process manager has no push-event API of its own.
func (s *Server) handleProcessesWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("dashboard websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(processPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteJSON(snapshotView(s.executor.List(nil, nil))); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// handleLogsWS pushes newly appended log lines for one process, polling the
// Output Store's tail rather than blocking on a file-level notify. Once the
// process is terminal and no new lines arrive it sends nothing more, but it
// keeps polling until the client disconnects or the process is cleaned.
func (s *Server) handleLogsWS(c *gin.Context) {
	id := c.Param("id")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("dashboard websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	var lastCount int
	for {
		select {
		case <-ticker.C:
			result, err := s.executor.Logs(c.Request.Context(), executor.LogsRequest{
				ID:            id,
				WithStdout:    true,
				WithStderr:    true,
				FollowSeconds: 0,
				LimitLines:    10000,
			})
			if err != nil {
				if apierr.Is(err, apierr.KindProcessNotFound) {
					return
				}
				s.logger.Warn("dashboard log poll failed", zap.String("id", id), zap.Error(err))
				continue
			}

			var lines []string
			for _, chunk := range result.Chunks {
				lines = append(lines, chunk...)
			}
			if len(lines) > lastCount {
				fresh := lines[lastCount:]
				lastCount = len(lines)
				if err := conn.WriteJSON(fresh); err != nil {
					return
				}
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *Server) handleShellStatus(c *gin.Context) {
	s.mu.Lock()
	shell := s.shell
	s.mu.Unlock()

	if shell == nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, shell.Status())
}

func (s *Server) handleShellStart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shell != nil && s.shell.Status().Running {
		c.JSON(http.StatusOK, gin.H{"status": "already running"})
		return
	}

	shell, err := ptyshell.New(ptyshell.DefaultConfig(s.cfg.WorkDir), s.logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.shell = shell
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleShellStop(c *gin.Context) {
	s.mu.Lock()
	shell := s.shell
	s.shell = nil
	s.mu.Unlock()

	if shell == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not running"})
		return
	}
	if err := shell.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleShellWS relays a websocket connection's binary frames to/from the
// attached shell's PTY, broadcasting buffered scrollback immediately on
// attach.
func (s *Server) handleShellWS(c *gin.Context) {
	s.mu.Lock()
	shell := s.shell
	s.mu.Unlock()

	if shell == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shell not started"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("dashboard shell websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	if buffered := shell.GetBufferedOutput(); len(buffered) > 0 {
		_ = conn.WriteMessage(websocket.BinaryMessage, buffered)
	}

	outCh := make(chan []byte, 256)
	shell.Subscribe(outCh)
	defer shell.Unsubscribe(outCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := shell.Write(data); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-outCh:
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
