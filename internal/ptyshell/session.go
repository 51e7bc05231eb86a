// Package ptyshell provides an interactive PTY-backed shell session the
// dashboard can attach to, independent of any managed process: it is a
// plain login shell rooted at the configured working directory, not a view onto
// a process the executor spawned.
package ptyshell

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/logger"
)

const maxOutputBufferSize = 16 * 1024

// Config configures a Session.
type Config struct {
	WorkDir string
	Cols    int
	Rows    int
}

// DefaultConfig returns an 80x24 session rooted at workDir.
func DefaultConfig(workDir string) Config {
	return Config{WorkDir: workDir, Cols: 80, Rows: 24}
}

// Status is a Session's point-in-time state.
type Status struct {
	Running   bool
	Pid       int
	Shell     string
	Cwd       string
	StartedAt time.Time
}

// Session is one interactive shell, PTY-attached, broadcasting its output to
// any number of subscribers (typically dashboard websocket connections).
type Session struct {
	logger *logger.Logger

	workDir string
	shell   string
	args    []string

	pty *os.File
	cmd *exec.Cmd

	mu        sync.RWMutex
	running   bool
	startedAt time.Time

	subMu       sync.RWMutex
	subscribers map[chan<- []byte]struct{}

	bufferMu     sync.RWMutex
	outputBuffer []byte

	doneCh chan struct{}
}

func detectShell() (string, []string) {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, []string{"-l"}
	}
	for _, sh := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(sh); err == nil {
			return sh, []string{"-l"}
		}
	}
	return "/bin/sh", nil
}

// New starts a shell session under cfg.WorkDir.
func New(cfg Config, log *logger.Logger) (*Session, error) {
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}

	shell, args := detectShell()
	s := &Session{
		logger:      log.WithFields(zap.String("component", "ptyshell")),
		workDir:     cfg.WorkDir,
		shell:       shell,
		args:        args,
		subscribers: make(map[chan<- []byte]struct{}),
		doneCh:      make(chan struct{}),
	}

	s.cmd = exec.Command(shell, args...)
	s.cmd.Dir = cfg.WorkDir
	s.cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.StartWithSize(s.cmd, &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)})
	if err != nil {
		return nil, apierr.StorageError(err, "start pty shell")
	}
	s.pty = f
	s.running = true
	s.startedAt = time.Now()

	s.logger.Info("pty shell session started", zap.String("shell", shell), zap.Int("pid", s.cmd.Process.Pid))

	go s.readOutput()
	go s.waitForExit()

	return s, nil
}

// Resize adjusts the PTY window size.
func (s *Session) Resize(cols, rows int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return apierr.ValueError("session not running")
	}
	return pty.Setsize(s.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Write sends input to the shell.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0, apierr.ValueError("session not running")
	}
	return s.pty.Write(data)
}

// Subscribe registers ch to receive output broadcasts.
func (s *Session) Subscribe(ch chan<- []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch.
func (s *Session) Unsubscribe(ch chan<- []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subscribers, ch)
}

// GetBufferedOutput returns the recent output ring buffer, for a subscriber
// that just attached and needs scrollback.
func (s *Session) GetBufferedOutput() []byte {
	s.bufferMu.RLock()
	defer s.bufferMu.RUnlock()
	if len(s.outputBuffer) == 0 {
		return nil
	}
	out := make([]byte, len(s.outputBuffer))
	copy(out, s.outputBuffer)
	return out
}

// Status reports the session's current state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	return Status{Running: s.running, Pid: pid, Shell: s.shell, Cwd: s.workDir, StartedAt: s.startedAt}
}

// Stop terminates the shell, waiting up to 5s before force-killing.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.pty != nil {
		_ = s.pty.Close()
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	}
	return nil
}

func (s *Session) readOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.broadcast(data)
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("pty read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Session) broadcast(data []byte) {
	s.bufferMu.Lock()
	s.outputBuffer = append(s.outputBuffer, data...)
	if len(s.outputBuffer) > maxOutputBufferSize {
		s.outputBuffer = s.outputBuffer[len(s.outputBuffer)-maxOutputBufferSize:]
	}
	s.bufferMu.Unlock()

	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Session) waitForExit() {
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	close(s.doneCh)
}
