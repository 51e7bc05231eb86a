package procmanager

import (
	"bufio"
	"io"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/textcodec"
)

// supervise waits for the child to exit, races that against an optional
// timeout, and only transitions the record to a terminal status once both
// reader goroutines have fully drained the child's pipes — so no output is
// silently lost to a status flip.
func (m *Manager) supervise(e *entry, stdout, stderr io.ReadCloser) {
	e.mu.Lock()
	encoding := e.record.Encoding
	e.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { return m.pumpOutput(e, stdout, outputstore.Stdout, encoding) })
	g.Go(func() error { return m.pumpOutput(e, stderr, outputstore.Stderr, encoding) })

	// cmd.Wait closes the stdout/stderr pipes once the child exits, so it is
	// only called after both readers have reached EOF.
	exitCh := make(chan error, 1)
	go func() {
		_ = g.Wait()
		exitCh <- e.cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	var timer *time.Timer
	e.mu.Lock()
	timeoutSeconds := e.record.TimeoutSeconds
	e.mu.Unlock()
	if timeoutSeconds > 0 {
		timer = time.NewTimer(time.Duration(timeoutSeconds) * time.Second)
		timeoutC = timer.C
	}

	var exitErr error
	timedOut := false

	select {
	case exitErr = <-exitCh:
	case <-timeoutC:
		timedOut = true
		if proc := e.cmd.Process; proc != nil {
			signalGroup(proc, true)
		}
		exitErr = <-exitCh
	}
	if timer != nil {
		timer.Stop()
	}

	// Drain readers fully before finalizing the record; pump errors are
	// non-fatal (the child has already exited) and only logged.
	if err := g.Wait(); err != nil {
		m.logger.Debug("output reader finished with error", zap.Error(err))
	}

	now := time.Now().UTC()
	code := extractExitCode(exitErr)

	e.mu.Lock()
	switch {
	case timedOut:
		e.record.Status = StatusTerminated
		e.record.ErrorMessage = "timeout"
	case e.stopReason != "":
		e.record.Status = StatusTerminated
		e.record.ErrorMessage = e.stopReason
	case code == 0:
		e.record.Status = StatusCompleted
	default:
		e.record.Status = StatusFailed
	}
	e.record.ExitCode = &code
	e.record.EndedAt = &now
	e.mu.Unlock()

	m.store.Seal(e.record.ID, outputstore.Stdout)
	m.store.Seal(e.record.ID, outputstore.Stderr)

	close(e.done)
}

// pumpOutput decodes the child's stream line by line, per encoding (an
// IANA/WHATWG codec label, already defaulted by Start), and appends each
// line to the Output Store with a fresh timestamp. A decode or store error
// is recorded on the process record rather than propagated into the child.
func (m *Manager) pumpOutput(e *entry, r io.ReadCloser, ch outputstore.Channel, encoding string) error {
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(textcodec.NewDecodingReader(r, encoding))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if err := m.store.Append(e.record.ID, ch, line); err != nil {
			e.mu.Lock()
			e.record.ErrorMessage = err.Error()
			e.mu.Unlock()
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		e.mu.Lock()
		e.record.ErrorMessage = err.Error()
		e.mu.Unlock()
		return err
	}
	return nil
}

func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
		return 1
	}
	return 1
}
