// Package executor is the policy layer and user-facing facade in front of
// the process manager and output store: it enforces the allow-list, applies
// the default timeout/limit_lines conventions, and shapes raw process state
// and log entries into the result types callers (the MCP adapter, the HTTP
// transport) render.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/config"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

const (
	defaultTimeoutSeconds = 15
	defaultLimitLines     = 500
	defaultFollowSeconds  = 1
	truncationMarker      = "... [truncated, showing last %d of %d lines]"
)

// Executor is the single entry point business code and transport adapters
// use to run and observe commands; it owns no process state of its own.
type Executor struct {
	cfg     *config.Config
	manager *procmanager.Manager
	store   *outputstore.Store
	logger  *logger.Logger
}

// New builds an Executor over an already-running Manager and Store, both
// constructed from the same cfg.
func New(cfg *config.Config, manager *procmanager.Manager, store *outputstore.Store, log *logger.Logger) *Executor {
	return &Executor{cfg: cfg, manager: manager, store: store, logger: log.WithFields()}
}

func (x *Executor) checkAllowed(program string) error {
	if !x.cfg.IsCommandAllowed(program) {
		return apierr.ValueError("command not allowed: %s", program)
	}
	return nil
}

// ExecuteRequest is the synchronous execute() contract. Timeout and
// LimitLines are optional; zero means "use the configured default".
type ExecuteRequest struct {
	Argv             []string
	WorkingDirectory string
	Stdin            []byte
	TimeoutSeconds   int
	EnvOverlay       map[string]string
	Encoding         string
	LimitLines       int
}

// CommandResult is the synchronous execute() outcome.
type CommandResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	DurationSeconds float64
	TimedOut        bool
}

// Execute runs argv to completion (or until its timeout fires) and returns
// the captured output. A timeout still returns whatever was captured before
// termination, with TimedOut set, rather than raising.
func (x *Executor) Execute(ctx context.Context, req ExecuteRequest) (*CommandResult, error) {
	if len(req.Argv) == 0 {
		return nil, apierr.ValueError("argv must not be empty")
	}
	if err := x.checkAllowed(req.Argv[0]); err != nil {
		return nil, err
	}

	timeoutSeconds := req.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(x.cfg.DefaultTimeout.Seconds())
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}
	limitLines := req.LimitLines
	if limitLines <= 0 {
		limitLines = defaultLimitLines
	}

	record, err := x.manager.Start(procmanager.StartRequest{
		Argv:             req.Argv,
		WorkingDirectory: req.WorkingDirectory,
		StdinBytes:       req.Stdin,
		TimeoutSeconds:   timeoutSeconds,
		EnvOverlay:       req.EnvOverlay,
		Encoding:         req.Encoding,
	})
	if err != nil {
		return nil, err
	}

	// The manager's own timer already bounds execution to timeoutSeconds;
	// this deadline is only a safety net in case that timer is somehow
	// starved, so it carries a generous margin rather than racing it.
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second+10*time.Second)
	defer cancel()

	final, err := x.manager.Wait(waitCtx, record.ID)
	if err != nil {
		return nil, err
	}

	stdout, err := x.readChannelText(final.ID, outputstore.Stdout, limitLines)
	if err != nil {
		return nil, err
	}
	stderr, err := x.readChannelText(final.ID, outputstore.Stderr, limitLines)
	if err != nil {
		return nil, err
	}

	exitCode := 1
	if final.ExitCode != nil {
		exitCode = *final.ExitCode
	}
	duration := 0.0
	if final.EndedAt != nil {
		duration = final.EndedAt.Sub(final.StartedAt).Seconds()
	}

	return &CommandResult{
		Stdout:          stdout,
		Stderr:          stderr,
		ExitCode:        exitCode,
		DurationSeconds: duration,
		TimedOut:        final.Status == procmanager.StatusTerminated && final.ErrorMessage == "timeout",
	}, nil
}

// readChannelText reads all entries for (id, ch), truncates to the last
// limitLines, and joins them with newlines, annotating the result when
// truncation occurred.
func (x *Executor) readChannelText(id string, ch outputstore.Channel, limitLines int) (string, error) {
	entries, err := x.store.Read(id, ch, outputstore.ReadOptions{})
	if err != nil {
		if apierr.Is(err, apierr.KindProcessNotFound) {
			return "", nil
		}
		return "", apierr.OutputRetrievalError(err, "read %s for %s", ch, id)
	}

	total := len(entries)
	if total > limitLines {
		entries = entries[total-limitLines:]
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	text := strings.Join(lines, "\n")
	if total > limitLines {
		text = fmt.Sprintf(truncationMarker, limitLines, total) + "\n" + text
	}
	return text, nil
}

// BackgroundRequest is the start_background() contract: same spawn shape as
// Execute but with no implicit timeout default (0 means unbounded).
type BackgroundRequest struct {
	Argv             []string
	WorkingDirectory string
	Description      string
	Labels           []string
	Stdin            []byte
	EnvOverlay       map[string]string
	Encoding         string
	TimeoutSeconds   int
}

// StartBackground launches argv and returns immediately with its record.
func (x *Executor) StartBackground(req BackgroundRequest) (*procmanager.ProcessRecord, error) {
	if len(req.Argv) == 0 {
		return nil, apierr.ValueError("argv must not be empty")
	}
	if err := x.checkAllowed(req.Argv[0]); err != nil {
		return nil, err
	}

	return x.manager.Start(procmanager.StartRequest{
		Argv:             req.Argv,
		WorkingDirectory: req.WorkingDirectory,
		Description:      req.Description,
		Labels:           req.Labels,
		StdinBytes:       req.Stdin,
		TimeoutSeconds:   req.TimeoutSeconds,
		EnvOverlay:       req.EnvOverlay,
		Encoding:         req.Encoding,
	})
}

// List passes through to the Process Manager registry.
func (x *Executor) List(status *procmanager.Status, labels []string) []procmanager.ProcessRecord {
	return x.manager.List(status, labels)
}

// Detail returns the full record for id.
func (x *Executor) Detail(id string) (*procmanager.ProcessRecord, error) {
	record, ok := x.manager.Get(id)
	if !ok {
		return nil, apierr.ProcessNotFoundError(id)
	}
	return record, nil
}

// Stop requests termination of id, waiting for it to become terminal.
func (x *Executor) Stop(ctx context.Context, id string, force bool) error {
	return x.manager.Stop(ctx, id, force, "")
}

// Clean removes the terminal records and logs for ids, reporting a per-id
// outcome rather than failing the whole batch.
func (x *Executor) Clean(ids []string) (map[string]procmanager.CleanResult, error) {
	return x.manager.Clean(ids)
}

// compileGrep validates and compiles an optional grep pattern, surfacing a
// bad pattern as ValueError rather than a regexp panic or opaque error.
func compileGrep(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apierr.ValueError("invalid grep pattern %q: %v", pattern, err)
	}
	return re, nil
}
