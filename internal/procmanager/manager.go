// Package procmanager owns the OS-level lifecycle of spawned children: spawn,
// supervise, timeout, stop, clean, and the in-memory registry with
// retention. It feeds captured output into an outputstore.Store but is
// otherwise independent of it.
package procmanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/platform/textcodec"
)

// StartRequest is the spawn contract described in spec form: non-shell argv,
// an absolute working directory, and optional overlay env/stdin/timeout.
type StartRequest struct {
	Argv             []string
	WorkingDirectory string
	Description      string
	Labels           []string
	StdinBytes       []byte
	TimeoutSeconds   int // 0 means unbounded
	EnvOverlay       map[string]string
	Encoding         string
}

// entry is the manager's private bookkeeping for one process: the record
// plus whatever is needed to control and await the underlying OS process.
// The record itself holds no task handles, so there is no cyclic ownership
// between record and supervisor; entries live only in Manager.entries.
type entry struct {
	mu         sync.Mutex
	record     *ProcessRecord
	cmd        *exec.Cmd
	stopOnce   sync.Once
	stopReason string
	done       chan struct{} // closed once the record reaches a terminal status
}

func (e *entry) snapshot() ProcessRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone()
}

func (e *entry) isTerminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Status.IsTerminal()
}

// Manager spawns and supervises OS processes and exposes the registry
// operations the command executor builds on.
type Manager struct {
	store            *outputstore.Store
	logger           *logger.Logger
	retentionSeconds int
	stopGrace        time.Duration
	defaultEncoding  string

	mu      sync.RWMutex
	entries map[string]*entry

	sweeperCancel context.CancelFunc
	sweeperDone   chan struct{}
}

// Options configures a Manager.
type Options struct {
	RetentionSeconds int
	StopGrace        time.Duration

	// DefaultEncoding is used to decode a spawned child's output whenever
	// StartRequest.Encoding is empty. Defaults to textcodec.DefaultLabel.
	DefaultEncoding string
}

// New creates a Manager backed by store and starts its retention sweeper.
func New(store *outputstore.Store, log *logger.Logger, opts Options) *Manager {
	if opts.RetentionSeconds <= 0 {
		opts.RetentionSeconds = 3600
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 2 * time.Second
	}
	if opts.DefaultEncoding == "" {
		opts.DefaultEncoding = textcodec.DefaultLabel
	}

	m := &Manager{
		store:            store,
		logger:           log.WithFields(),
		retentionSeconds: opts.RetentionSeconds,
		stopGrace:        opts.StopGrace,
		defaultEncoding:  opts.DefaultEncoding,
		entries:          make(map[string]*entry),
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.sweeperCancel = cancel
	m.sweeperDone = make(chan struct{})
	go m.runRetentionSweeper(ctx)

	return m
}

// Start validates the request, allocates a ProcessRecord, launches the
// child with no shell interpretation, and spawns the reader/supervisor
// goroutines that feed the Output Store and drive the lifecycle state
// machine.
func (m *Manager) Start(req StartRequest) (*ProcessRecord, error) {
	if len(req.Argv) == 0 {
		return nil, apierr.ValueError("argv must not be empty")
	}
	if !filepath.IsAbs(req.WorkingDirectory) {
		return nil, apierr.ValueError("working_directory must be an absolute path: %s", req.WorkingDirectory)
	}
	info, err := os.Stat(req.WorkingDirectory)
	if err != nil || !info.IsDir() {
		return nil, apierr.ValueError("working_directory does not exist: %s", req.WorkingDirectory)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	encoding := req.Encoding
	if encoding == "" {
		encoding = m.defaultEncoding
	}

	record := &ProcessRecord{
		ID:                 id,
		Argv:               append([]string(nil), req.Argv...),
		WorkingDirectory:   req.WorkingDirectory,
		EnvironmentOverlay: req.EnvOverlay,
		Description:        req.Description,
		Labels:             toLabelSet(req.Labels),
		Encoding:           encoding,
		TimeoutSeconds:     req.TimeoutSeconds,
		StdinBytes:         req.StdinBytes,
		Status:             StatusRunning,
		StartedAt:          now,
	}

	// No shell: argv[0] is the program, the rest are its literal arguments.
	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.WorkingDirectory
	cmd.Env = mergeEnv(req.EnvOverlay)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdin io.WriteCloser
	if len(req.StdinBytes) > 0 {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, apierr.CommandExecutionError(err, "attach stdin for %s", req.Argv[0])
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apierr.CommandExecutionError(err, "attach stdout for %s", req.Argv[0])
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apierr.CommandExecutionError(err, "attach stderr for %s", req.Argv[0])
	}

	e := &entry{record: record, cmd: cmd, done: make(chan struct{})}

	if err := cmd.Start(); err != nil {
		errNow := time.Now().UTC()
		record.Status = StatusError
		record.EndedAt = &errNow
		record.ErrorMessage = err.Error()
		close(e.done)

		m.mu.Lock()
		m.entries[id] = e
		m.mu.Unlock()

		if os.IsPermission(err) {
			return nil, apierr.PermissionError(err, "spawn %s", req.Argv[0])
		}
		return nil, apierr.CommandExecutionError(err, "spawn %s", req.Argv[0])
	}

	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	if stdin != nil {
		_, _ = stdin.Write(req.StdinBytes)
		_ = stdin.Close()
	}

	m.logger.Debug("process spawned",
		zap.String("process_id", id),
		zap.String("argv0", req.Argv[0]),
	)

	go m.supervise(e, stdout, stderr)

	clone := e.snapshot()
	return &clone, nil
}

// Get returns a snapshot of the record for id, or false if unknown.
func (m *Manager) Get(id string) (*ProcessRecord, bool) {
	e, ok := m.get(id)
	if !ok {
		return nil, false
	}
	clone := e.snapshot()
	return &clone, true
}

func (m *Manager) get(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// List returns snapshots filtered by status and/or label subset, ordered by
// StartedAt ascending.
func (m *Manager) List(status *Status, labels []string) []ProcessRecord {
	wanted := toLabelSet(labels)

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	records := make([]ProcessRecord, 0, len(entries))
	for _, e := range entries {
		r := e.snapshot()
		if status != nil && r.Status != *status {
			continue
		}
		if len(wanted) > 0 && !r.HasLabels(wanted) {
			continue
		}
		records = append(records, r)
	}

	sortByStartedAt(records)
	return records
}

// Stop requests termination of id. Graceful stop sends a polite terminate
// signal to the process group and waits up to stopGrace before escalating
// to an unconditional kill; force skips straight to the kill. Stop returns
// only once the record has reached a terminal status. Calling Stop on an
// already-terminal record is a no-op that succeeds.
func (m *Manager) Stop(ctx context.Context, id string, force bool, reason string) error {
	e, ok := m.get(id)
	if !ok {
		return apierr.ProcessNotFoundError(id)
	}

	if e.isTerminal() {
		return nil
	}

	e.stopOnce.Do(func() {
		e.mu.Lock()
		if reason != "" {
			e.stopReason = reason
		} else {
			e.stopReason = "stopped"
		}
		proc := e.cmd.Process
		e.mu.Unlock()

		if proc == nil {
			return
		}

		signalGroup(proc, force)

		if force {
			return
		}

		select {
		case <-e.done:
		case <-ctx.Done():
			signalGroup(proc, true)
		case <-time.After(m.stopGrace):
			signalGroup(proc, true)
		}
	})

	<-e.done
	return nil
}

// Wait blocks until id reaches a terminal status or ctx is done, whichever
// comes first, and returns the snapshot at that point. It does not itself
// enforce any timeout: the per-process timer set at Start time already
// finalizes the record, so ctx is only a safety net for the caller.
func (m *Manager) Wait(ctx context.Context, id string) (*ProcessRecord, error) {
	e, ok := m.get(id)
	if !ok {
		return nil, apierr.ProcessNotFoundError(id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
	}

	clone := e.snapshot()
	return &clone, nil
}

// CleanResult is the per-id outcome of a Clean call.
type CleanResult string

const (
	CleanResultRemoved  CleanResult = "removed"
	CleanResultInUse    CleanResult = "in_use"
	CleanResultNotFound CleanResult = "not_found"
)

// Clean removes terminal records (and their Output Store logs) for the
// given ids. Each id is reported individually rather than failing the whole
// call, matching spec's ProcessCleanError semantics: a RUNNING process is
// reported "in_use" rather than raised, and an already-removed id is
// idempotently "not_found".
func (m *Manager) Clean(ids []string) (map[string]CleanResult, error) {
	if len(ids) == 0 {
		return nil, apierr.ValueError("ids must not be empty")
	}

	result := make(map[string]CleanResult, len(ids))
	for _, id := range ids {
		e, ok := m.get(id)
		if !ok {
			result[id] = CleanResultNotFound
			continue
		}
		if !e.isTerminal() {
			result[id] = CleanResultInUse
			continue
		}

		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()

		if err := m.store.Clear(id); err != nil && !apierr.Is(err, apierr.KindProcessNotFound) {
			m.logger.Warn("failed clearing output store on clean", zap.String("process_id", id))
		}
		result[id] = CleanResultRemoved
	}
	return result, nil
}

// Shutdown cancels the retention sweeper, force-stops every still-running
// process within deadline, and shuts down the Output Store.
func (m *Manager) Shutdown(ctx context.Context, deadline time.Duration) error {
	m.sweeperCancel()
	<-m.sweeperDone

	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id, e := range m.entries {
		if !e.isTerminal() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	stopCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = m.Stop(stopCtx, id, true, "shutdown")
		}(id)
	}
	wg.Wait()

	return m.store.Shutdown()
}

func toLabelSet(labels []string) map[string]struct{} {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

func signalGroup(proc *os.Process, force bool) {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if pgid, err := syscall.Getpgid(proc.Pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = proc.Signal(sig)
}

// mergeEnv merges the overlay on top of the server's own environment, the
// last write for a given key winning.
func mergeEnv(overlay map[string]string) []string {
	base := make(map[string]string, len(os.Environ())+len(overlay))
	for _, kv := range os.Environ() {
		if eq := strings.IndexByte(kv, '='); eq >= 0 {
			base[kv[:eq]] = kv[eq+1:]
		}
	}
	for k, v := range overlay {
		base[k] = v
	}
	merged := make([]string, 0, len(base))
	for k, v := range base {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}
