package procmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/logger"
)

func newTestManager(t *testing.T) (*Manager, *outputstore.Store) {
	t.Helper()
	store, err := outputstore.New(t.TempDir())
	require.NoError(t, err)

	m := New(store, logger.Default(), Options{RetentionSeconds: 3600, StopGrace: 200 * time.Millisecond})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx, time.Second)
	})
	return m, store
}

func TestStartRejectsEmptyArgv(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Start(StartRequest{WorkingDirectory: "/tmp"})
	require.Error(t, err)
}

func TestStartRejectsRelativeWorkingDirectory(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Start(StartRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "relative/path"})
	require.Error(t, err)
}

func TestEchoCompletes(t *testing.T) {
	m, store := newTestManager(t)

	rec, err := m.Start(StartRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)
	require.Equal(t, StatusRunning, rec.Status)

	require.Eventually(t, func() bool {
		got, ok := m.Get(rec.ID)
		return ok && got.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	final, ok := m.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.ExitCode)
	require.Equal(t, 0, *final.ExitCode)

	entries, err := store.Read(rec.ID, outputstore.Stdout, outputstore.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hi", entries[0].Text)
}

func TestStartResolvesDefaultEncoding(t *testing.T) {
	store, err := outputstore.New(t.TempDir())
	require.NoError(t, err)
	m := New(store, logger.Default(), Options{DefaultEncoding: "windows-1252"})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx, time.Second)
	})

	rec, err := m.Start(StartRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)
	require.Equal(t, "windows-1252", rec.Encoding)

	rec2, err := m.Start(StartRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp", Encoding: "utf-8"})
	require.NoError(t, err)
	require.Equal(t, "utf-8", rec2.Encoding)
}

func TestNonZeroExitIsFailed(t *testing.T) {
	m, _ := newTestManager(t)

	rec, err := m.Start(StartRequest{Argv: []string{"sh", "-c", "exit 3"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := m.Get(rec.ID)
		return ok && got.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	final, _ := m.Get(rec.ID)
	require.Equal(t, StatusFailed, final.Status)
	require.Equal(t, 3, *final.ExitCode)
}

func TestTimeoutTerminatesWithPartialOutput(t *testing.T) {
	m, store := newTestManager(t)

	rec, err := m.Start(StartRequest{
		Argv:             []string{"sh", "-c", "echo A; sleep 100"},
		WorkingDirectory: "/tmp",
		TimeoutSeconds:   1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := m.Get(rec.ID)
		return ok && got.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	final, _ := m.Get(rec.ID)
	require.Equal(t, StatusTerminated, final.Status)
	require.Equal(t, "timeout", final.ErrorMessage)

	entries, err := store.Read(rec.ID, outputstore.Stdout, outputstore.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "A", entries[0].Text)
}

func TestStopGracefulThenIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	rec, err := m.Start(StartRequest{Argv: []string{"sleep", "30"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, m.Stop(ctx, rec.ID, false, ""))
	require.Less(t, time.Since(start), 3*time.Second)

	final, ok := m.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, StatusTerminated, final.Status)

	require.NoError(t, m.Stop(ctx, rec.ID, false, ""))
}

func TestListFiltersByLabels(t *testing.T) {
	m, _ := newTestManager(t)

	a, err := m.Start(StartRequest{Argv: []string{"sleep", "5"}, WorkingDirectory: "/tmp", Labels: []string{"a"}})
	require.NoError(t, err)
	ab, err := m.Start(StartRequest{Argv: []string{"sleep", "5"}, WorkingDirectory: "/tmp", Labels: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = m.Start(StartRequest{Argv: []string{"sleep", "5"}, WorkingDirectory: "/tmp", Labels: []string{"b"}})
	require.NoError(t, err)

	matched := m.List(nil, []string{"a"})
	ids := make(map[string]bool, len(matched))
	for _, r := range matched {
		ids[r.ID] = true
	}
	require.Len(t, matched, 2)
	require.True(t, ids[a.ID])
	require.True(t, ids[ab.ID])
}

func TestCleanReportsPerID(t *testing.T) {
	m, _ := newTestManager(t)

	running, err := m.Start(StartRequest{Argv: []string{"sleep", "5"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	done, err := m.Start(StartRequest{Argv: []string{"echo", "hi"}, WorkingDirectory: "/tmp"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := m.Get(done.ID)
		return ok && got.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	results, err := m.Clean([]string{running.ID, done.ID, "missing-id"})
	require.NoError(t, err)
	require.Equal(t, CleanResultInUse, results[running.ID])
	require.Equal(t, CleanResultRemoved, results[done.ID])
	require.Equal(t, CleanResultNotFound, results["missing-id"])

	_, ok := m.Get(done.ID)
	require.False(t, ok)
}
