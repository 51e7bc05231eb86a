package ptyshell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/command-mcp/server/internal/platform/logger"
)

func TestSessionWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	session, err := New(Config{WorkDir: dir, Cols: 80, Rows: 24}, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Stop() })

	ch := make(chan []byte, 16)
	session.Subscribe(ch)
	defer session.Unsubscribe(ch)

	_, err = session.Write([]byte("echo marker123\n"))
	require.NoError(t, err)

	var seen bool
	deadline := time.After(5 * time.Second)
	for !seen {
		select {
		case data := <-ch:
			if containsMarker(data) {
				seen = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for shell output")
		}
	}
	require.True(t, seen)
}

func containsMarker(data []byte) bool {
	return indexOf(string(data), "marker123") >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestSessionStatusAndStop(t *testing.T) {
	dir := t.TempDir()
	session, err := New(DefaultConfig(dir), logger.Default())
	require.NoError(t, err)

	status := session.Status()
	require.True(t, status.Running)
	require.Greater(t, status.Pid, 0)

	require.NoError(t, session.Stop())
	require.NoError(t, session.Stop()) // idempotent

	status = session.Status()
	require.False(t, status.Running)
}
