package fstools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/logger"
)

func newTestTools(t *testing.T, roots ...string) *Tools {
	t.Helper()
	return New(roots, logger.Default())
}

func TestReadFileReturnsTextContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644))

	tools := newTestTools(t, dir)
	result, err := tools.ReadFile("hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Content)
	require.False(t, result.IsBinary)
}

func TestReadFileDetectsBinary(t *testing.T) {
	dir := t.TempDir()
	binary := []byte{0xff, 0xfe, 0x00, 0x01, 0x02}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), binary, 0o644))

	tools := newTestTools(t, dir)
	result, err := tools.ReadFile("data.bin")
	require.NoError(t, err)
	require.True(t, result.IsBinary)
}

func TestReadFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	_, err := tools.ReadFile("../../etc/passwd")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindPermission))
}

func TestReadFileRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	_, err := tools.ReadFile("nope.txt")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindValue))
}

func TestWriteFileCreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	require.NoError(t, tools.WriteFile("out.txt", "first", false))
	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "first", string(content))

	require.NoError(t, tools.WriteFile("out.txt", "second", false))
	content, err = os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "second", string(content))
}

func TestWriteFileCreatesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	err := tools.WriteFile("nested/deep/out.txt", "content", true)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "content", string(content))
}

func TestWriteFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	err := tools.WriteFile("../outside.txt", "x", false)
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindPermission))
}

func TestSearchFilesRanksExactMatchFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.go"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config_test.go"), []byte(""), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "other_config.go"), []byte(""), 0o644))

	tools := newTestTools(t, dir)
	results, err := tools.SearchFiles(".", "config.go", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "config.go", results[0])
}

func TestSearchFilesRejectsEmptyQuery(t *testing.T) {
	dir := t.TempDir()
	tools := newTestTools(t, dir)

	_, err := tools.SearchFiles(".", "", 10)
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindValue))
}

func TestListDirectoryBuildsTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("y"), 0o644))

	tools := newTestTools(t, dir)
	tree, err := tools.ListDirectory(".", 0)
	require.NoError(t, err)
	require.True(t, tree.IsDir)
	require.Len(t, tree.Children, 2)

	var foundSub bool
	for _, child := range tree.Children {
		if child.Name == "sub" {
			foundSub = true
			require.Len(t, child.Children, 1)
			require.Equal(t, "nested.txt", child.Children[0].Name)
		}
	}
	require.True(t, foundSub)
}

func TestListDirectoryRespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "deep.txt"), []byte("x"), 0o644))

	tools := newTestTools(t, dir)
	tree, err := tools.ListDirectory(".", 1)
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	require.Nil(t, tree.Children[0].Children)
}

func TestResolveAllowsMultipleRoots(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "b.txt"), []byte("b"), 0o644))

	tools := newTestTools(t, dirA, dirB)
	full, err := tools.resolve(filepath.Join(dirB, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dirB, "b.txt"), full)
}

func TestNoAllowedRootsRejectsEverything(t *testing.T) {
	tools := newTestTools(t)
	_, err := tools.ReadFile("anything.txt")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindPermission))
}
