// Package fstools gives MCP clients read/write/search access to a
// configured set of directory roots, behind a traversal guard: every
// resolved path must land inside one of the allowed roots or the call is
// rejected.
package fstools

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/logger"
)

const maxReadableFileSize = 10 * 1024 * 1024

// Tools is the filesystem facade handed to the MCP adapter.
type Tools struct {
	allowedRoots []string
	logger       *logger.Logger
}

// New builds a Tools restricted to allowedRoots. A nil/empty allowedRoots
// means no path is permitted.
func New(allowedRoots []string, log *logger.Logger) *Tools {
	clean := make([]string, 0, len(allowedRoots))
	for _, r := range allowedRoots {
		clean = append(clean, filepath.Clean(r))
	}
	return &Tools{allowedRoots: clean, logger: log.WithFields()}
}

// resolve cleans reqPath, joining it against the first allowed root it
// falls under (or validating it directly if already absolute and
// contained), and rejects anything that would escape every root.
func (t *Tools) resolve(reqPath string) (string, error) {
	cleanReq := filepath.Clean(reqPath)

	if filepath.IsAbs(cleanReq) {
		if t.contains(cleanReq) {
			return cleanReq, nil
		}
		return "", apierr.PermissionError(nil, "path outside allowed directories: %s", reqPath)
	}

	for _, root := range t.allowedRoots {
		candidate := filepath.Join(root, cleanReq)
		if t.contains(candidate) {
			return candidate, nil
		}
	}
	return "", apierr.PermissionError(nil, "path outside allowed directories: %s", reqPath)
}

func (t *Tools) contains(path string) bool {
	for _, root := range t.allowedRoots {
		if path == root || strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// ReadResult is the read_file outcome.
type ReadResult struct {
	Content  string
	Size     int64
	IsBinary bool
}

// ReadFile returns a file's content, base64-encoded with IsBinary set if it
// is not valid UTF-8.
func (t *Tools) ReadFile(reqPath string) (*ReadResult, error) {
	fullPath, err := t.resolve(reqPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, apierr.ValueError("file not found: %s", reqPath)
	}
	if info.IsDir() {
		return nil, apierr.ValueError("path is a directory, not a file: %s", reqPath)
	}
	if info.Size() > maxReadableFileSize {
		return nil, apierr.ValueError("file too large (max %d bytes): %s", maxReadableFileSize, reqPath)
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, apierr.StorageError(err, "read file %s", reqPath)
	}

	if !utf8.Valid(content) {
		return &ReadResult{Content: base64.StdEncoding.EncodeToString(content), Size: info.Size(), IsBinary: true}, nil
	}
	return &ReadResult{Content: string(content), Size: info.Size()}, nil
}

// WriteFile writes content to reqPath, creating intermediate directories
// when createDirs is set. An existing file is overwritten.
func (t *Tools) WriteFile(reqPath, content string, createDirs bool) error {
	fullPath, err := t.resolve(reqPath)
	if err != nil {
		return err
	}

	if createDirs {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return apierr.StorageError(err, "create directories for %s", reqPath)
		}
	}

	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return apierr.StorageError(err, "write file %s", reqPath)
	}
	return nil
}

// scoredMatch pairs a relative path with its fuzzy-search score.
type scoredMatch struct {
	path  string
	score int
}

// SearchFiles walks root (relative to an allowed directory) and fuzzy-
// matches file names against query, returning up to limit paths ordered by
// match quality then path length.
func (t *Tools) SearchFiles(root, query string, limit int) ([]string, error) {
	if query == "" {
		return nil, apierr.ValueError("query must not be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	fullRoot, err := t.resolve(root)
	if err != nil {
		return nil, err
	}

	lowerQuery := strings.ToLower(query)
	var matches []scoredMatch

	err = filepath.WalkDir(fullRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the walk
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(fullRoot, path)
		if relErr != nil {
			return nil
		}
		lowerName := strings.ToLower(d.Name())

		score := 0
		switch {
		case lowerName == lowerQuery:
			score = 100
		case strings.HasPrefix(lowerName, lowerQuery):
			score = 75
		case strings.Contains(lowerName, lowerQuery):
			score = 50
		case strings.Contains(strings.ToLower(rel), lowerQuery):
			score = 25
		}
		if score > 0 {
			matches = append(matches, scoredMatch{path: rel, score: score})
		}
		return nil
	})
	if err != nil {
		return nil, apierr.StorageError(err, "search files under %s", root)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return len(matches[i].path) < len(matches[j].path)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	result := make([]string, len(matches))
	for i, m := range matches {
		result[i] = m.path
	}
	return result, nil
}

// TreeNode is one entry in a list_directory response.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	IsDir    bool        `json:"is_dir"`
	Size     int64       `json:"size"`
	Children []*TreeNode `json:"children,omitempty"`
}

// ListDirectory returns the directory tree rooted at reqPath, down to
// maxDepth levels (0 means unlimited).
func (t *Tools) ListDirectory(reqPath string, maxDepth int) (*TreeNode, error) {
	fullPath, err := t.resolve(reqPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, apierr.ValueError("path not found: %s", reqPath)
	}

	return buildTreeNode(fullPath, reqPath, info, maxDepth, 0)
}

func buildTreeNode(fullPath, relPath string, info os.FileInfo, maxDepth, depth int) (*TreeNode, error) {
	node := &TreeNode{Name: info.Name(), Path: relPath, IsDir: info.IsDir(), Size: info.Size()}

	if !info.IsDir() || (maxDepth > 0 && depth >= maxDepth) {
		return node, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return node, nil
	}

	node.Children = make([]*TreeNode, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == ".git" || entry.Name() == "node_modules" {
			continue
		}

		childFull := filepath.Join(fullPath, entry.Name())
		childRel := filepath.Join(relPath, entry.Name())

		childInfo, err := entry.Info()
		if err != nil {
			continue
		}

		child, err := buildTreeNode(childFull, childRel, childInfo, maxDepth, depth+1)
		if err != nil {
			continue
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
