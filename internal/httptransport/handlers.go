package httptransport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/procmanager"
)

func statusFromErr(err error) int {
	switch {
	case apierr.Is(err, apierr.KindValue):
		return http.StatusBadRequest
	case apierr.Is(err, apierr.KindPermission):
		return http.StatusForbidden
	case apierr.Is(err, apierr.KindProcessNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(c *gin.Context, err error) {
	c.JSON(statusFromErr(err), gin.H{"error": err.Error()})
}

type executeRequest struct {
	Command        string            `json:"command" binding:"required"`
	Args           []string          `json:"args"`
	Directory      string            `json:"directory" binding:"required"`
	Stdin          string            `json:"stdin"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Env            map[string]string `json:"env"`
	Encoding       string            `json:"encoding"`
	LimitLines     int               `json:"limit_lines"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.executor.Execute(c.Request.Context(), executor.ExecuteRequest{
		Argv:             append([]string{req.Command}, req.Args...),
		WorkingDirectory: req.Directory,
		Stdin:            []byte(req.Stdin),
		TimeoutSeconds:   req.TimeoutSeconds,
		EnvOverlay:       req.Env,
		Encoding:         req.Encoding,
		LimitLines:       req.LimitLines,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type backgroundRequest struct {
	Command        string            `json:"command" binding:"required"`
	Args           []string          `json:"args"`
	Directory      string            `json:"directory" binding:"required"`
	Description    string            `json:"description"`
	Labels         []string          `json:"labels"`
	Stdin          string            `json:"stdin"`
	Env            map[string]string `json:"env"`
	Encoding       string            `json:"encoding"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

func (s *Server) handleBackground(c *gin.Context) {
	var req backgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.executor.StartBackground(executor.BackgroundRequest{
		Argv:             append([]string{req.Command}, req.Args...),
		WorkingDirectory: req.Directory,
		Description:      req.Description,
		Labels:           req.Labels,
		Stdin:            []byte(req.Stdin),
		EnvOverlay:       req.Env,
		Encoding:         req.Encoding,
		TimeoutSeconds:   req.TimeoutSeconds,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleList(c *gin.Context) {
	var status *procmanager.Status
	if raw := c.Query("status"); raw != "" {
		st := procmanager.Status(strings.ToUpper(raw))
		status = &st
	}
	var labels []string
	if raw := c.Query("labels"); raw != "" {
		labels = strings.Split(raw, ",")
	}
	c.JSON(http.StatusOK, s.executor.List(status, labels))
}

func (s *Server) handleDetail(c *gin.Context) {
	record, err := s.executor.Detail(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleStop(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := s.executor.Stop(c.Request.Context(), c.Param("id"), force); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type cleanRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) handleClean(c *gin.Context) {
	var req cleanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.executor.Clean(req.IDs)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleLogs(c *gin.Context) {
	grepMode := outputstore.GrepModeLine
	if c.Query("grep_mode") == "content" {
		grepMode = outputstore.GrepModeContent
	}

	var since, until *time.Time
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = &t
		}
	}
	if raw := c.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			until = &t
		}
	}

	result, err := s.executor.Logs(c.Request.Context(), executor.LogsRequest{
		ID:               c.Param("id"),
		WithStdout:       c.Query("with_stdout") != "false",
		WithStderr:       c.Query("with_stderr") != "false",
		Since:            since,
		Until:            until,
		Tail:             queryInt(c, "tail", 0),
		FollowSeconds:    queryInt(c, "follow_seconds", -1),
		GrepPattern:      c.Query("grep"),
		GrepMode:         grepMode,
		AddTimePrefix:    c.Query("add_time_prefix") == "true",
		TimePrefixFormat: c.Query("time_prefix_format"),
		LimitLines:       queryInt(c, "limit_lines", 0),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleFsReadFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	result, err := s.fs.ReadFile(path)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type writeFileRequest struct {
	Path              string `json:"path" binding:"required"`
	Content           string `json:"content"`
	CreateDirectories bool   `json:"create_directories"`
}

func (s *Server) handleFsWriteFile(c *gin.Context) {
	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.fs.WriteFile(req.Path, req.Content, req.CreateDirectories); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "written"})
}

func (s *Server) handleFsSearch(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	root := c.DefaultQuery("root", ".")
	results, err := s.fs.SearchFiles(root, query, queryInt(c, "limit", 20))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleFsTree(c *gin.Context) {
	path := c.DefaultQuery("path", ".")
	tree, err := s.fs.ListDirectory(path, queryInt(c, "max_depth", 0))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

type thumbnailRequest struct {
	Path       string `json:"path" binding:"required"`
	OutputPath string `json:"output_path" binding:"required"`
	Width      int    `json:"width" binding:"required"`
	Height     int    `json:"height" binding:"required"`
}

func (s *Server) handleFsThumbnail(c *gin.Context) {
	var req thumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.fs.ImageThumbnail(req.Path, req.OutputPath, req.Width, req.Height)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
