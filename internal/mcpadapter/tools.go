package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/executor"
	"github.com/command-mcp/server/internal/outputstore"
	"github.com/command-mcp/server/internal/platform/apierr"
	"github.com/command-mcp/server/internal/platform/logger"
	"github.com/command-mcp/server/internal/procmanager"
)

func registerTools(s *server.MCPServer, x *executor.Executor, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("command_execute",
			mcp.WithDescription("Run a command to completion and return its captured output. Use for short-lived commands; for anything that may outlive the call, use command_bg_start instead."),
			mcp.WithString("command", mcp.Required(), mcp.Description("The program to run (must be allow-listed, matched by exact name)")),
			mcp.WithArray("args", mcp.Description("Arguments to pass to the program (JSON array of strings, no shell expansion)")),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute working directory for the command")),
			mcp.WithString("stdin", mcp.Description("Text to write to the command's stdin before closing it")),
			mcp.WithString("timeout", mcp.Description("Timeout in seconds before the command is terminated; default 15")),
			mcp.WithString("envs", mcp.Description("JSON object of extra environment variables to overlay on the server's own environment")),
			mcp.WithString("encoding", mcp.Description("Text codec used to decode output; default DEFAULT_ENCODING")),
			mcp.WithString("limit_lines", mcp.Description("Max lines of stdout/stderr to keep; the most recent lines are kept and older ones truncated; default 500")),
		),
		commandExecuteHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_bg_start",
			mcp.WithDescription("Start a command in the background and return its process id immediately, without waiting for it to finish."),
			mcp.WithString("command", mcp.Required(), mcp.Description("The program to run (must be allow-listed)")),
			mcp.WithArray("args", mcp.Description("Arguments to pass to the program")),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute working directory for the command")),
			mcp.WithString("description", mcp.Description("Short human-readable label for this process, shown in list/detail")),
			mcp.WithArray("labels", mcp.Description("Labels to tag this process with, for later filtering via command_ps_list")),
			mcp.WithString("stdin", mcp.Description("Text to write to the command's stdin before closing it")),
			mcp.WithString("envs", mcp.Description("JSON object of extra environment variables")),
			mcp.WithString("encoding", mcp.Description("Text codec used to decode output")),
			mcp.WithString("timeout", mcp.Description("Timeout in seconds; omit for unbounded")),
		),
		commandBgStartHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_ps_list",
			mcp.WithDescription("List known processes, optionally filtered by status and/or labels."),
			mcp.WithArray("labels", mcp.Description("Only return processes whose label set is a superset of these")),
			mcp.WithString("status", mcp.Description("Only return processes in this status: RUNNING, COMPLETED, FAILED, TERMINATED, ERROR")),
		),
		commandPsListHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_ps_stop",
			mcp.WithDescription("Stop a running process, gracefully by default. Calling this on an already-terminal process succeeds as a no-op."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id returned by command_bg_start")),
			mcp.WithString("force", mcp.Description("If true, kill immediately instead of sending a graceful terminate first")),
		),
		commandPsStopHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_ps_logs",
			mcp.WithDescription("Retrieve a process's captured output, with tailing, time-range, and grep filtering."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id")),
			mcp.WithString("tail", mcp.Description("Return at most this many of the most recent matching lines")),
			mcp.WithString("since", mcp.Description("RFC3339 timestamp; only lines at or after this time")),
			mcp.WithString("until", mcp.Description("RFC3339 timestamp; only lines strictly before this time")),
			mcp.WithString("with_stdout", mcp.Description("Include the stdout channel; default true")),
			mcp.WithString("with_stderr", mcp.Description("Include the stderr channel; default true")),
			mcp.WithString("add_time_prefix", mcp.Description("If true, prefix each line with its timestamp")),
			mcp.WithString("time_prefix_format", mcp.Description("Go time layout for add_time_prefix; default RFC3339")),
			mcp.WithString("follow_seconds", mcp.Description("If the process is still running and short of tail, wait up to this many seconds for more output; default 1")),
			mcp.WithString("limit_lines", mcp.Description("Max lines per returned chunk; default 500")),
			mcp.WithString("grep", mcp.Description("Regular expression to filter lines by")),
			mcp.WithString("grep_mode", mcp.Description("\"line\" keeps whole matching lines, \"content\" keeps only the matched substring; default line")),
		),
		commandPsLogsHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_ps_clean",
			mcp.WithDescription("Remove terminal processes and their logs. Running processes are reported in_use rather than removed."),
			mcp.WithArray("pids", mcp.Required(), mcp.Description("Process ids to remove")),
		),
		commandPsCleanHandler(x, log),
	)

	s.AddTool(
		mcp.NewTool("command_ps_detail",
			mcp.WithDescription("Get the full record for one process."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id")),
		),
		commandPsDetailHandler(x, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 7))
}

// asError renders err into the tool's error text, preserving its apierr
// classification so the caller can see what kind of failure occurred
// without the adapter collapsing every error into the same message shape.
func asError(err error) *mcp.CallToolResult {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", apiErr.Kind, apiErr.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(body))
}

func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []string
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil
	}
	return out
}

func stringMapArg(req mcp.CallToolRequest, key string) map[string]string {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func intArg(req mcp.CallToolRequest, key string, def int) int {
	raw := req.GetString(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func boolArg(req mcp.CallToolRequest, key string, def bool) bool {
	raw := req.GetString(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func timeArg(req mcp.CallToolRequest, key string) *time.Time {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func commandExecuteHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		command, err := req.RequireString("command")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		directory, err := req.RequireString("directory")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		argv := append([]string{command}, stringSliceArg(req, "args")...)

		result, err := x.Execute(ctx, executor.ExecuteRequest{
			Argv:             argv,
			WorkingDirectory: directory,
			Stdin:            []byte(req.GetString("stdin", "")),
			TimeoutSeconds:   intArg(req, "timeout", 0),
			EnvOverlay:       stringMapArg(req, "envs"),
			Encoding:         req.GetString("encoding", ""),
			LimitLines:       intArg(req, "limit_lines", 0),
		})
		if err != nil {
			log.Error("command_execute failed", zap.String("command", command), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(result), nil
	}
}

func commandBgStartHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		command, err := req.RequireString("command")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		directory, err := req.RequireString("directory")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		argv := append([]string{command}, stringSliceArg(req, "args")...)

		record, err := x.StartBackground(executor.BackgroundRequest{
			Argv:             argv,
			WorkingDirectory: directory,
			Description:      req.GetString("description", ""),
			Labels:           stringSliceArg(req, "labels"),
			Stdin:            []byte(req.GetString("stdin", "")),
			EnvOverlay:       stringMapArg(req, "envs"),
			Encoding:         req.GetString("encoding", ""),
			TimeoutSeconds:   intArg(req, "timeout", 0),
		})
		if err != nil {
			log.Error("command_bg_start failed", zap.String("command", command), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(record), nil
	}
}

func commandPsListHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var status *procmanager.Status
		if raw := req.GetString("status", ""); raw != "" {
			s := procmanager.Status(strings.ToUpper(raw))
			status = &s
		}
		records := x.List(status, stringSliceArg(req, "labels"))
		return jsonResult(records), nil
	}
}

func commandPsStopHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := req.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		force := boolArg(req, "force", false)

		if err := x.Stop(ctx, pid, force); err != nil {
			log.Error("command_ps_stop failed", zap.String("pid", pid), zap.Error(err))
			return asError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("stopped %s", pid)), nil
	}
}

func commandPsLogsHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := req.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		grepMode := outputstore.GrepModeLine
		if req.GetString("grep_mode", "line") == "content" {
			grepMode = outputstore.GrepModeContent
		}

		result, err := x.Logs(ctx, executor.LogsRequest{
			ID:               pid,
			WithStdout:       boolArg(req, "with_stdout", true),
			WithStderr:       boolArg(req, "with_stderr", true),
			Since:            timeArg(req, "since"),
			Until:            timeArg(req, "until"),
			Tail:             intArg(req, "tail", 0),
			FollowSeconds:    intArg(req, "follow_seconds", -1),
			GrepPattern:      req.GetString("grep", ""),
			GrepMode:         grepMode,
			AddTimePrefix:    boolArg(req, "add_time_prefix", false),
			TimePrefixFormat: req.GetString("time_prefix_format", ""),
			LimitLines:       intArg(req, "limit_lines", 0),
		})
		if err != nil {
			log.Error("command_ps_logs failed", zap.String("pid", pid), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(result), nil
	}
}

func commandPsCleanHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pids := stringSliceArg(req, "pids")
		if len(pids) == 0 {
			return mcp.NewToolResultError("pids must not be empty"), nil
		}

		results, err := x.Clean(pids)
		if err != nil {
			log.Error("command_ps_clean failed", zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(results), nil
	}
}

func commandPsDetailHandler(x *executor.Executor, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := req.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		record, err := x.Detail(pid)
		if err != nil {
			log.Error("command_ps_detail failed", zap.String("pid", pid), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(record), nil
	}
}
