package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/command-mcp/server/internal/fstools"
	"github.com/command-mcp/server/internal/platform/logger"
)

func registerFsTools(s *server.MCPServer, fs *fstools.Tools, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("fs_read_file",
			mcp.WithDescription("Read a file's contents. Binary files are returned base64-encoded with is_binary set."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to read, relative to an allowed directory or absolute within one")),
		),
		fsReadFileHandler(fs, log),
	)

	s.AddTool(
		mcp.NewTool("fs_write_file",
			mcp.WithDescription("Write text content to a file, overwriting it if it exists."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to write, relative to an allowed directory or absolute within one")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Text content to write")),
			mcp.WithString("create_directories", mcp.Description("If true, create any missing parent directories; default false")),
		),
		fsWriteFileHandler(fs, log),
	)

	s.AddTool(
		mcp.NewTool("fs_search_files",
			mcp.WithDescription("Fuzzy-search file names under a directory, ranked by match quality."),
			mcp.WithString("root", mcp.Description("Directory to search under; default \".\"")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Substring or file name to match against")),
			mcp.WithString("limit", mcp.Description("Max results to return; default 20")),
		),
		fsSearchFilesHandler(fs, log),
	)

	s.AddTool(
		mcp.NewTool("fs_list_directory",
			mcp.WithDescription("Return a directory's file tree."),
			mcp.WithString("path", mcp.Description("Directory to list; default \".\"")),
			mcp.WithString("max_depth", mcp.Description("Recursion limit; 0 for unlimited; default 0")),
		),
		fsListDirectoryHandler(fs, log),
	)

	s.AddTool(
		mcp.NewTool("fs_image_thumbnail",
			mcp.WithDescription("Resize an image to fit within given dimensions and write it to a new path."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Source image path")),
			mcp.WithString("output_path", mcp.Required(), mcp.Description("Destination path for the resized image")),
			mcp.WithString("width", mcp.Required(), mcp.Description("Max width in pixels")),
			mcp.WithString("height", mcp.Required(), mcp.Description("Max height in pixels")),
		),
		fsImageThumbnailHandler(fs, log),
	)

	log.Info("registered filesystem MCP tools", zap.Int("count", 5))
}

func fsReadFileHandler(fs *fstools.Tools, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := fs.ReadFile(path)
		if err != nil {
			log.Error("fs_read_file failed", zap.String("path", path), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(result), nil
	}
}

func fsWriteFileHandler(fs *fstools.Tools, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := fs.WriteFile(path, content, boolArg(req, "create_directories", false)); err != nil {
			log.Error("fs_write_file failed", zap.String("path", path), zap.Error(err))
			return asError(err), nil
		}
		return mcp.NewToolResultText("wrote " + path), nil
	}
}

func fsSearchFilesHandler(fs *fstools.Tools, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		root := req.GetString("root", ".")

		results, err := fs.SearchFiles(root, query, intArg(req, "limit", 20))
		if err != nil {
			log.Error("fs_search_files failed", zap.String("root", root), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(results), nil
	}
}

func fsListDirectoryHandler(fs *fstools.Tools, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", ".")

		tree, err := fs.ListDirectory(path, intArg(req, "max_depth", 0))
		if err != nil {
			log.Error("fs_list_directory failed", zap.String("path", path), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(tree), nil
	}
}

func fsImageThumbnailHandler(fs *fstools.Tools, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		outputPath, err := req.RequireString("output_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := fs.ImageThumbnail(path, outputPath, intArg(req, "width", 0), intArg(req, "height", 0))
		if err != nil {
			log.Error("fs_image_thumbnail failed", zap.String("path", path), zap.Error(err))
			return asError(err), nil
		}
		return jsonResult(result), nil
	}
}
