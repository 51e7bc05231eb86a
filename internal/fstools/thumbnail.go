package fstools

import (
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/command-mcp/server/internal/platform/apierr"
)

const maxThumbnailDimension = 2048

// ThumbnailResult is the image_thumbnail outcome.
type ThumbnailResult struct {
	OutputPath string
	Width      int
	Height     int
}

// ImageThumbnail resizes the image at reqPath to fit within width x height
// (preserving aspect ratio, Lanczos resampling) and writes it to outPath.
// Both paths are checked against the allowed directory set.
func (t *Tools) ImageThumbnail(reqPath, outPath string, width, height int) (*ThumbnailResult, error) {
	if width <= 0 || height <= 0 || width > maxThumbnailDimension || height > maxThumbnailDimension {
		return nil, apierr.ValueError("width and height must be between 1 and %d", maxThumbnailDimension)
	}

	srcPath, err := t.resolve(reqPath)
	if err != nil {
		return nil, err
	}
	dstPath, err := t.resolve(outPath)
	if err != nil {
		return nil, err
	}

	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apierr.ValueError("not a readable image: %s", reqPath)
	}

	thumb := imaging.Fit(src, width, height, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, apierr.StorageError(err, "create directories for %s", outPath)
	}

	if err := imaging.Save(thumb, dstPath); err != nil {
		return nil, apierr.StorageError(err, "save thumbnail to %s", outPath)
	}

	bounds := thumb.Bounds()
	return &ThumbnailResult{OutputPath: outPath, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
