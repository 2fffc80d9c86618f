package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/mediatypes"
	"photo-tagger/internal/metrics"

	"github.com/disintegration/imaging"
)

// Default thumbnail bounds.
const (
	DefaultMaxWidth  = 200
	DefaultMaxHeight = 200
)

var (
	// ErrRenderFailed is returned when a thumbnail could not be produced.
	ErrRenderFailed = errors.New("thumbnail render failed")

	// ErrUnsupportedFormat is returned for sources the renderer cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	errEncode = errors.New("encode")
)

// Renderer produces a bounded thumbnail of sourcePath at destPath.
type Renderer interface {
	Render(ctx context.Context, sourcePath, destPath string, maxWidth, maxHeight int) error
	Remove(destPath string) error
	RemoveAll(destDir string) error
}

// ThumbnailGenerator renders thumbnails with disintegration/imaging.
type ThumbnailGenerator struct {
	quality      int
	maxDimension int
	maxPixels    int
}

// NewThumbnailGenerator returns a generator encoding JPEG output at the
// given quality (1-100; out of range values use 80).
func NewThumbnailGenerator(quality int) *ThumbnailGenerator {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &ThumbnailGenerator{
		quality:      quality,
		maxDimension: MaxImageDimension,
		maxPixels:    MaxImagePixels,
	}
}

// Render decodes sourcePath, fits it inside maxWidth x maxHeight without
// upscaling, and writes it to destPath. The output format follows destPath's
// extension, falling back to JPEG.
func (g *ThumbnailGenerator) Render(ctx context.Context, sourcePath, destPath string, maxWidth, maxHeight int) error {
	start := time.Now()

	err := g.render(ctx, sourcePath, destPath, maxWidth, maxHeight)

	metrics.ThumbnailRenderDuration.Observe(time.Since(start).Seconds())
	if outcome := renderOutcome(err); outcome != "" {
		metrics.ThumbnailRendersTotal.WithLabelValues(outcome).Inc()
	}
	if err == nil {
		logging.Debug("Thumbnail rendered: %s -> %s", sourcePath, destPath)
	}

	return err
}

// renderOutcome is the ThumbnailRendersTotal label for err, or "" when the
// render was cancelled rather than failed.
func renderOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnsupportedFormat):
		return "error_unsupported"
	case errors.Is(err, errEncode):
		return "error_encode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ""
	default:
		return "error"
	}
}

func (g *ThumbnailGenerator) render(ctx context.Context, sourcePath, destPath string, maxWidth, maxHeight int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !mediatypes.IsRenderable(sourcePath) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(sourcePath))
	}

	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}

	img, format, err := LoadImageConstrained(sourcePath, g.maxDimension, g.maxPixels)
	metrics.ThumbnailDecodeByFormat.WithLabelValues(format).Inc()
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, sourcePath, err)
		}
		return fmt.Errorf("%w: decode %s: %v", ErrRenderFailed, sourcePath, err)
	}

	// Fit never upscales.
	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	if err := ctx.Err(); err != nil {
		return err
	}

	return g.writeAtomic(thumb, destPath)
}

func outputFormat(destPath string) imaging.Format {
	format, err := imaging.FormatFromFilename(destPath)
	if err != nil {
		return imaging.JPEG
	}
	return format
}

func (g *ThumbnailGenerator) writeAtomic(img image.Image, destPath string) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrRenderFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".thumb-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %v", ErrRenderFailed, dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove temp thumbnail %s: %v", tmpPath, err)
		}
	}

	if err := imaging.Encode(tmp, img, outputFormat(destPath), imaging.JPEGQuality(g.quality)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %w %s: %v", ErrRenderFailed, errEncode, destPath, err)
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %v", ErrRenderFailed, tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename to %s: %v", ErrRenderFailed, destPath, err)
	}

	return nil
}

// Remove deletes a thumbnail. A missing file is not an error.
func (g *ThumbnailGenerator) Remove(destPath string) error {
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove thumbnail %s: %w", destPath, err)
	}
	return nil
}

// RemoveAll deletes a mirrored thumbnail directory. A missing directory is
// not an error.
func (g *ThumbnailGenerator) RemoveAll(destDir string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("failed to remove thumbnail directory %s: %w", destDir, err)
	}
	return nil
}
