package media

import (
	"fmt"
	"image"
	"math"

	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the largest width or height decoded at full size.
	MaxImageDimension = 4096

	// MaxImagePixels caps the decoded pixel count (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// ImageInfo holds image dimensions and the decoder that recognized the file.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// GetImageInfo reads the image header without decoding pixel data.
func GetImageInfo(path string) (*ImageInfo, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageInfo{Width: config.Width, Height: config.Height, Format: format}, nil
}

// constrainedSize returns the size an image of width x height is scaled to
// before thumbnailing, and whether scaling is needed at all.
func constrainedSize(width, height, maxDimension, maxPixels int) (int, int, bool) {
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return width, height, false
	}

	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetWidth*targetHeight > maxPixels {
		// Both sides shrink by the same factor, so the area shrinks by its square.
		scale := math.Sqrt(float64(maxPixels) / float64(targetWidth*targetHeight))
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	return targetWidth, targetHeight, true
}

// LoadImageConstrained decodes path with EXIF auto-orientation, scaling it
// down when it exceeds the given limits.
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, string, error) {
	format := "unknown"
	info, err := GetImageInfo(path)
	if err != nil {
		logging.Debug("Could not read image header for %s: %v", path, err)
	} else {
		format = info.Format
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("failed to open image: %w", err)
	}

	if info == nil {
		return img, format, nil
	}

	w, h, scale := constrainedSize(info.Width, info.Height, maxDimension, maxPixels)
	if !scale {
		return img, format, nil
	}

	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, info.Width, info.Height, w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), format, nil
}
