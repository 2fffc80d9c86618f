package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the type of a media file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ImageExtensions lists image extensions. The value reports whether the
// thumbnail renderer can decode the format.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": false,
	".heif": false,
	".svg":  false,
}

// VideoExtensions lists video extensions. Videos are indexed but never rendered.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
	".3gp":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".3gp":  "video/3gpp",
}

// Ext returns the lowercase extension of path, including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// GetFileType returns the FileType for a lowercase extension such as ".jpg".
func GetFileType(ext string) FileType {
	if _, ok := ImageExtensions[ext]; ok {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a lowercase extension, or
// "application/octet-stream" when unknown.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsRenderable reports whether a thumbnail can be produced for path.
func IsRenderable(path string) bool {
	return ImageExtensions[Ext(path)]
}
