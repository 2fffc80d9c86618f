package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/mediatypes"
	"photo-tagger/internal/paths"
)

// ServeImage serves an original from the media directory.
func (h *Handlers) ServeImage(w http.ResponseWriter, r *http.Request) {
	h.serveUnder(w, r, h.mediaDir, "Image")
}

// ServeThumbnail serves a rendered thumbnail. Thumbnails mirror the
// relative path of their original.
func (h *Handlers) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	h.serveUnder(w, r, h.thumbnailDir, "Thumbnail")
}

func (h *Handlers) serveUnder(w http.ResponseWriter, r *http.Request, root, kind string) {
	rel := mux.Vars(r)["path"]
	if rel == "" || paths.IsHidden(rel) {
		http.NotFound(w, r)
		return
	}

	fullPath := paths.ToAbsolute(root, rel)
	if _, err := paths.ToRelativeKey(root, fullPath); err != nil {
		logging.Warn("%s: path outside root: %q", kind, rel)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	f, err := filesystem.OpenWithRetry(fullPath, h.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		logging.Error("%s: failed to open %s: %v", kind, fullPath, err)
		http.Error(w, "Failed to access file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Debug("%s: close %s: %v", kind, fullPath, err)
		}
	}()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	// Unknown types are left to content sniffing.
	if ext := mediatypes.Ext(fullPath); mediatypes.GetFileType(ext) != mediatypes.FileTypeOther {
		w.Header().Set("Content-Type", mediatypes.GetMimeType(ext))
	}

	http.ServeContent(w, r, filepath.Base(fullPath), info.ModTime(), f)
}
