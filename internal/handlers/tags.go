package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"photo-tagger/internal/database"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/tags"
)

// TagRequest is the body of tag edits on a single image.
type TagRequest struct {
	Tag  string   `json:"tag,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// GetAllTags returns every tag in use with its image count, most used first.
func (h *Handlers) GetAllTags(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.ListAllTags(r.Context())
	if err != nil {
		logging.Error("Failed to list tags: %v", err)
		writeJSONError(w, "Failed to get tags", http.StatusInternalServerError)
		return
	}

	if counts == nil {
		counts = []database.TagCount{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, counts)
}

// GetImage returns one image with its tags.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	img, ok := h.lookupImage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, img)
}

// GetImageTags returns the tags of one image.
func (h *Handlers) GetImageTags(w http.ResponseWriter, r *http.Request) {
	img, ok := h.lookupImage(w, r)
	if !ok {
		return
	}

	imageTags := img.Tags
	if imageTags == nil {
		imageTags = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, imageTags)
}

// AddImageTags attaches {"tags": [...]} to an image. Tags are normalized;
// duplicates and tags the image already has are ignored.
func (h *Handlers) AddImageTags(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(r)
	if !ok {
		writeJSONError(w, "Invalid image id", http.StatusBadRequest)
		return
	}

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tags == nil {
		writeJSONError(w, "Tags must be an array", http.StatusBadRequest)
		return
	}

	added, err := h.db.AddTags(r.Context(), id, req.Tags)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Image not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to add tags to image %d: %v", id, err)
		writeJSONError(w, "Failed to add tags", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"added": added})
}

// RemoveImageTag detaches {"tag": "..."} (or ?tag=) from an image. The tag
// is normalized the same way AddImageTags normalizes.
func (h *Handlers) RemoveImageTag(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(r)
	if !ok {
		writeJSONError(w, "Invalid image id", http.StatusBadRequest)
		return
	}

	tag := r.URL.Query().Get("tag")
	if tag == "" && r.ContentLength != 0 {
		var req TagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		tag = req.Tag
	}
	if tag == "" {
		writeJSONError(w, "Tag must be provided", http.StatusBadRequest)
		return
	}

	if _, ok := h.lookupImage(w, r); !ok {
		return
	}

	// Stored tags are canonical, so "Beach Day" removes "beach-day".
	if err := h.db.RemoveTag(r.Context(), id, tags.Normalize(tag)); err != nil {
		logging.Error("Failed to remove tag from image %d: %v", id, err)
		writeJSONError(w, "Failed to remove tag", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, "ok")
}

// lookupImage resolves the {id} route variable, writing 400 or 404 when
// it does not name an image.
func (h *Handlers) lookupImage(w http.ResponseWriter, r *http.Request) (*database.Image, bool) {
	id, ok := imageID(r)
	if !ok {
		writeJSONError(w, "Invalid image id", http.StatusBadRequest)
		return nil, false
	}

	img, err := h.db.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Image not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logging.Error("Failed to look up image %d: %v", id, err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return nil, false
	}
	return img, true
}
