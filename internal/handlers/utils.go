package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-tagger/internal/database"
	"photo-tagger/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are logged; the status line has already been sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// writeImages writes a result set, never null.
func writeImages(w http.ResponseWriter, images []database.Image) {
	if images == nil {
		images = []database.Image{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, images)
}

// imageID reads the {id} route variable.
func imageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
