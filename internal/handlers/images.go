package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/query"
)

const dateOnly = "2006-01-02"

// FilterImages returns images matching includeTags, excludeTags,
// requiredTags, selectedMonths and selectedYears, all comma-separated.
func (h *Handlers) FilterImages(w http.ResponseWriter, r *http.Request) {
	filter := query.ParseFilter(r.URL.Query())

	for _, m := range filter.Months {
		if m < 1 || m > 12 {
			writeJSONError(w, "Months must be numbers between 1 and 12", http.StatusBadRequest)
			return
		}
	}
	for _, y := range filter.Years {
		if _, err := strconv.Atoi(y); err != nil || len(y) != 4 {
			writeJSONError(w, "Years must be 4-digit numbers", http.StatusBadRequest)
			return
		}
	}

	images, err := h.db.Query(r.Context(), filter.NormalizeTags())
	if err != nil {
		logging.Error("Error filtering images: %v", err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeImages(w, images)
}

// ImagesByDateRange returns images taken between startDate and endDate.
// Both accept RFC 3339 or YYYY-MM-DD; a date-only endDate covers the whole day.
func (h *Handlers) ImagesByDateRange(w http.ResponseWriter, r *http.Request) {
	start, ok := parseRangeBound(r.URL.Query().Get("startDate"), false)
	if !ok {
		writeJSONError(w, "startDate must be RFC 3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, ok := parseRangeBound(r.URL.Query().Get("endDate"), true)
	if !ok {
		writeJSONError(w, "endDate must be RFC 3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		writeJSONError(w, "endDate is before startDate", http.StatusBadRequest)
		return
	}

	images, err := h.db.ListByDateRange(r.Context(), start, end)
	if err != nil {
		logging.Error("Error listing images by date range: %v", err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeImages(w, images)
}

func parseRangeBound(value string, endOfDay bool) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(dateOnly, value)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, true
}

// ImagesByMonth returns images taken in the given month of any year.
func (h *Handlers) ImagesByMonth(w http.ResponseWriter, r *http.Request) {
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeJSONError(w, "Invalid month. Please provide a number between 1 and 12.", http.StatusBadRequest)
		return
	}

	images, err := h.db.Query(r.Context(), query.Filter{Months: []int{month}})
	if err != nil {
		logging.Error("Error listing images by month: %v", err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeImages(w, images)
}

// ImagesByTags returns images carrying any of the tags. Tags may be
// repeated (?tags=a&tags=b) or comma-separated.
func (h *Handlers) ImagesByTags(w http.ResponseWriter, r *http.Request) {
	var tags []string
	for _, v := range r.URL.Query()["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	if len(tags) == 0 {
		writeJSONError(w, "At least one tag is required", http.StatusBadRequest)
		return
	}

	images, err := h.db.Query(r.Context(), query.Filter{IncludeTags: tags}.NormalizeTags())
	if err != nil {
		logging.Error("Error listing images by tags: %v", err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeImages(w, images)
}

// UntaggedImages returns images that carry no tag.
func (h *Handlers) UntaggedImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.db.ListUntagged(r.Context())
	if err != nil {
		logging.Error("Error fetching images with no tags: %v", err)
		writeJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeImages(w, images)
}
