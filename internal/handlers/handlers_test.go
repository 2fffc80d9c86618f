package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"photo-tagger/internal/database"
	"photo-tagger/internal/dates"
	"photo-tagger/internal/ingest"
	"photo-tagger/internal/media"
	"photo-tagger/internal/startup"
)

type testEnv struct {
	h        *Handlers
	db       *database.Database
	coord    *ingest.Coordinator
	router   *mux.Router
	mediaDir string
	thumbDir string
}

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	mediaDir := filepath.Join(root, "media")
	thumbDir := filepath.Join(root, "thumbnails")
	for _, dir := range []string{mediaDir, thumbDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	db, err := database.New(context.Background(), filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})

	coord := ingest.New(db, media.NewThumbnailGenerator(80), dates.NewExtractor(false), ingest.Config{
		MediaDir:       mediaDir,
		ThumbnailDir:   thumbDir,
		StabilityDelay: 20 * time.Millisecond,
		Workers:        2,
	})
	t.Cleanup(coord.Stop)

	config := &startup.Config{
		MediaDir:     mediaDir,
		ThumbnailDir: thumbDir,
	}

	h := New(db, coord, config)
	return &testEnv{
		h:        h,
		db:       db,
		coord:    coord,
		router:   NewRouter(h, RouterOptions{MetricsEnabled: true, ServeImages: true, ServeThumbs: true}),
		mediaDir: mediaDir,
		thumbDir: thumbDir,
	}
}

func (e *testEnv) seed(t *testing.T, rel string, taken time.Time, tags ...string) int64 {
	t.Helper()

	img, err := e.db.Insert(context.Background(), rel, taken)
	if err != nil {
		t.Fatalf("Insert(%s) failed: %v", rel, err)
	}
	if len(tags) > 0 {
		if _, err := e.db.AddTags(context.Background(), img.ID, tags); err != nil {
			t.Fatalf("AddTags(%s) failed: %v", rel, err)
		}
	}
	return img.ID
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeImages(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()

	var images []database.Image
	if err := json.Unmarshal(rec.Body.Bytes(), &images); err != nil {
		t.Fatalf("failed to decode images %q: %v", rec.Body.String(), err)
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.RelativePath
	}
	return out
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// seedLibrary creates:
//
//	a.jpg  2023-01-05  trip, beach
//	b.jpg  2024-01-10  trip
//	c.jpg  2024-07-01  (untagged)
func seedLibrary(t *testing.T, e *testEnv) (a, b, c int64) {
	t.Helper()
	a = e.seed(t, "trip/a.jpg", date(2023, time.January, 5), "trip", "beach")
	b = e.seed(t, "trip/b.jpg", date(2024, time.January, 10), "trip")
	c = e.seed(t, "c.jpg", date(2024, time.July, 1))
	return a, b, c
}

func TestFilterImages(t *testing.T) {
	e := setupHandlers(t)
	seedLibrary(t, e)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"no constraints", "", []string{"trip/a.jpg", "trip/b.jpg", "c.jpg"}},
		{"include", "includeTags=beach", []string{"trip/a.jpg"}},
		{"include normalized", "includeTags=Beach", []string{"trip/a.jpg"}},
		{"include and exclude", "includeTags=trip&excludeTags=beach", []string{"trip/b.jpg"}},
		{"required all", "requiredTags=trip,beach", []string{"trip/a.jpg"}},
		{"exclude only", "excludeTags=trip", []string{"c.jpg"}},
		{"month", "selectedMonths=1", []string{"trip/a.jpg", "trip/b.jpg"}},
		{"year", "selectedYears=2024", []string{"trip/b.jpg", "c.jpg"}},
		{"month and year", "selectedMonths=1&selectedYears=2024", []string{"trip/b.jpg"}},
		{"unknown tag", "includeTags=snow", []string{}},
		{"include without canonical form", "includeTags=%21%21%21", []string{}},
		{"required with tag without canonical form", "requiredTags=trip,%40%40", []string{}},
		{"exclude without canonical form", "excludeTags=%40%40", []string{"trip/a.jpg", "trip/b.jpg", "c.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/images/filter?"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decodeImages(t, rec); !equalPaths(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterImagesRejectsInvalidMonthsAndYears(t *testing.T) {
	e := setupHandlers(t)

	for _, query := range []string{"selectedMonths=13", "selectedMonths=0", "selectedMonths=jan", "selectedYears=24"} {
		rec := e.do(t, http.MethodGet, "/api/images/filter?"+query, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestImagesByMonth(t *testing.T) {
	e := setupHandlers(t)
	seedLibrary(t, e)

	rec := e.do(t, http.MethodGet, "/api/images/month?month=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decodeImages(t, rec); !equalPaths(got, []string{"c.jpg"}) {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{"", "0", "13", "july"} {
		rec := e.do(t, http.MethodGet, "/api/images/month?month="+bad, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("month=%q: expected 400, got %d", bad, rec.Code)
		}
	}
}

func TestImagesByDateRange(t *testing.T) {
	e := setupHandlers(t)
	seedLibrary(t, e)

	tests := []struct {
		name  string
		query string
		code  int
		want  []string
	}{
		{"whole 2024", "startDate=2024-01-01&endDate=2024-12-31", http.StatusOK, []string{"trip/b.jpg", "c.jpg"}},
		{"end date inclusive", "startDate=2024-07-01&endDate=2024-07-01", http.StatusOK, []string{"c.jpg"}},
		{"rfc3339", "startDate=2023-01-05T00:00:00Z&endDate=2023-01-05T12:00:00Z", http.StatusOK, []string{"trip/a.jpg"}},
		{"missing start", "endDate=2024-12-31", http.StatusBadRequest, nil},
		{"bad end", "startDate=2024-01-01&endDate=tomorrow", http.StatusBadRequest, nil},
		{"reversed", "startDate=2024-12-31&endDate=2024-01-01", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/images/date-range?"+tt.query, nil)
			if rec.Code != tt.code {
				t.Fatalf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if tt.code == http.StatusOK {
				if got := decodeImages(t, rec); !equalPaths(got, tt.want) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestImagesByTags(t *testing.T) {
	e := setupHandlers(t)
	seedLibrary(t, e)

	rec := e.do(t, http.MethodGet, "/api/images/tags?tags=beach&tags=trip", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decodeImages(t, rec); !equalPaths(got, []string{"trip/a.jpg", "trip/b.jpg"}) {
		t.Errorf("got %v", got)
	}

	rec = e.do(t, http.MethodGet, "/api/images/tags?tags=beach,snow", nil)
	if got := decodeImages(t, rec); !equalPaths(got, []string{"trip/a.jpg"}) {
		t.Errorf("comma-separated: got %v", got)
	}

	rec = e.do(t, http.MethodGet, "/api/images/tags", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without tags, got %d", rec.Code)
	}
}

func TestUntaggedImages(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, http.MethodGet, "/api/images/no-tags", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Errorf("Expected empty array for an empty index, got %s", body)
	}

	seedLibrary(t, e)
	rec = e.do(t, http.MethodGet, "/api/images/no-tags", nil)
	if got := decodeImages(t, rec); !equalPaths(got, []string{"c.jpg"}) {
		t.Errorf("got %v", got)
	}
}

func TestImageTagsLifecycle(t *testing.T) {
	e := setupHandlers(t)
	_, b, _ := seedLibrary(t, e)
	base := fmt.Sprintf("/api/images/%d", b)

	rec := e.do(t, http.MethodGet, base+"/tags", nil)
	if rec.Code != http.StatusOK || string(bytes.TrimSpace(rec.Body.Bytes())) != `["trip"]` {
		t.Fatalf("GET tags: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, base+"/tags", TagRequest{Tags: []string{"Beach Day", "trip", "beach day"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST tags: %d %s", rec.Code, rec.Body.String())
	}
	var added map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if added["added"] != 1 {
		t.Errorf("Expected 1 new tag, got %d", added["added"])
	}

	rec = e.do(t, http.MethodGet, base+"/tags", nil)
	var tags []string
	if err := json.Unmarshal(rec.Body.Bytes(), &tags); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !equalPaths(tags, []string{"beach-day", "trip"}) {
		t.Errorf("Expected [beach-day trip], got %v", tags)
	}

	rec = e.do(t, http.MethodDelete, base+"/tags", TagRequest{Tag: "Beach Day"})
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE tag: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodDelete, base+"/tags?tag=trip", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE tag by query: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, base, nil)
	var img database.Image
	if err := json.Unmarshal(rec.Body.Bytes(), &img); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.RelativePath != "trip/b.jpg" || len(img.Tags) != 0 {
		t.Errorf("Unexpected image after removals: %+v", img)
	}
}

func TestImageTagsErrors(t *testing.T) {
	e := setupHandlers(t)
	_, b, _ := seedLibrary(t, e)
	base := fmt.Sprintf("/api/images/%d/tags", b)

	tests := []struct {
		name   string
		method string
		target string
		body   interface{}
		code   int
	}{
		{"unknown image get", http.MethodGet, "/api/images/9999/tags", nil, http.StatusNotFound},
		{"unknown image post", http.MethodPost, "/api/images/9999/tags", TagRequest{Tags: []string{"x"}}, http.StatusNotFound},
		{"unknown image delete", http.MethodDelete, "/api/images/9999/tags?tag=x", nil, http.StatusNotFound},
		{"zero id", http.MethodGet, "/api/images/0/tags", nil, http.StatusBadRequest},
		{"non-numeric id", http.MethodGet, "/api/images/abc/tags", nil, http.StatusNotFound},
		{"post without array", http.MethodPost, base, map[string]string{"tag": "x"}, http.StatusBadRequest},
		{"delete without tag", http.MethodDelete, base, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, base, bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestGetAllTags(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, http.MethodGet, "/api/tags", nil)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Errorf("Expected [] for an empty index, got %s", body)
	}

	seedLibrary(t, e)
	rec = e.do(t, http.MethodGet, "/api/tags", nil)
	var tags []database.TagCount
	if err := json.Unmarshal(rec.Body.Bytes(), &tags); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tags) != 2 || tags[0].Tag != "trip" || tags[0].Count != 2 || tags[1].Tag != "beach" {
		t.Errorf("Unexpected tag counts: %+v", tags)
	}
}

func TestTriggerReconcile(t *testing.T) {
	e := setupHandlers(t)
	if err := os.WriteFile(filepath.Join(e.mediaDir, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/api/reconcile", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if img, err := e.db.FindByPath(context.Background(), "new.txt"); err == nil && img != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Triggered reconciliation did not index new.txt")
}

func TestTriggerReconcileAfterStop(t *testing.T) {
	e := setupHandlers(t)
	e.coord.Stop()

	rec := e.do(t, http.MethodPost, "/api/reconcile", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after stop, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before reconciliation: expected 503, got %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health before reconciliation: expected 503, got %d", rec.Code)
	}

	seedLibrary(t, e)
	if _, err := e.coord.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	rec = e.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != statusHealthy || !health.Ready {
		t.Errorf("Unexpected health: %+v", health)
	}
	if health.TotalImages != 3 || health.TotalTags != 2 {
		t.Errorf("Expected 3 images and 2 tags, got %d and %d", health.TotalImages, health.TotalTags)
	}
	if health.LastReconcile == "" {
		t.Error("Expected lastReconcile to be set")
	}

	rec = e.do(t, http.MethodHead, "/livez", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD livez: %d with %d bytes", rec.Code, rec.Body.Len())
	}
	rec = e.do(t, http.MethodGet, "/livez", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET livez: %d", rec.Code)
	}
}

func TestVersionAndMetrics(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, http.MethodGet, "/api/version", nil)
	var info startup.BuildInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != startup.Version {
		t.Errorf("Expected version %s, got %s", startup.Version, info.Version)
	}

	// Generate at least one API request so HTTP metrics exist.
	e.do(t, http.MethodGet, "/api/tags", nil)

	rec = e.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("photo_tagger_http_requests_total")) {
		t.Error("Expected HTTP request metrics in /metrics output")
	}
}

func TestServeStaticFiles(t *testing.T) {
	e := setupHandlers(t)

	if err := os.MkdirAll(filepath.Join(e.mediaDir, "trip"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.mediaDir, "trip", "a.jpg"), []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(e.thumbDir, "trip"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.thumbDir, "trip", "a.jpg"), []byte("thumb"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.mediaDir, ".secret"), []byte("hidden"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		target string
		code   int
		body   string
	}{
		{"/images/trip/a.jpg", http.StatusOK, "original"},
		{"/thumbnails/trip/a.jpg", http.StatusOK, "thumb"},
		{"/images/trip/missing.jpg", http.StatusNotFound, ""},
		{"/images/trip", http.StatusNotFound, ""},
		{"/images/.secret", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rec := e.do(t, http.MethodGet, tt.target, nil)
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, rec.Code)
			continue
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s: expected body %q, got %q", tt.target, tt.body, rec.Body.String())
		}
		if tt.code == http.StatusOK {
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("%s: expected Content-Type image/jpeg, got %q", tt.target, ct)
			}
		}
	}
}

func TestServeRejectsTraversal(t *testing.T) {
	e := setupHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/images/x", nil)
	req = mux.SetURLVars(req, map[string]string{"path": "../test.db"})
	rec := httptest.NewRecorder()
	e.h.ServeImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rec.Code)
	}
}
