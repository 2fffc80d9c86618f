package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"photo-tagger/internal/query"
)

func setupTestDB(t testing.TB) (*Database, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return db, dbPath
}

func mustInsert(t *testing.T, db *Database, rel string, date time.Time, tagNames ...string) *Image {
	t.Helper()
	ctx := context.Background()

	img, err := db.Insert(ctx, rel, date)
	if err != nil {
		t.Fatalf("Insert(%q) failed: %v", rel, err)
	}
	if len(tagNames) > 0 {
		if _, err := db.AddTags(ctx, img.ID, tagNames); err != nil {
			t.Fatalf("AddTags(%q) failed: %v", rel, err)
		}
	}
	return img
}

func ids(images []Image) []int64 {
	out := make([]int64, len(images))
	for i, img := range images {
		out[i] = img.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
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

func TestNew_CreatesSchema(t *testing.T) {
	db, _ := setupTestDB(t)

	for _, table := range []string{"images", "tags", "metadata"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	var fk int
	if err := db.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Insert(ctx, "a.jpg", date(2024, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	n, err := db.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d after reopen, want 1", n)
	}
}

func TestMigration_AddsDateAdded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = raw.Exec(`
		CREATE TABLE images (id INTEGER PRIMARY KEY AUTOINCREMENT, relativePath TEXT UNIQUE NOT NULL, dateTaken TEXT NOT NULL);
		CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, imageId INTEGER NOT NULL, tag TEXT NOT NULL, UNIQUE(imageId, tag));
		INSERT INTO images (relativePath, dateTaken) VALUES ('old.jpg', '2020-05-01T10:00:00.000Z');
		INSERT INTO tags (imageId, tag) VALUES (1, 'legacy');
	`)
	if err != nil {
		t.Fatalf("failed to create legacy schema: %v", err)
	}
	raw.Close()

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New on legacy database failed: %v", err)
	}
	defer db.Close()

	var missing int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM tags WHERE dateAdded IS NULL").Scan(&missing); err != nil {
		t.Fatalf("dateAdded column not queryable: %v", err)
	}
	if missing != 0 {
		t.Errorf("%d tags left without dateAdded", missing)
	}

	tags, err := db.ListTags(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0] != "legacy" {
		t.Errorf("ListTags = %v, want [legacy]", tags)
	}
}

func TestInsertAndFindByPath(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	taken := time.Date(2024, 1, 28, 14, 25, 30, 0, time.UTC)
	img, err := db.Insert(ctx, "IMG_20240128_142530.jpg", taken)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if img.ID == 0 {
		t.Error("Insert should assign an id")
	}

	found, err := db.FindByPath(ctx, "IMG_20240128_142530.jpg")
	if err != nil {
		t.Fatalf("FindByPath failed: %v", err)
	}
	if found == nil {
		t.Fatal("FindByPath returned nil for an indexed path")
	}
	if found.ID != img.ID || !found.DateTaken.Equal(taken) {
		t.Errorf("FindByPath = %+v, want id %d date %v", found, img.ID, taken)
	}

	var stored string
	if err := db.db.QueryRow("SELECT dateTaken FROM images WHERE id = ?", img.ID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored != "2024-01-28T14:25:30.000Z" {
		t.Errorf("stored dateTaken = %q, want 2024-01-28T14:25:30.000Z", stored)
	}

	missing, err := db.FindByPath(ctx, "nope.jpg")
	if err != nil {
		t.Fatalf("FindByPath(absent) returned error: %v", err)
	}
	if missing != nil {
		t.Errorf("FindByPath(absent) = %+v, want nil", missing)
	}
}

func TestInsert_StoresUTC(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC+2", 2*60*60)
	img, err := db.Insert(ctx, "a.jpg", time.Date(2024, 3, 1, 1, 0, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}

	found, err := db.GetByID(ctx, img.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	if !found.DateTaken.Equal(want) || found.DateTaken.Location() != time.UTC {
		t.Errorf("DateTaken = %v, want %v", found.DateTaken, want)
	}
}

func TestInsert_Duplicate(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, "photos/a.jpg", date(2024, 1, 1))

	_, err := db.Insert(ctx, "photos/a.jpg", date(2024, 2, 2))
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("expected ErrDuplicatePath, got %v", err)
	}

	n, _ := db.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestInsert_ConcurrentSamePath(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	const goroutines = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
		others     []error
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Insert(ctx, "race.jpg", date(2024, 1, 1))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicatePath):
				duplicates++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if duplicates != goroutines-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, goroutines-1)
	}
	if len(others) > 0 {
		t.Errorf("unexpected errors: %v", others)
	}
}

func TestDelete_CascadesTags(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	img := mustInsert(t, db, "trip/beach.jpg", date(2024, 1, 1), "trip", "beach")
	mustInsert(t, db, "other.jpg", date(2024, 1, 2), "beach")

	removed, err := db.Delete(ctx, "trip/beach.jpg")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Error("Delete should report the row existed")
	}

	var orphans int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM tags WHERE imageId = ?", img.ID).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d tag rows survived their image", orphans)
	}

	all, err := db.ListAllTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0] != (TagCount{Tag: "beach", Count: 1}) {
		t.Errorf("ListAllTags = %v, want [{beach 1}]", all)
	}

	removed, err = db.Delete(ctx, "trip/beach.jpg")
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if removed {
		t.Error("second Delete should be a no-op")
	}
}

func TestDeleteUnder(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, "trip/a.jpg", date(2024, 1, 1), "trip")
	mustInsert(t, db, "trip/day1/b.jpg", date(2024, 1, 2), "trip", "day1")
	mustInsert(t, db, "trip2/c.jpg", date(2024, 1, 3))
	mustInsert(t, db, "Trip/d.jpg", date(2024, 1, 4))
	mustInsert(t, db, "trip.jpg", date(2024, 1, 5))

	n, err := db.DeleteUnder(ctx, "trip")
	if err != nil {
		t.Fatalf("DeleteUnder failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteUnder removed %d, want 2", n)
	}

	paths, err := db.ListPaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Trip/d.jpg", "trip.jpg", "trip2/c.jpg"}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("remaining paths = %v, want %v", paths, want)
	}

	n, err = db.DeleteUnder(ctx, "")
	if err != nil || n != 0 {
		t.Errorf("DeleteUnder(\"\") = (%d, %v), want (0, nil)", n, err)
	}
}

func TestAddTags(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	img := mustInsert(t, db, "a.jpg", date(2024, 1, 1))

	added, err := db.AddTags(ctx, img.ID, []string{"  Beach Day!! ", "beach-day", "", "Sunset", "!!!"})
	if err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	added, err = db.AddTags(ctx, img.ID, []string{"sunset", "new"})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("re-adding existing tag: added = %d, want 1", added)
	}

	got, err := db.ListTags(ctx, img.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"beach-day", "new", "sunset"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListTags = %v, want %v", got, want)
	}
}

func TestAddTags_UnknownImage(t *testing.T) {
	db, _ := setupTestDB(t)

	_, err := db.AddTags(context.Background(), 999, []string{"x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddTags_NothingToAdd(t *testing.T) {
	db, _ := setupTestDB(t)

	added, err := db.AddTags(context.Background(), 999, []string{"", "  ", "!!"})
	if err != nil || added != 0 {
		t.Errorf("AddTags(empty) = (%d, %v), want (0, nil)", added, err)
	}
}

func TestRemoveTag(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	img := mustInsert(t, db, "a.jpg", date(2024, 1, 1), "beach", "sunset")

	if err := db.RemoveTag(ctx, img.ID, "beach"); err != nil {
		t.Fatalf("RemoveTag failed: %v", err)
	}
	if err := db.RemoveTag(ctx, img.ID, "beach"); err != nil {
		t.Fatalf("RemoveTag of absent tag failed: %v", err)
	}

	// Matching is exact; only the canonical form removes a tag.
	if err := db.RemoveTag(ctx, img.ID, "Sunset"); err != nil {
		t.Fatalf("RemoveTag failed: %v", err)
	}

	got, _ := db.ListTags(ctx, img.ID)
	if len(got) != 1 || got[0] != "sunset" {
		t.Errorf("ListTags = %v, want [sunset]", got)
	}
}

func TestListAllTags_Ordering(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, "1.jpg", date(2024, 1, 1), "beach", "zoo", "alpha")
	mustInsert(t, db, "2.jpg", date(2024, 1, 2), "beach", "zoo")
	mustInsert(t, db, "3.jpg", date(2024, 1, 3), "beach")

	got, err := db.ListAllTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []TagCount{{"beach", 3}, {"zoo", 2}, {"alpha", 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListAllTags = %v, want %v", got, want)
	}
}

func TestListUntagged(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	late := mustInsert(t, db, "late.jpg", date(2024, 6, 1))
	mustInsert(t, db, "tagged.jpg", date(2024, 1, 1), "x")
	early := mustInsert(t, db, "early.jpg", date(2023, 1, 1))

	got, err := db.ListUntagged(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{early.ID, late.ID}; !equalIDs(ids(got), want) {
		t.Errorf("ListUntagged ids = %v, want %v", ids(got), want)
	}
}

// Fixture: A{beach, sunset} Jan 2024, B{beach} Jul 2024, C{mountain} Jan 2023.
func setupFilterFixture(t *testing.T) (*Database, map[string]int64) {
	t.Helper()
	db, _ := setupTestDB(t)

	a := mustInsert(t, db, "a.jpg", date(2024, 1, 10), "beach", "sunset")
	b := mustInsert(t, db, "b.jpg", date(2024, 7, 4), "beach")
	c := mustInsert(t, db, "c.jpg", date(2023, 1, 20), "mountain")

	return db, map[string]int64{"A": a.ID, "B": b.ID, "C": c.ID}
}

func TestQuery_FilterSemantics(t *testing.T) {
	db, id := setupFilterFixture(t)

	tests := []struct {
		name   string
		filter query.Filter
		want   []string
	}{
		{name: "empty filter returns all by date", filter: query.Filter{}, want: []string{"C", "A", "B"}},
		{name: "include", filter: query.Filter{IncludeTags: []string{"beach"}}, want: []string{"A", "B"}},
		{name: "include is a union", filter: query.Filter{IncludeTags: []string{"sunset", "mountain"}}, want: []string{"C", "A"}},
		{name: "exclude", filter: query.Filter{ExcludeTags: []string{"sunset"}}, want: []string{"C", "B"}},
		{name: "required all", filter: query.Filter{RequiredTags: []string{"beach", "sunset"}}, want: []string{"A"}},
		{name: "include and exclude", filter: query.Filter{IncludeTags: []string{"beach"}, ExcludeTags: []string{"sunset"}}, want: []string{"B"}},
		{name: "months", filter: query.Filter{Months: []int{1}}, want: []string{"C", "A"}},
		{name: "years", filter: query.Filter{Years: []string{"2024"}}, want: []string{"A", "B"}},
		{name: "month and year", filter: query.Filter{Months: []int{1}, Years: []string{"2024"}}, want: []string{"A"}},
		{name: "invalid month matches nothing", filter: query.Filter{Months: []int{13}}, want: []string{}},
		{name: "invalid year matches nothing", filter: query.Filter{Years: []string{"24"}}, want: []string{}},
		{name: "unknown tag matches nothing", filter: query.Filter{IncludeTags: []string{"desert"}}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			want := make([]int64, len(tt.want))
			for i, k := range tt.want {
				want[i] = id[k]
			}
			if !equalIDs(ids(got), want) {
				t.Errorf("Query ids = %v, want %v (%v)", ids(got), want, tt.want)
			}
		})
	}
}

func TestQuery_TiesOrderedByID(t *testing.T) {
	db, _ := setupTestDB(t)
	same := date(2024, 5, 5)

	first := mustInsert(t, db, "z.jpg", same)
	second := mustInsert(t, db, "a.jpg", same)

	got, err := db.Query(context.Background(), query.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{first.ID, second.ID}; !equalIDs(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestListByDateRange(t *testing.T) {
	db, id := setupFilterFixture(t)

	got, err := db.ListByDateRange(context.Background(), date(2024, 1, 1), date(2024, 7, 4))
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{id["A"], id["B"]}; !equalIDs(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestGetByID(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	img := mustInsert(t, db, "photos/trip/beach.png", date(2024, 1, 1), "photos", "trip")

	got, err := db.GetByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RelativePath != "photos/trip/beach.png" {
		t.Errorf("RelativePath = %q", got.RelativePath)
	}
	if fmt.Sprint(got.Tags) != "[photos trip]" {
		t.Errorf("Tags = %v, want [photos trip]", got.Tags)
	}

	if _, err := db.GetByID(ctx, img.ID+100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStatsAndLastReconcile(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, "a.jpg", date(2024, 1, 1), "x", "y")
	mustInsert(t, db, "b.jpg", date(2024, 1, 2), "x")
	mustInsert(t, db, "c.jpg", date(2024, 1, 3))

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalImages != 3 || s.TotalTags != 2 || s.UntaggedImages != 1 {
		t.Errorf("Stats = %+v, want {3 2 1}", s)
	}

	last, err := db.LastReconcile(ctx)
	if err != nil || !last.IsZero() {
		t.Errorf("LastReconcile before any run = (%v, %v), want zero", last, err)
	}

	now := time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC)
	if err := db.SetLastReconcile(ctx, now); err != nil {
		t.Fatal(err)
	}
	last, err = db.LastReconcile(ctx)
	if err != nil || !last.Equal(now) {
		t.Errorf("LastReconcile = (%v, %v), want %v", last, err, now)
	}
}

func TestStoreError(t *testing.T) {
	db, _ := setupTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := db.Count(context.Background())
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %T: %v", err, err)
	}
	if storeErr.Op != "count_images" {
		t.Errorf("Op = %q, want count_images", storeErr.Op)
	}
}

func TestRecordQuery(t *testing.T) {
	done := observeQuery("test_operation")
	done(nil)
	recordQuery("test_operation", time.Now(), errors.New("boom"))
}
