package stability

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testDelay = 10 * time.Millisecond

// fakeSizes replays a sequence of sizes per path; the last value repeats.
type fakeSizes struct {
	mu    sync.Mutex
	seq   map[string][]int64
	errs  map[string]error
	calls map[string]int
}

func newFakeSizes() *fakeSizes {
	return &fakeSizes{
		seq:   make(map[string][]int64),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeSizes) set(path string, sizes ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[path] = sizes
	f.calls[path] = 0
}

func (f *fakeSizes) fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[path] = err
}

func (f *fakeSizes) size(path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.errs[path]; err != nil {
		f.calls[path]++
		return 0, err
	}
	seq := f.seq[path]
	if len(seq) == 0 {
		return 0, os.ErrNotExist
	}
	i := f.calls[path]
	f.calls[path]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

func (f *fakeSizes) checks(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) onStable(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func newTestDetector(sizes *fakeSizes, rec *recorder) *Detector {
	d := New(testDelay, rec.onStable)
	d.size = sizes.size
	return d
}

func waitStable(t *testing.T, rec *recorder, timeout time.Duration) string {
	t.Helper()
	select {
	case p := <-rec.ch:
		return p
	case <-time.After(timeout):
		t.Fatal("timed out waiting for stable callback")
		return ""
	}
}

func TestGrowingFileReportedOnce(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	path := filepath.Clean("/media/IMG_20240128_142530.jpg")
	sizes.set(path, 100, 200, 300, 300)

	d.Observe(path)

	if got := waitStable(t, rec, time.Second); got != path {
		t.Errorf("stable path = %q, want %q", got, path)
	}

	// no second callback
	time.Sleep(5 * testDelay)
	if rec.count() != 1 {
		t.Errorf("callbacks = %d, want 1", rec.count())
	}
	if sizes.checks(path) != 4 {
		t.Errorf("size checks = %d, want 4", sizes.checks(path))
	}
	if d.IsPending(path) {
		t.Error("stable file should no longer be pending")
	}
}

func TestZeroSizeKeepsWaiting(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	sizes.set("/media/empty.jpg", 0)
	d.Observe("/media/empty.jpg")

	time.Sleep(6 * testDelay)
	if rec.count() != 0 {
		t.Fatal("empty file must not be reported stable")
	}
	if !d.IsPending("/media/empty.jpg") {
		t.Fatal("empty file should still be pending")
	}
	if sizes.checks("/media/empty.jpg") < 2 {
		t.Errorf("empty file should be re-polled, got %d checks", sizes.checks("/media/empty.jpg"))
	}

	sizes.set("/media/empty.jpg", 42)
	waitStable(t, rec, time.Second)
}

func TestShrinkingFileReschedules(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	sizes.set("/media/a.jpg", 500, 100, 100)
	d.Observe("/media/a.jpg")

	waitStable(t, rec, time.Second)
	if sizes.checks("/media/a.jpg") != 3 {
		t.Errorf("size checks = %d, want 3", sizes.checks("/media/a.jpg"))
	}
}

func TestStatErrorAbandons(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	sizes.fail("/media/gone.jpg", errors.New("no such file"))
	d.Observe("/media/gone.jpg")

	deadline := time.Now().Add(time.Second)
	for d.IsPending("/media/gone.jpg") && time.Now().Before(deadline) {
		time.Sleep(testDelay)
	}

	if d.IsPending("/media/gone.jpg") {
		t.Fatal("entry should be abandoned after a stat error")
	}
	time.Sleep(3 * testDelay)
	if rec.count() != 0 {
		t.Error("abandoned file must not be reported stable")
	}
	if n := sizes.checks("/media/gone.jpg"); n != 1 {
		t.Errorf("size checks = %d, want 1; abandoned entries are not retried", n)
	}
}

func TestReObserveRestartsWait(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := New(200*time.Millisecond, rec.onStable)
	d.size = sizes.size
	defer d.Stop()

	sizes.set("/media/a.jpg", 10)

	d.Observe("/media/a.jpg")
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		d.Observe("/media/a.jpg")
	}

	// repeated observes within the delay never let a check fire
	if sizes.checks("/media/a.jpg") != 0 {
		t.Errorf("size checks = %d, want 0 while events keep arriving", sizes.checks("/media/a.jpg"))
	}
	if d.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", d.Pending())
	}

	waitStable(t, rec, 2*time.Second)
	time.Sleep(300 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("callbacks = %d, want 1", rec.count())
	}

	// An event after a completed check forgets the size seen so far, so a
	// same-size rewrite needs two further checks before it is stable.
	sizes.set("/media/b.jpg", 10)
	d.Observe("/media/b.jpg")

	deadline := time.Now().Add(2 * time.Second)
	for sizes.checks("/media/b.jpg") < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sizes.checks("/media/b.jpg") < 1 {
		t.Fatal("first size check never ran")
	}

	d.Observe("/media/b.jpg")
	before := sizes.checks("/media/b.jpg")

	waitStable(t, rec, 2*time.Second)
	if got := sizes.checks("/media/b.jpg") - before; got != 2 {
		t.Errorf("size checks after re-observe = %d, want 2", got)
	}
}

func TestConcurrentObserveSinglePending(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	sizes.set("/media/a.jpg", 7)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Observe("/media/./a.jpg")
		}()
	}
	wg.Wait()

	waitStable(t, rec, time.Second)
	time.Sleep(5 * testDelay)
	if rec.count() != 1 {
		t.Errorf("callbacks = %d, want 1", rec.count())
	}
}

func TestCancel(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)
	defer d.Stop()

	sizes.set("/media/a.jpg", 10)
	d.Observe("/media/a.jpg")

	if !d.Cancel("/media/a.jpg") {
		t.Error("Cancel should report a pending path")
	}
	if d.Cancel("/media/a.jpg") {
		t.Error("second Cancel should report nothing pending")
	}

	time.Sleep(5 * testDelay)
	if rec.count() != 0 {
		t.Error("cancelled path must not be reported")
	}
}

func TestCancelUnder(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := New(time.Hour, rec.onStable)
	d.size = sizes.size
	defer d.Stop()

	for _, p := range []string{"/media/trip/a.jpg", "/media/trip/day1/b.jpg", "/media/trip2/c.jpg", "/media/d.jpg"} {
		d.Observe(p)
	}

	if n := d.CancelUnder("/media/trip"); n != 2 {
		t.Errorf("CancelUnder = %d, want 2", n)
	}
	if d.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", d.Pending())
	}
	if !d.IsPending("/media/trip2/c.jpg") {
		t.Error("sibling directory with shared prefix must stay pending")
	}
}

func TestStop(t *testing.T) {
	sizes := newFakeSizes()
	rec := newRecorder()
	d := newTestDetector(sizes, rec)

	sizes.set("/media/a.jpg", 10)
	d.Observe("/media/a.jpg")
	d.Stop()

	if d.Pending() != 0 {
		t.Errorf("Pending after Stop = %d, want 0", d.Pending())
	}

	d.Observe("/media/b.jpg")
	if d.Pending() != 0 {
		t.Error("Observe after Stop should be ignored")
	}

	time.Sleep(5 * testDelay)
	if rec.count() != 0 {
		t.Error("no callbacks expected after Stop")
	}
}

func TestDefaultDelay(t *testing.T) {
	if d := New(0, nil); d.Delay() != DefaultDelay {
		t.Errorf("Delay = %v, want %v", d.Delay(), DefaultDelay)
	}
}

func TestRealFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem timing test in short mode")
	}

	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	d := New(20*time.Millisecond, rec.onStable)
	defer d.Stop()

	d.Observe(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(" and the rest")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if got := waitStable(t, rec, 2*time.Second); got != path {
		t.Errorf("stable path = %q, want %q", got, path)
	}
}
