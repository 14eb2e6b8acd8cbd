package confloader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(WithWatcherLogger(logger.Nop()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_WatchMissingDir(t *testing.T) {
	w := newTestWatcher(t)
	if err := w.Watch("/nonexistent/muxd/muxd.yaml"); err == nil {
		t.Fatal("Watch() expected error for nonexistent directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w := newTestWatcher(t)
	w.StartAsync()
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
}

func TestWatcher_FileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "muxd.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changed := make(chan string, 4)
	w.OnChange(func(p string) { changed <- p })
	w.StartAsync()

	// Several writes inside the debounce window collapse into one callback.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case p := <-changed:
		abs, _ := filepath.Abs(path)
		if p != abs {
			t.Errorf("callback path = %q, want %q", p, abs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change callback")
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "muxd.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	w.OnChange(func(string) { calls.Add(1) })
	w.StartAsync()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("callback fired %d times for an unrelated file", n)
	}
}
