package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string) *atomic.Int32 {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var runs atomic.Int32
	go Watch(ctx, root, 50*time.Millisecond, logger, func(context.Context) {
		runs.Add(1)
	})
	time.Sleep(100 * time.Millisecond)
	return &runs
}

func TestWatch_ChangeTriggersRun(t *testing.T) {
	root := t.TempDir()
	runs := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("- new"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "write did not trigger a conversion")
}

func TestWatch_BurstIsDebounced(t *testing.T) {
	root := t.TempDir()
	runs := startWatch(t, root)

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(filepath.Join(root, "burst.md"), []byte{byte('a' + i)}, 0o644)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "burst did not trigger a conversion")
	time.Sleep(200 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	runs := startWatch(t, root)

	sub := filepath.Join(root, "pages")
	_ = os.MkdirAll(sub, 0o755)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "new directory did not trigger a conversion")

	before := runs.Load()
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("- deep"), 0o644)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() > before
	}, "file in new directory did not trigger a conversion")
}

func TestWatch_HiddenAndInternalIgnored(t *testing.T) {
	root := t.TempDir()
	_ = os.MkdirAll(filepath.Join(root, "logseq"), 0o755)
	runs := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "logseq", "config.edn"), []byte("{}"), 0o644)
	_ = os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}

func TestRelevant(t *testing.T) {
	root := filepath.FromSlash("/vault")
	cases := map[string]bool{
		"/vault/pages/a.md":      true,
		"/vault/assets/pic.png":  true,
		"/vault/.git/HEAD":       false,
		"/vault/logseq/bak/a.md": false,
		"/vault/pages/.tmp-file": false,
		"/vault/pages/a.md~":     false,
		"/elsewhere/pages/a.md":  false,
	}
	for p, want := range cases {
		if got := relevant(root, filepath.FromSlash(p)); got != want {
			t.Errorf("relevant(%q) = %v, want %v", p, got, want)
		}
	}
}
