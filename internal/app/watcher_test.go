package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hellmfmt/internal/config"
	"hellmfmt/internal/formatter"
)

func formatterRequest(path string) formatter.FormatRequest {
	return formatter.FormatRequest{FilePath: path}
}

func newWatchApp(t *testing.T, stub string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Formatter.Executable = writeStub(t, stub)
	a, err := NewApp(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

// touch меняет содержимое и сдвигает mtime, чтобы изменение было видно
// даже на файловых системах с грубым разрешением времени.
func touch(t *testing.T, path, content string, shift time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts := time.Now().Add(shift)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherRewritesChangedFiles(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	t.Setenv("HELLM_RUNS", runs)
	a := newWatchApp(t, `echo run >> "$HELLM_RUNS"; tr 'a-z' 'A-Z' < "$2"`)
	dir := t.TempDir()
	src := filepath.Join(dir, "main.hl")
	other := filepath.Join(dir, "notes.txt")
	touch(t, src, "x = 1\n", -time.Hour)
	touch(t, other, "keep me\n", -time.Hour)

	w := NewWatcher(a.LocalService("watch"), a.Registry, []string{dir}, time.Second, nil)
	ctx := context.Background()
	if err := w.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if data, _ := os.ReadFile(src); string(data) != "x = 1\n" {
		t.Fatalf("first scan must only record state, got %q", data)
	}

	touch(t, src, "y = 2\n", 0)
	touch(t, other, "changed\n", 0)
	if err := w.Scan(ctx); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if data, _ := os.ReadFile(src); string(data) != "Y = 2\n" {
		t.Fatalf("expected formatted file, got %q", data)
	}
	if data, _ := os.ReadFile(other); string(data) != "changed\n" {
		t.Fatalf("unhandled file must be untouched, got %q", data)
	}
	info, err := os.Stat(src)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode not preserved: %v", info.Mode())
	}

	// Своя запись не вызывает повторного форматирования.
	if err := w.Scan(ctx); err != nil {
		t.Fatalf("third scan: %v", err)
	}
	if data, _ := os.ReadFile(runs); string(data) != "run\n" {
		t.Fatalf("expected exactly one formatter run, got %q", data)
	}
}

func TestWatcherLeavesFileOnFailure(t *testing.T) {
	a := newWatchApp(t, `echo "syntax error" >&2; exit 1`)
	dir := t.TempDir()
	src := filepath.Join(dir, "main.hl")
	touch(t, src, "x = \n", -time.Hour)

	w := NewWatcher(a.LocalService("watch"), a.Registry, []string{dir}, time.Second, nil)
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	touch(t, src, "x = (\n", 0)
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("scan must not fail on formatter errors: %v", err)
	}
	if data, _ := os.ReadFile(src); string(data) != "x = (\n" {
		t.Fatalf("file must be untouched on failure, got %q", data)
	}
}

func TestWatcherMissingDir(t *testing.T) {
	a := newWatchApp(t, `cat "$2"`)
	w := NewWatcher(a.LocalService("watch"), a.Registry, []string{filepath.Join(t.TempDir(), "missing")}, time.Second, nil)
	if err := w.Scan(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestWatcherStartStop(t *testing.T) {
	a := newWatchApp(t, `cat "$2"`)
	w := NewWatcher(a.LocalService("watch"), a.Registry, []string{t.TempDir()}, 10*time.Millisecond, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
	time.Sleep(30 * time.Millisecond)
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestWriteFormattedPreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.hl")
	if err := os.WriteFile(path, []byte("old"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFormatted(path, "new"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, _ := os.ReadFile(path)
	info, _ := os.Stat(path)
	if string(data) != "new" || info.Mode().Perm() != 0o640 {
		t.Fatalf("unexpected file: %q %v", data, info.Mode())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}
