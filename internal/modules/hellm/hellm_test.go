package hellm

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"hellmfmt/internal/formatter"
)

func TestHandlesHellmFiles(t *testing.T) {
	m := New("", time.Second, 0, nil)
	if !m.Handles("/ws/a.hl") || !m.Handles("/ws/A.HL") {
		t.Fatalf("expected .hl files to be handled")
	}
	if m.Handles("/ws/a.hlx") || m.Handles("/ws/hl") {
		t.Fatalf("unexpected match")
	}
}

func TestInitToleratesMissingExecutable(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), time.Second, 0, nil)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init must not fail on missing executable: %v", err)
	}
}

func TestFormatUsesConfiguredExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub formatter requires a POSIX shell")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "hellm")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\nprintf 'ok'\n"), 0o755); err != nil { // #nosec G306 -- тестовый stub.
		t.Fatalf("write stub: %v", err)
	}
	m := New(exe, time.Second, 0, nil)
	out, err := m.Format(context.Background(), formatter.FormatRequest{FilePath: filepath.Join(dir, "a.hl"), WorkingDir: dir})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected result: %q, %v", out, err)
	}
}

func TestFormatMissingExecutableIsSpawnError(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), time.Second, 0, nil)
	_, err := m.Format(context.Background(), formatter.FormatRequest{FilePath: "/ws/a.hl"})
	if !formatter.IsKind(err, formatter.SpawnError) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestDoctorReportsLookupError(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), 3*time.Second, 0, nil)
	rep, err := m.Doctor(context.Background())
	if err != nil {
		t.Skipf("host info unavailable: %v", err)
	}
	if rep.LookupError == "" || rep.ResolvedPath != "" {
		t.Fatalf("expected lookup error: %#v", rep)
	}
	if rep.TimeoutMS != 3000 {
		t.Fatalf("unexpected timeout: %d", rep.TimeoutMS)
	}
}

func TestFormatRequestTimeoutOverridesModule(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub formatter requires a POSIX shell")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "hellm")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755); err != nil { // #nosec G306 -- тестовый stub.
		t.Fatalf("write stub: %v", err)
	}
	m := New(exe, time.Minute, 100*time.Millisecond, nil)
	started := time.Now()
	_, err := m.Format(context.Background(), formatter.FormatRequest{FilePath: filepath.Join(dir, "a.hl"), Timeout: 300 * time.Millisecond})
	if !formatter.IsKind(err, formatter.Timeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err.Error() != "formatting timed out after 300ms" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("request timeout ignored, took %s", elapsed)
	}
}
