package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"hellmfmt/internal/config"
	"hellmfmt/internal/storage"
)

func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub formatter requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "hellm")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { // #nosec G306 -- тестовый stub должен быть исполняемым.
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestNewAppAppliesManifestAndFlags(t *testing.T) {
	ws := t.TempDir()
	manifest := "[format]\nexecutable = \"/opt/hellm/bin/hellm\"\ntimeout = \"3s\"\n"
	if err := os.WriteFile(filepath.Join(ws, "hellm.toml"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	sub := filepath.Join(ws, "prompts")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	a, err := NewApp(context.Background(), config.Default(), nil, Options{StartDir: sub})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if a.Manifest == nil || a.WorkingDir() != a.Manifest.Root {
		t.Fatalf("manifest not discovered: %#v", a.Manifest)
	}
	rep, err := a.Module.Doctor(context.Background())
	if err != nil {
		t.Logf("doctor host info: %v", err)
	}
	if rep.Executable != "/opt/hellm/bin/hellm" || rep.TimeoutMS != 3000 {
		t.Fatalf("manifest not applied: %#v", rep)
	}

	a, err = NewApp(context.Background(), config.Default(), nil, Options{StartDir: sub, Executable: "hellm-dev", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rep, _ = a.Module.Doctor(context.Background())
	if rep.Executable != "hellm-dev" || rep.TimeoutMS != 1000 {
		t.Fatalf("flags must win over manifest: %#v", rep)
	}
}

func TestHistoryDiscardWithoutStore(t *testing.T) {
	a, err := NewApp(context.Background(), config.Default(), nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if a.Store != nil {
		t.Fatal("sqlite is disabled by default")
	}
	if _, ok := a.History().(storage.Discard); !ok {
		t.Fatalf("expected discard writer, got %T", a.History())
	}
	if a.LocalService("cli").Authorizer != nil {
		t.Fatal("local service must not authorize")
	}
	if a.RemoteService("web").Authorizer == nil || a.RemoteService("web").RateLimiter == nil {
		t.Fatal("remote service must authorize and rate limit")
	}
}

func TestLocalServiceWritesHistory(t *testing.T) {
	exe := writeStub(t, `cat "$2"`)
	cfg := config.Default()
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.Formatter.Executable = exe

	a, err := NewApp(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	src := filepath.Join(t.TempDir(), "a.hl")
	if err := os.WriteFile(src, []byte("x = 1\n"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	res := a.LocalService("cli").Format(context.Background(), "", formatterRequest(src))
	if !res.OK() || res.Text != "x = 1\n" {
		t.Fatalf("unexpected result: %#v", res)
	}
	rec, err := a.Store.LatestForPath(context.Background(), src)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec.Status != "ok" || rec.Source != "cli" || rec.Provider != "hellm" {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestHostsIncludeWatchWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Web.ListenAddr = "127.0.0.1:0"
	a, err := NewApp(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	hosts, err := a.Hosts()
	if err != nil {
		t.Fatalf("hosts: %v", err)
	}
	if err := hosts.StopOne(context.Background(), "watch"); err == nil {
		t.Fatal("watch must not be registered without dirs")
	}

	cfg.Watch.Dirs = []string{t.TempDir()}
	a, err = NewApp(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	hosts, err = a.Hosts()
	if err != nil {
		t.Fatalf("hosts: %v", err)
	}
	if err := hosts.StopOne(context.Background(), "watch"); err != nil {
		t.Fatalf("watch must be registered: %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Web.ListenAddr = "127.0.0.1:0"
	a, err := NewApp(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
