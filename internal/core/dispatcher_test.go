package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hellmfmt/internal/formatter"
)

type fakeProvider struct {
	name    string
	ext     string
	initErr error
	delay   time.Duration
	active  int32
	peak    int32
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Init(ctx context.Context) error { return f.initErr }
func (f *fakeProvider) Handles(path string) bool       { return filepath.Ext(path) == f.ext }
func (f *fakeProvider) Format(ctx context.Context, req formatter.FormatRequest) (string, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if strings.Contains(req.FilePath, "bad") {
		return "", &formatter.Error{Kind: formatter.NonZeroExit, Message: "parse failed with code 1: bad", ExitCode: 1, Stderr: "bad"}
	}
	return "formatted:" + filepath.Base(req.FilePath), nil
}

func TestRegisterAndFormat(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	if err := r.Register(ctx, &fakeProvider{name: "hellm", ext: ".hl"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	text, name, err := r.Format(ctx, formatter.FormatRequest{FilePath: "/ws/a.hl"})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if text != "formatted:a.hl" || name != "hellm" {
		t.Fatalf("unexpected result: %q %q", text, name)
	}
}

func TestDuplicateProvider(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	prov := &fakeProvider{name: "dup", ext: ".hl"}
	if err := r.Register(ctx, prov); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(ctx, prov); err == nil {
		t.Fatalf("expected error on duplicate register")
	}
}

func TestRegisterInitFailure(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	err := r.Register(context.Background(), &fakeProvider{name: "x", initErr: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected init error, got %v", err)
	}
	if len(r.Providers()) != 0 {
		t.Fatalf("failed provider must not be registered")
	}
}

func TestResolveUnknownExtension(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(context.Background(), &fakeProvider{name: "hellm", ext: ".hl"})
	_, err := r.Resolve("/ws/readme.md")
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestFormatWithUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.FormatWith(context.Background(), "none", formatter.FormatRequest{FilePath: "/ws/a.hl"})
	if !errors.Is(err, errUnknownProvider) {
		t.Fatalf("expected errUnknownProvider, got %v", err)
	}
}

func TestFormatAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	prov := &fakeProvider{name: "hellm", ext: ".hl", delay: 20 * time.Millisecond}
	_ = r.Register(context.Background(), prov)

	reqs := []formatter.FormatRequest{
		{FilePath: "/ws/a.hl"},
		{FilePath: "/ws/bad.hl"},
		{FilePath: "/ws/c.hl"},
		{FilePath: "/ws/d.txt"},
		{FilePath: "/ws/e.hl"},
	}
	out, err := r.FormatAll(context.Background(), reqs, 2)
	if err != nil {
		t.Fatalf("format all: %v", err)
	}
	if len(out) != len(reqs) {
		t.Fatalf("unexpected outcome count: %d", len(out))
	}
	for i, o := range out {
		if o.Path != reqs[i].FilePath {
			t.Fatalf("outcome %d out of order: %s", i, o.Path)
		}
	}
	if !out[0].Result.OK() || out[0].Result.Text != "formatted:a.hl" {
		t.Fatalf("unexpected first outcome: %#v", out[0])
	}
	if !formatter.IsKind(out[1].Result.Err, formatter.NonZeroExit) {
		t.Fatalf("expected NonZeroExit for bad file, got %v", out[1].Result.Err)
	}
	if !out[2].Result.OK() || !out[4].Result.OK() {
		t.Fatalf("failure must not affect other files")
	}
	if !errors.Is(out[3].Result.Err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider for txt, got %v", out[3].Result.Err)
	}
	if peak := atomic.LoadInt32(&prov.peak); peak > 2 {
		t.Fatalf("concurrency limit exceeded: %d", peak)
	}
}

func TestFormatAllCanceledContext(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(context.Background(), &fakeProvider{name: "hellm", ext: ".hl"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.FormatAll(ctx, []formatter.FormatRequest{{FilePath: "/ws/a.hl"}}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(out[0].Result.Err, context.Canceled) || out[0].Path != "/ws/a.hl" || !out[0].Skipped {
		t.Fatalf("skipped file must report cancellation: %#v", out[0])
	}
}
