package core

import (
	"context"
	"errors"
	"testing"
)

type fakeHost struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (f *fakeHost) Name() string { return f.name }

func (f *fakeHost) Start(ctx context.Context) error {
	*f.log = append(*f.log, "start:"+f.name)
	return f.startErr
}

func (f *fakeHost) Stop(ctx context.Context) error {
	*f.log = append(*f.log, "stop:"+f.name)
	return f.stopErr
}

func TestHostManagerStartStopOrder(t *testing.T) {
	var log []string
	mgr := NewHostManager()
	for _, name := range []string{"web", "watch"} {
		if err := mgr.Register(&fakeHost{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("start all: %v", err)
	}
	if err := mgr.StopAll(context.Background()); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	want := []string{"start:web", "start:watch", "stop:watch", "stop:web"}
	if len(log) != len(want) {
		t.Fatalf("unexpected calls: %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("unexpected calls: %v", log)
		}
	}
}

func TestHostManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	mgr := NewHostManager()
	_ = mgr.Register(&fakeHost{name: "web", log: &log})
	_ = mgr.Register(&fakeHost{name: "watch", startErr: errors.New("boom"), log: &log})
	if err := mgr.StartAll(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if log[len(log)-1] != "stop:web" {
		t.Fatalf("started host must be stopped on failure: %v", log)
	}
}

func TestHostManagerDuplicateRegister(t *testing.T) {
	var log []string
	mgr := NewHostManager()
	if err := mgr.Register(&fakeHost{name: "web", log: &log}); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := mgr.Register(&fakeHost{name: "web", log: &log}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestHostManagerStopOneUnknown(t *testing.T) {
	mgr := NewHostManager()
	err := mgr.StopOne(context.Background(), "missing")
	if !errors.Is(err, errUnknownHost) {
		t.Fatalf("expected errUnknownHost, got: %v", err)
	}
}
