package core

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPathAuthorizerAllowsInsideRoot(t *testing.T) {
	root := t.TempDir()
	a := NewPathAuthorizer([]string{root})
	if err := a.Authorize(Subject{Source: "web", ID: "ci"}, filepath.Join(root, "pkg", "a.hl")); err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
}

func TestPathAuthorizerDenyOutsideRoot(t *testing.T) {
	root := t.TempDir()
	a := NewPathAuthorizer([]string{root})
	if err := a.Authorize(Subject{Source: "web", ID: "ci"}, filepath.Join(root, "..", "other.hl")); err == nil {
		t.Fatalf("expected deny")
	}
	if err := a.Authorize(Subject{Source: "web", ID: "ci"}, root+"-sibling/a.hl"); err == nil {
		t.Fatalf("expected deny for sibling prefix")
	}
}

func TestPathAuthorizerDenyRelativePath(t *testing.T) {
	a := NewPathAuthorizer([]string{t.TempDir()})
	err := a.Authorize(Subject{Source: "web", ID: "ci"}, "a.hl")
	if err == nil {
		t.Fatalf("expected deny")
	}
	if !errors.Is(err, errInvalidArguments) {
		t.Fatalf("expected errInvalidArguments, got %v", err)
	}
}

func TestPathAuthorizerEmptyAllowlistDeniesAll(t *testing.T) {
	a := NewPathAuthorizer([]string{"", "relative/root"})
	if len(a.Roots()) != 0 {
		t.Fatalf("invalid roots must be skipped: %v", a.Roots())
	}
	if err := a.Authorize(Subject{Source: "web", ID: "ci"}, filepath.Join(t.TempDir(), "a.hl")); err == nil {
		t.Fatalf("expected deny")
	}
}
