package common

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Second)
	now := time.Now()
	if !l.Allow("u1", now) {
		t.Fatalf("first should pass")
	}
	if !l.Allow("u1", now.Add(100*time.Millisecond)) {
		t.Fatalf("second should pass")
	}
	if l.Allow("u1", now.Add(200*time.Millisecond)) {
		t.Fatalf("third should be blocked")
	}
	if !l.Allow("u1", now.Add(2*time.Second)) {
		t.Fatalf("should pass after window")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	now := time.Now()
	if !l.Allow("web:ci", now) || !l.Allow("web:dev", now) {
		t.Fatalf("different subjects must not share a budget")
	}
	if l.Allow("web:ci", now.Add(time.Second)) {
		t.Fatalf("ci must be limited")
	}
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	l := NewRateLimiter(1, time.Second)
	now := time.Now()
	for i := 0; i < sweepEvery-1; i++ {
		l.Allow(fmt.Sprintf("old-%d", i), now)
	}
	if l.Keys() != sweepEvery-1 {
		t.Fatalf("expected %d keys, got %d", sweepEvery-1, l.Keys())
	}
	l.Allow("fresh", now.Add(time.Hour))
	if l.Keys() != 1 {
		t.Fatalf("idle keys must be swept, got %d", l.Keys())
	}
}
