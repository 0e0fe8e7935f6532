package util

import (
	"regexp"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	a, b := NewID(""), NewID("")
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if len(a) != 36 {
		t.Fatalf("expected a uuid, got %q", a)
	}
	if got := NewID("rep"); !regexp.MustCompile(`^rep_[0-9a-f-]{36}$`).MatchString(got) {
		t.Fatalf("unexpected prefixed id %q", got)
	}
}

func TestNewCaseNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
	got := NewCaseNumber(now)
	if !regexp.MustCompile(`^IR-20260315-[0-9A-F]{8}$`).MatchString(got) {
		t.Fatalf("unexpected case number %q", got)
	}
}
