package ferrors

import (
	"errors"
	"testing"
)

func TestIsMatchesKindRegardlessOfCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindCache, "bundle.install", cause)
	if !errors.Is(err, ErrCache) {
		t.Fatalf("expected errors.Is to match the cache sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is not to match an unrelated sentinel")
	}
	if !Is(err, KindCache) {
		t.Fatalf("expected Is helper to match KindCache")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindLoad, "bundle.load", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(KindCache, "op", nil) != nil {
		t.Fatalf("expected Wrap(nil) to return nil")
	}
}
