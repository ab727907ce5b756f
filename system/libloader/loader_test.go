package libloader

import "testing"

func TestOpenMissingPluginReturnsLoadError(t *testing.T) {
	l := New(false)
	if _, err := l.Open("/nonexistent/path.so"); err == nil {
		t.Fatalf("expected an error opening a missing plugin file")
	}
}

func TestCloseRemovesBookkeepingOnly(t *testing.T) {
	l := New(false)
	if l.IsLoaded("/some/path.so") {
		t.Fatalf("expected path not loaded before Open")
	}
	l.Close("/some/path.so")
	if l.IsLoaded("/some/path.so") {
		t.Fatalf("Close should be a no-op for a path never opened")
	}
}

func TestNoDeleteFlagRoundTrips(t *testing.T) {
	l := New(true)
	if !l.NoDelete() {
		t.Fatalf("expected NoDelete to reflect constructor argument")
	}
}
