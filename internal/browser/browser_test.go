package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNavigationErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("scan: %w", &NavigationError{URL: "https://example.com", Err: context.DeadlineExceeded})

	if !IsNavigationError(err) {
		t.Fatal("expected IsNavigationError to detect wrapped NavigationError")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected NavigationError to unwrap to its cause")
	}
	want := "scan: navigate to https://example.com: context deadline exceeded"
	if err.Error() != want {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsNavigationError(errors.New("other")) {
		t.Error("plain error must not be reported as NavigationError")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if !opts.Headless || !opts.NoSandbox {
		t.Errorf("expected headless no-sandbox defaults, got %+v", opts)
	}
	if opts.NavigationTimeout.Seconds() != 30 {
		t.Errorf("expected 30s navigation timeout, got %s", opts.NavigationTimeout)
	}
}
