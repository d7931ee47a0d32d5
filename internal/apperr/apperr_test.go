package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Unclassified(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("expected KindInternal, got %s", got)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(KindConflict, "already running")
	wrapped := fmt.Errorf("dispatch: %w", inner)
	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("expected KindConflict through wrapping, got %s", got)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindServiceUnavailable, "worker unavailable", cause)
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindThrottled, "slow down")) {
		t.Error("throttled errors should be retryable")
	}
	if Retryable(New(KindConflict, "lost race")) {
		t.Error("conflicts should not be retryable")
	}
	if Retryable(errors.New("boom")) {
		t.Error("unclassified errors should not be retryable")
	}
}
