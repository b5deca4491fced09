package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	base := New(CodeNotFoundRoom, "rooms.find_by_key", nil)
	wrapped := fmt.Errorf("handler: %w", base)

	if got := CodeOf(wrapped); got != CodeNotFoundRoom {
		t.Fatalf("expected %q, got %q", CodeNotFoundRoom, got)
	}
	if !Is(wrapped, CodeNotFoundRoom) {
		t.Fatalf("expected Is to match wrapped code")
	}
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	if got := CodeOf(errors.New("disk full")); got != CodeInternal {
		t.Fatalf("expected internal code, got %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil error, got %q", got)
	}
}

func TestErrorMessageIncludesOperationAndCause(t *testing.T) {
	cause := errors.New("constraint failed")
	err := New(CodeInternal, "ledger.join", cause)

	if err.Error() != "ledger.join: internal-server-error: constraint failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if err.Operation() != "ledger.join" {
		t.Fatalf("unexpected operation %q", err.Operation())
	}
}
