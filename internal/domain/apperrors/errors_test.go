package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"transient", TransientNode("filter logs", base), KindTransientNode},
		{"storage", Storage("insert transfer", base), KindStorage},
		{"validation", Validation("query", "bad %s", "address"), KindValidation},
		{"configuration", Configuration("load", "missing"), KindConfiguration},
		{"wrapped", fmt.Errorf("scan 1-10: %w", TransientNode("filter logs", base)), KindTransientNode},
		{"unclassified", base, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNilErrorStaysNil(t *testing.T) {
	if err := Storage("insert", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if Is(nil, KindStorage) {
		t.Error("nil must not match any kind")
	}
}

func TestUnwrapAndMessage(t *testing.T) {
	base := errors.New("i/o timeout")
	err := fmt.Errorf("outer: %w", TransientNode("get block number", base))

	if !errors.Is(err, base) {
		t.Error("expected the cause to be reachable")
	}
	if got := err.Error(); got != "outer: transient_node: get block number: i/o timeout" {
		t.Errorf("unexpected message %q", got)
	}
	if got := Message(Validation("q", "limit must be an integer")); got != "limit must be an integer" {
		t.Errorf("unexpected inner message %q", got)
	}
}
