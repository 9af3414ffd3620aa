package broadcast

import (
	"testing"

	"hashpass/internal/registry"
)

func TestSanitizeFloat_ReplacesNaNAndInf(t *testing.T) {
	nan := func() float64 { var z float64; return z / z }()
	if got := sanitizeFloat(nan); got != 0 {
		t.Fatalf("expected NaN to sanitize to 0, got %v", got)
	}

	inf := func() float64 { var z float64; return 1 / z }()
	if got := sanitizeFloat(inf); got != 0 {
		t.Fatalf("expected +Inf to sanitize to 0, got %v", got)
	}
	if got := sanitizeFloat(-inf); got != 0 {
		t.Fatalf("expected -Inf to sanitize to 0, got %v", got)
	}
}

func TestSanitizeFloat_PassesThroughFinite(t *testing.T) {
	if got := sanitizeFloat(42.5); got != 42.5 {
		t.Fatalf("expected finite value to pass through unchanged, got %v", got)
	}
}

func TestNewPuzzleReset_SetsType(t *testing.T) {
	msg := NewPuzzleReset("seed1", 4, 1.5, 2.0, 100.0)
	if msg.Type != TypePuzzleReset {
		t.Fatalf("expected type %q, got %q", TypePuzzleReset, msg.Type)
	}
	if msg.Seed != "seed1" || msg.Difficulty != 4 {
		t.Fatalf("unexpected fields: %+v", msg)
	}
}

func TestHub_BroadcastOnEmptyRegistryIsNoop(t *testing.T) {
	hub := New(registry.New())
	hub.Broadcast(NewPuzzleReset("seed1", 4, 1.0, 1.0, 0))
}
