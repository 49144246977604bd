package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestRuleErrorUnwrapsToInvariant(t *testing.T) {
	err := fmt.Errorf("transition: %w", Violation("phase-skip", "cannot move from %s to %s", "1", "3"))

	if !IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuleError in chain")
	}
	if re.Rule != "phase-skip" {
		t.Errorf("Rule = %q, want phase-skip", re.Rule)
	}
	if IsCollision(err) || IsNotFound(err) {
		t.Errorf("invariant error matched another sentinel")
	}
}

func TestCollisionErrorNamesHolder(t *testing.T) {
	err := &CollisionError{What: "lock feat-1:src/a.go", Holder: "agent-7"}

	if !IsCollision(err) {
		t.Fatalf("expected collision error")
	}
	if got, want := err.Error(), "collision: lock feat-1:src/a.go is held by agent-7"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := &CollisionError{What: "gate review"}
	if got, want := plain.Error(), "collision: gate review already exists"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRuleErrorWithoutDetail(t *testing.T) {
	err := &RuleError{Rule: "feature is terminal"}
	if got, want := err.Error(), "invariant violation: feature is terminal"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
