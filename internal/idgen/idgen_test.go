package idgen

import (
	"regexp"
	"testing"
)

func TestNewFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^feat-[0-9a-f]{12}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewFeatureID()
		if !pattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, pattern)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewLearningID(t *testing.T) {
	if id := NewLearningID(); !regexp.MustCompile(`^lrn-[0-9a-f]{12}$`).MatchString(id) {
		t.Errorf("learning id %q has the wrong shape", id)
	}
}
