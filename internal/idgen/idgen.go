// Package idgen generates prefixed identifiers for features and learnings.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes
const (
	FeaturePrefix  = "feat"
	LearningPrefix = "lrn"
)

// hexLength is the number of random hex characters after the prefix.
const hexLength = 12

// New returns prefix-<12 hex chars> drawn from a random UUID.
func New(prefix string) string {
	u := uuid.New()
	hex := strings.ReplaceAll(u.String(), "-", "")
	return prefix + "-" + hex[:hexLength]
}

// NewFeatureID returns a fresh feature identifier.
func NewFeatureID() string { return New(FeaturePrefix) }

// NewLearningID returns a fresh learning identifier.
func NewLearningID() string { return New(LearningPrefix) }
