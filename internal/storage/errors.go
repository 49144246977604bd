package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every storage backend and the services above them.
var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvariant indicates an operation would break a workflow rule
	ErrInvariant = errors.New("invariant violation")

	// ErrCollision indicates a uniqueness or ownership clash
	ErrCollision = errors.New("collision")
)

// RuleError is an invariant violation carrying the rule that was broken.
type RuleError struct {
	Rule   string
	Detail string
}

func (e *RuleError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violation: %s", e.Rule)
	}
	return fmt.Sprintf("invariant violation: %s: %s", e.Rule, e.Detail)
}

// Unwrap lets errors.Is(err, ErrInvariant) match.
func (e *RuleError) Unwrap() error { return ErrInvariant }

// Violation builds a RuleError with a formatted detail.
func Violation(rule, format string, args ...interface{}) error {
	return &RuleError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// CollisionError names what collided and, when known, who holds it.
type CollisionError struct {
	What   string
	Holder string
}

func (e *CollisionError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("collision: %s already exists", e.What)
	}
	return fmt.Sprintf("collision: %s is held by %s", e.What, e.Holder)
}

// Unwrap lets errors.Is(err, ErrCollision) match.
func (e *CollisionError) Unwrap() error { return ErrCollision }

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvariant checks if an error is or wraps ErrInvariant
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// IsCollision checks if an error is or wraps ErrCollision
func IsCollision(err error) bool {
	return errors.Is(err, ErrCollision)
}
