package types

import (
	"fmt"
	"strings"
	"time"
)

// BlockerType classifies what is blocking a feature
type BlockerType string

// Blocker taxonomy
const (
	BlockerDependency   BlockerType = "DEPENDENCY"
	BlockerTechnical    BlockerType = "TECHNICAL"
	BlockerRequirements BlockerType = "REQUIREMENTS"
	BlockerResource     BlockerType = "RESOURCE"
	BlockerExternal     BlockerType = "EXTERNAL"
	BlockerQuality      BlockerType = "QUALITY"
	BlockerConflict     BlockerType = "CONFLICT"
)

// IsValid checks if the blocker type is valid
func (t BlockerType) IsValid() bool {
	switch t {
	case BlockerDependency, BlockerTechnical, BlockerRequirements, BlockerResource,
		BlockerExternal, BlockerQuality, BlockerConflict:
		return true
	}
	return false
}

// BlockerStatus is the lifecycle status of a blocker
type BlockerStatus string

// Blocker status constants
const (
	BlockerOpen       BlockerStatus = "OPEN"
	BlockerInProgress BlockerStatus = "IN_PROGRESS"
	BlockerResolved   BlockerStatus = "RESOLVED"
	BlockerEscalated  BlockerStatus = "ESCALATED"
)

// IsValid checks if the blocker status is valid
func (s BlockerStatus) IsValid() bool {
	switch s {
	case BlockerOpen, BlockerInProgress, BlockerResolved, BlockerEscalated:
		return true
	}
	return false
}

// IsOpen reports whether a blocker in this status still blocks its feature.
func (s BlockerStatus) IsOpen() bool {
	return s != BlockerResolved
}

// Blocker is an issue that prevents a feature from advancing
type Blocker struct {
	ID          int64         `json:"id"`
	FeatureID   string        `json:"feature_id"`
	Phase       Phase         `json:"phase"`
	Type        BlockerType   `json:"type"`
	Severity    Severity      `json:"severity"`
	Status      BlockerStatus `json:"status"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Resolution  string        `json:"resolution,omitempty"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedBy  string        `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	EscalatedAt *time.Time    `json:"escalated_at,omitempty"`
}

// Validate checks if the blocker has valid field values
func (b *Blocker) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("blocker title is required")
	}
	if !b.Type.IsValid() {
		return fmt.Errorf("invalid blocker type: %s", b.Type)
	}
	if !b.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", b.Severity)
	}
	return nil
}

// GateStatus is the outcome of a quality gate
type GateStatus string

// Gate status constants
const (
	GatePending  GateStatus = "PENDING"
	GateApproved GateStatus = "APPROVED"
	GateRejected GateStatus = "REJECTED"
)

// IsValid checks if the gate status is valid
func (s GateStatus) IsValid() bool {
	switch s {
	case GatePending, GateApproved, GateRejected:
		return true
	}
	return false
}

// QualityGate is an approval checkpoint recorded for one visit to a phase.
// Attempt counts visits to the phase, starting at 1.
type QualityGate struct {
	ID        int64      `json:"id"`
	FeatureID string     `json:"feature_id"`
	Name      string     `json:"name"`
	Phase     Phase      `json:"phase"`
	Attempt   int        `json:"attempt"`
	Status    GateStatus `json:"status"`
	Approver  string     `json:"approver,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
