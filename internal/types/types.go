// Package types defines core data structures for the flow workflow control plane.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Phase is one of the nine fixed workflow phases, stored as "0".."8".
type Phase string

// Phase constants
const (
	PhasePlanning       Phase = "0"
	PhaseDiscovery      Phase = "1"
	PhaseArchitecture   Phase = "2"
	PhaseImplementation Phase = "3"
	PhaseTesting        Phase = "4"
	PhaseReview         Phase = "5"
	PhaseDocumentation  Phase = "6"
	PhaseDeployment     Phase = "7"
	PhaseComplete       Phase = "8"
)

// PhaseCount is the number of phases in the workflow
const PhaseCount = 9

var phaseNames = [PhaseCount]string{
	"Planning",
	"Discovery",
	"Architecture",
	"Implementation",
	"Testing",
	"Review",
	"Documentation",
	"Deployment",
	"Complete",
}

// AllPhases returns every phase in order.
func AllPhases() []Phase {
	phases := make([]Phase, PhaseCount)
	for i := range phases {
		phases[i] = PhaseFromIndex(i)
	}
	return phases
}

// PhaseFromIndex converts a 0-based index into a Phase. The result is
// invalid if i is out of range.
func PhaseFromIndex(i int) Phase {
	return Phase(strconv.Itoa(i))
}

// ParsePhase accepts either a phase number ("3") or a case-insensitive
// phase name ("implementation").
func ParsePhase(s string) (Phase, error) {
	s = strings.TrimSpace(s)
	if p := Phase(s); p.IsValid() {
		return p, nil
	}
	for i, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return PhaseFromIndex(i), nil
		}
	}
	return "", fmt.Errorf("invalid phase %q (expected 0-8 or a phase name)", s)
}

// IsValid checks if the phase is one of "0".."8"
func (p Phase) IsValid() bool {
	if len(p) != 1 {
		return false
	}
	return p[0] >= '0' && p[0] <= '8'
}

// Index returns the numeric position of the phase, or -1 if invalid.
func (p Phase) Index() int {
	if !p.IsValid() {
		return -1
	}
	return int(p[0] - '0')
}

// Name returns the human-readable phase name.
func (p Phase) Name() string {
	if !p.IsValid() {
		return "Unknown"
	}
	return phaseNames[p.Index()]
}

// Label renders the phase as "3 (Implementation)".
func (p Phase) Label() string {
	return fmt.Sprintf("%s (%s)", string(p), p.Name())
}

// IsTerminal reports whether the phase is the Complete phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete
}

// Complexity is the 1-3 tier that drives phase depth and expected duration
type Complexity int

// Complexity tiers
const (
	ComplexitySimple   Complexity = 1
	ComplexityStandard Complexity = 2
	ComplexityComplex  Complexity = 3
)

// IsValid checks if the complexity is 1, 2, or 3
func (c Complexity) IsValid() bool {
	return c >= ComplexitySimple && c <= ComplexityComplex
}

// ExpectedMinutes is the expected wall time for a feature of this tier.
func (c Complexity) ExpectedMinutes() float64 {
	switch c {
	case ComplexitySimple:
		return 60
	case ComplexityComplex:
		return 480
	default:
		return 180
	}
}

// Severity is shared by features (tier) and blockers.
type Severity string

// Severity constants
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// FeatureStatus is the lifecycle status of a feature
type FeatureStatus string

// Feature status constants
const (
	FeatureInProgress FeatureStatus = "IN_PROGRESS"
	FeatureBlocked    FeatureStatus = "BLOCKED"
	FeatureCompleted  FeatureStatus = "COMPLETED"
	FeatureCancelled  FeatureStatus = "CANCELLED"
)

// IsValid checks if the status value is valid
func (s FeatureStatus) IsValid() bool {
	switch s {
	case FeatureInProgress, FeatureBlocked, FeatureCompleted, FeatureCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further work may happen on the feature.
func (s FeatureStatus) IsTerminal() bool {
	return s == FeatureCompleted || s == FeatureCancelled
}

// Feature is the unit of work moving through the phases
type Feature struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Complexity   Complexity    `json:"complexity"`
	Severity     Severity      `json:"severity"`
	CurrentPhase Phase         `json:"current_phase"`
	Status       FeatureStatus `json:"status"`
	EpicID       string        `json:"epic_id,omitempty"`
	CreatedBy    string        `json:"created_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
}

// Validate checks if the feature has valid field values
func (f *Feature) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(f.Name))
	}
	if !f.Complexity.IsValid() {
		return fmt.Errorf("complexity must be between 1 and 3 (got %d)", f.Complexity)
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	if !f.CurrentPhase.IsValid() {
		return fmt.Errorf("invalid phase: %s", f.CurrentPhase)
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", f.Status)
	}
	if f.Status == FeatureCompleted && f.CurrentPhase != PhaseComplete {
		return fmt.Errorf("completed features must be in phase %s", PhaseComplete.Label())
	}
	return nil
}

// FeatureFilter is used to filter feature listings
type FeatureFilter struct {
	Status *FeatureStatus
	Phase  *Phase
	EpicID string
	Limit  int
}

// TransitionKind classifies a phase transition
type TransitionKind string

// Transition kinds
const (
	TransitionForward    TransitionKind = "FORWARD"
	TransitionBackward   TransitionKind = "BACKWARD"
	TransitionEscalation TransitionKind = "ESCALATION"
)

// IsValid checks if the transition kind is valid
func (k TransitionKind) IsValid() bool {
	switch k {
	case TransitionForward, TransitionBackward, TransitionEscalation:
		return true
	}
	return false
}

// PhaseTransition is an append-only record of a phase change
type PhaseTransition struct {
	ID        int64          `json:"id"`
	FeatureID string         `json:"feature_id"`
	FromPhase Phase          `json:"from_phase"`
	ToPhase   Phase          `json:"to_phase"`
	Actor     string         `json:"actor"`
	Kind      TransitionKind `json:"kind"`
	Note      string         `json:"note,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ClassifyTransition returns the kind of a move from one phase to another.
// ok is false when the move skips at least one phase.
func ClassifyTransition(from, to Phase) (kind TransitionKind, ok bool) {
	c, t := from.Index(), to.Index()
	switch {
	case t == c || t == c+1:
		return TransitionForward, true
	case t < c:
		return TransitionBackward, true
	default:
		return "", false
	}
}

// Event represents an audit trail entry
type Event struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	EventType  EventType `json:"event_type"`
	Actor      string    `json:"actor"`
	OldValue   *string   `json:"old_value,omitempty"`
	NewValue   *string   `json:"new_value,omitempty"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit entity types
const (
	EntityFeature  = "feature"
	EntityLearning = "learning"
	EntityConflict = "conflict"
	EntityAlert    = "alert"
	EntitySystem   = "system"
)

// EventType categorizes audit trail events
type EventType string

// Event type constants for audit trail
const (
	EventCreated           EventType = "created"
	EventPhaseChanged      EventType = "phase_changed"
	EventStatusChanged     EventType = "status_changed"
	EventCompleted         EventType = "completed"
	EventCancelled         EventType = "cancelled"
	EventBlockerCreated    EventType = "blocker_created"
	EventBlockerResolved   EventType = "blocker_resolved"
	EventBlockerEscalated  EventType = "blocker_escalated"
	EventGateEvaluated     EventType = "gate_evaluated"
	EventLockAcquired      EventType = "lock_acquired"
	EventLockReleased      EventType = "lock_released"
	EventConflictDetected  EventType = "conflict_detected"
	EventConflictResolved  EventType = "conflict_resolved"
	EventInvocationStarted EventType = "invocation_started"
	EventInvocationEnded   EventType = "invocation_ended"
	EventEvolved           EventType = "evolved"
	EventValidated         EventType = "validated"
	EventReferenced        EventType = "referenced"
	EventTargetDeclared    EventType = "target_declared"
	EventPropagated        EventType = "propagated"
	EventEvaluated         EventType = "evaluated"
	EventAlertRaised       EventType = "alert_raised"
	EventAlertAcknowledged EventType = "alert_acknowledged"
	EventAlertResolved     EventType = "alert_resolved"
)
