package types

import (
	"fmt"
	"strings"
	"time"
)

// Confidence thresholds and increments for learnings
const (
	DefaultConfidence     = 0.50
	ValidationIncrement   = 0.15
	ReferenceIncrement    = 0.10
	PropagationConfidence = 0.80
	MinTargetRelevance    = 0.60
)

// LearningCategory classifies a learning
type LearningCategory string

// Learning taxonomy
const (
	CategoryPattern     LearningCategory = "PATTERN"
	CategoryAntiPattern LearningCategory = "ANTI_PATTERN"
	CategoryDecision    LearningCategory = "DECISION"
	CategoryGotcha      LearningCategory = "GOTCHA"
	CategoryPerformance LearningCategory = "PERFORMANCE"
	CategorySecurity    LearningCategory = "SECURITY"
	CategoryTesting     LearningCategory = "TESTING"
	CategoryTooling     LearningCategory = "TOOLING"
	CategoryProcess     LearningCategory = "PROCESS"
)

// IsValid checks if the category is valid
func (c LearningCategory) IsValid() bool {
	switch c {
	case CategoryPattern, CategoryAntiPattern, CategoryDecision, CategoryGotcha,
		CategoryPerformance, CategorySecurity, CategoryTesting, CategoryTooling, CategoryProcess:
		return true
	}
	return false
}

// Learning is a versioned, confidence-scored piece of knowledge.
// Iterations of one learning form a chain linked by PredecessorID and
// SuccessorID; exactly one member of a chain is not superseded.
type Learning struct {
	ID               string           `json:"id"`
	Category         LearningCategory `json:"category"`
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	Confidence       float64          `json:"confidence"`
	ValidationCount  int              `json:"validation_count"`
	Validators       []string         `json:"validators,omitempty"`
	Importance       Severity         `json:"importance"`
	Tags             []string         `json:"tags,omitempty"`
	FeatureID        string           `json:"feature_id,omitempty"`
	Phase            Phase            `json:"phase,omitempty"`
	SourceActor      string           `json:"source_actor,omitempty"`
	PredecessorID    string           `json:"predecessor_id,omitempty"`
	SuccessorID      string           `json:"successor_id,omitempty"`
	IterationNumber  int              `json:"iteration_number"`
	IsSuperseded     bool             `json:"is_superseded"`
	DeltaSummary     string           `json:"delta_summary,omitempty"`
	ReferenceCount   int              `json:"reference_count"`
	PropagatedAt     *time.Time       `json:"propagated_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LastValidatedAt  *time.Time       `json:"last_validated_at,omitempty"`
	LastReferencedAt *time.Time       `json:"last_referenced_at,omitempty"`
	SupersededAt     *time.Time       `json:"superseded_at,omitempty"`
}

// Validate checks if the learning has valid field values
func (l *Learning) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(l.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if !l.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", l.Category)
	}
	if !l.Importance.IsValid() {
		return fmt.Errorf("invalid importance: %s", l.Importance)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1 (got %.2f)", l.Confidence)
	}
	if l.Phase != "" && !l.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %s", l.Phase)
	}
	return nil
}

// LearningFilter is used to filter learning listings
type LearningFilter struct {
	Category          *LearningCategory
	FeatureID         string
	Tag               string
	MinConfidence     float64
	IncludeSuperseded bool
	Limit             int
}

// LearningConflictKind classifies a knowledge conflict
type LearningConflictKind string

// Learning conflict kinds
const (
	LearningContradiction LearningConflictKind = "CONTRADICTION"
	LearningScopeOverlap  LearningConflictKind = "SCOPE_OVERLAP"
	LearningVersionDrift  LearningConflictKind = "VERSION_DRIFT"
)

// IsValid checks if the kind is valid
func (k LearningConflictKind) IsValid() bool {
	switch k {
	case LearningContradiction, LearningScopeOverlap, LearningVersionDrift:
		return true
	}
	return false
}

// LearningConflictStatus is the lifecycle status of a knowledge conflict
type LearningConflictStatus string

// Learning conflict statuses
const (
	LearningConflictOpen          LearningConflictStatus = "OPEN"
	LearningConflictInvestigating LearningConflictStatus = "INVESTIGATING"
	LearningConflictResolved      LearningConflictStatus = "RESOLVED"
	LearningConflictDeferred      LearningConflictStatus = "DEFERRED"
)

// IsValid checks if the status is valid
func (s LearningConflictStatus) IsValid() bool {
	switch s {
	case LearningConflictOpen, LearningConflictInvestigating, LearningConflictResolved, LearningConflictDeferred:
		return true
	}
	return false
}

// IsUnresolved reports whether the conflict still blocks propagation.
func (s LearningConflictStatus) IsUnresolved() bool {
	return s == LearningConflictOpen || s == LearningConflictInvestigating
}

// LearningConflict records two learnings that may contradict or overlap.
// LearningA always sorts before LearningB.
type LearningConflict struct {
	ID              int64                  `json:"id"`
	LearningA       string                 `json:"learning_a"`
	LearningB       string                 `json:"learning_b"`
	Kind            LearningConflictKind   `json:"kind"`
	Description     string                 `json:"description,omitempty"`
	Status          LearningConflictStatus `json:"status"`
	WinnerID        string                 `json:"winner_id,omitempty"`
	Similarity      float64                `json:"similarity"`
	DetectedBy      string                 `json:"detected_by,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ResolvedBy      string                 `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
}

// TargetKind is the kind of downstream consumer a learning propagates to
type TargetKind string

// Propagation target kinds
const (
	TargetGlobalNote  TargetKind = "GLOBAL_NOTE"
	TargetProjectDoc  TargetKind = "PROJECT_DOC"
	TargetSkill       TargetKind = "SKILL"
	TargetAgentConfig TargetKind = "AGENT_CONFIG"
	TargetTemplate    TargetKind = "TEMPLATE"
)

// IsValid checks if the target kind is valid
func (k TargetKind) IsValid() bool {
	switch k {
	case TargetGlobalNote, TargetProjectDoc, TargetSkill, TargetAgentConfig, TargetTemplate:
		return true
	}
	return false
}

// RequiresPath reports whether targets of this kind must name a path.
func (k TargetKind) RequiresPath() bool {
	return k != TargetGlobalNote
}

// ValidateTarget checks a (kind, path) pair.
func ValidateTarget(kind TargetKind, path string) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid target kind: %s", kind)
	}
	if kind.RequiresPath() && strings.TrimSpace(path) == "" {
		return fmt.Errorf("target kind %s requires a path", kind)
	}
	if !kind.RequiresPath() && path != "" {
		return fmt.Errorf("target kind %s does not take a path", kind)
	}
	return nil
}

// PropagationTarget is a declared downstream consumer of a learning
type PropagationTarget struct {
	ID         int64      `json:"id"`
	LearningID string     `json:"learning_id"`
	Kind       TargetKind `json:"target_kind"`
	Path       string     `json:"target_path,omitempty"`
	Relevance  float64    `json:"relevance"`
	DeclaredBy string     `json:"declared_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Key identifies the target independent of the learning.
func (t *PropagationTarget) Key() string {
	return string(t.Kind) + ":" + t.Path
}

// PropagationRecord says a learning was written into a target
type PropagationRecord struct {
	ID           int64      `json:"id"`
	LearningID   string     `json:"learning_id"`
	Kind         TargetKind `json:"target_kind"`
	Path         string     `json:"target_path,omitempty"`
	Actor        string     `json:"actor"`
	Section      string     `json:"section,omitempty"`
	PropagatedAt time.Time  `json:"propagated_at"`
}

// Key identifies the target independent of the learning.
func (r *PropagationRecord) Key() string {
	return string(r.Kind) + ":" + r.Path
}

// Eligibility is the result of a propagation eligibility check.
// Reasons lists every failing condition; it is empty when Eligible.
type Eligibility struct {
	LearningID string   `json:"learning_id"`
	Eligible   bool     `json:"eligible"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// DeclareTargetResult reports whether a target row was newly created
type DeclareTargetResult struct {
	Target  *PropagationTarget `json:"target"`
	Created bool               `json:"created"`
}

// QueueItem is one (learning, target) pair ready to be propagated
type QueueItem struct {
	LearningID string     `json:"learning_id"`
	Title      string     `json:"title"`
	Confidence float64    `json:"confidence"`
	Kind       TargetKind `json:"target_kind"`
	Path       string     `json:"target_path,omitempty"`
	Relevance  float64    `json:"relevance"`
}

// PropagationResult is returned by RecordPropagation
type PropagationResult struct {
	Recorded        bool               `json:"recorded"`
	AlreadyRecorded bool               `json:"already_recorded,omitempty"`
	FullyPropagated bool               `json:"fully_propagated"`
	Eligibility     *Eligibility       `json:"eligibility,omitempty"`
	Record          *PropagationRecord `json:"record,omitempty"`
}

// PropagationStatus compares declared targets against completed records
type PropagationStatus struct {
	LearningID      string               `json:"learning_id"`
	Declared        []*PropagationTarget `json:"declared"`
	Completed       []*PropagationRecord `json:"completed"`
	Pending         []*PropagationTarget `json:"pending"`
	Undeclared      []*PropagationRecord `json:"undeclared,omitempty"`
	FullyPropagated bool                 `json:"fully_propagated"`
}

// EvolutionSyncItem is a target holding a stale iteration of a learning
type EvolutionSyncItem struct {
	StaleLearningID   string     `json:"stale_learning_id"`
	StaleIteration    int        `json:"stale_iteration"`
	CurrentLearningID string     `json:"current_learning_id"`
	CurrentIteration  int        `json:"current_iteration"`
	Kind              TargetKind `json:"target_kind"`
	Path              string     `json:"target_path,omitempty"`
	PropagatedAt      time.Time  `json:"propagated_at"`
}
