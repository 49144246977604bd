package types

import "time"

// LockKind distinguishes a whole-feature lock from a file lock
type LockKind string

// Lock kinds
const (
	LockFeature LockKind = "FEATURE"
	LockFile    LockKind = "FILE"
)

// FeatureLockResource is the resource name used for whole-feature locks.
const FeatureLockResource = "*"

// IsValid checks if the lock kind is valid
func (k LockKind) IsValid() bool {
	return k == LockFeature || k == LockFile
}

// Lock is an advisory claim on a feature or on a file path within a feature
type Lock struct {
	FeatureID  string    `json:"feature_id"`
	Resource   string    `json:"resource"`
	Kind       LockKind  `json:"kind"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RiskLevel grades a file conflict
type RiskLevel string

// Risk levels
const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ConflictStatus is the lifecycle status of a file conflict
type ConflictStatus string

// File conflict statuses
const (
	ConflictDetected    ConflictStatus = "DETECTED"
	ConflictCoordinated ConflictStatus = "COORDINATED"
	ConflictSerialized  ConflictStatus = "SERIALIZED"
	ConflictResolved    ConflictStatus = "RESOLVED"
)

// ResolutionStrategy is how two features sharing files will proceed
type ResolutionStrategy string

// Resolution strategies
const (
	StrategySerialize     ResolutionStrategy = "SERIALIZE"
	StrategyCoordinate    ResolutionStrategy = "COORDINATE"
	StrategyAllowParallel ResolutionStrategy = "ALLOW_PARALLEL"
)

// IsValid checks if the strategy is valid
func (s ResolutionStrategy) IsValid() bool {
	switch s {
	case StrategySerialize, StrategyCoordinate, StrategyAllowParallel:
		return true
	}
	return false
}

// ResultStatus maps a strategy to the conflict status it produces.
func (s ResolutionStrategy) ResultStatus() ConflictStatus {
	switch s {
	case StrategySerialize:
		return ConflictSerialized
	case StrategyCoordinate:
		return ConflictCoordinated
	default:
		return ConflictResolved
	}
}

// FileConflict records two features that touch the same files.
// FeatureA always sorts before FeatureB.
type FileConflict struct {
	ID            int64              `json:"id"`
	FeatureA      string             `json:"feature_a"`
	FeatureB      string             `json:"feature_b"`
	Resources     []string           `json:"resources"`
	Risk          RiskLevel          `json:"risk"`
	DetectedPhase Phase              `json:"detected_phase"`
	Status        ConflictStatus     `json:"status"`
	Strategy      ResolutionStrategy `json:"strategy,omitempty"`
	DetectedBy    string             `json:"detected_by,omitempty"`
	DetectedAt    time.Time          `json:"detected_at"`
	ResolvedBy    string             `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
	Notes         string             `json:"notes,omitempty"`
}

// Other returns the feature on the other side of the conflict.
func (c *FileConflict) Other(featureID string) string {
	if c.FeatureA == featureID {
		return c.FeatureB
	}
	return c.FeatureA
}

// CanonicalPair orders two identifiers so the smaller comes first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// AgentInvocation is one timed unit of agent work within a feature phase.
// EndedAt and DurationMS are set exactly once.
type AgentInvocation struct {
	ID         int64      `json:"id"`
	FeatureID  string     `json:"feature_id"`
	Phase      Phase      `json:"phase"`
	Actor      string     `json:"actor"`
	Operation  string     `json:"operation,omitempty"`
	Aids       []string   `json:"aids,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
}

// Duration returns the recorded duration, or zero while still running.
func (a *AgentInvocation) Duration() time.Duration {
	if a.DurationMS == nil {
		return 0
	}
	return time.Duration(*a.DurationMS) * time.Millisecond
}

// PhaseDuration summarizes time spent in a single phase
type PhaseDuration struct {
	Phase          Phase         `json:"phase"`
	Visits         int           `json:"visits"`
	WallTime       time.Duration `json:"wall_time"`
	InvocationTime time.Duration `json:"invocation_time"`
	Invocations    int           `json:"invocations"`
}
