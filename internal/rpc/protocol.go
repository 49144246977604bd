package rpc

import (
	"encoding/json"

	"github.com/untoldecay/flowctl/internal/types"
)

// Operation constants for all flow commands
const (
	OpPing     = "ping"
	OpHealth   = "health"
	OpStatus   = "status"
	OpMetrics  = "metrics"
	OpShutdown = "shutdown"

	OpFeatureCreate      = "feature_create"
	OpFeatureGet         = "feature_get"
	OpFeatureList        = "feature_list"
	OpFeatureStatus      = "feature_status"
	OpFeatureTransitions = "feature_transitions"
	OpPhaseTransition    = "phase_transition"
	OpFeatureComplete    = "feature_complete"
	OpFeatureCancel      = "feature_cancel"
	OpEventList          = "event_list"

	OpBlockerCreate     = "blocker_create"
	OpBlockerResolve    = "blocker_resolve"
	OpBlockerEscalate   = "blocker_escalate"
	OpBlockerInProgress = "blocker_in_progress"
	OpBlockerList       = "blocker_list"

	OpGateEvaluate = "gate_evaluate"
	OpGateList     = "gate_list"

	OpLockAcquire = "lock_acquire"
	OpLockRelease = "lock_release"
	OpLockList    = "lock_list"

	OpConflictDetect  = "conflict_detect"
	OpConflictResolve = "conflict_resolve"
	OpConflictList    = "conflict_list"

	OpInvocationStart = "invocation_start"
	OpInvocationEnd   = "invocation_end"
	OpInvocationList  = "invocation_list"
	OpPhaseDurations  = "phase_durations"

	OpLearningCreate    = "learning_create"
	OpLearningGet       = "learning_get"
	OpLearningList      = "learning_list"
	OpLearningChain     = "learning_chain"
	OpLearningEvolve    = "learning_evolve"
	OpLearningValidate  = "learning_validate"
	OpLearningReference = "learning_reference"

	OpLearningConflictDetect  = "learning_conflict_detect"
	OpLearningConflictFlag    = "learning_conflict_flag"
	OpLearningConflictResolve = "learning_conflict_resolve"
	OpLearningConflictList    = "learning_conflict_list"

	OpPropagationEligibility  = "propagation_eligibility"
	OpPropagationDeclare      = "propagation_declare"
	OpPropagationQueue        = "propagation_queue"
	OpPropagationRecord       = "propagation_record"
	OpPropagationStatus       = "propagation_status"
	OpPropagationPendingSyncs = "propagation_pending_syncs"

	OpEvalFeature      = "eval_feature"
	OpEvalFeatureList  = "eval_feature_list"
	OpEvalSystem       = "eval_system"
	OpEvalAllWindows   = "eval_all_windows"
	OpEvalSystemLatest = "eval_system_latest"

	OpAlertAcknowledge = "alert_acknowledge"
	OpAlertResolve     = "alert_resolve"
	OpAlertList        = "alert_list"
)

// Request represents an RPC request from client to daemon
type Request struct {
	Operation     string          `json:"operation"`
	Args          json.RawMessage `json:"args,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"` // Client version for compatibility checks
}

// Error codes carried by failed responses
const (
	CodeNotFound        = "not_found"
	CodeInvariant       = "invariant"
	CodeCollision       = "collision"
	CodeInvalidArgs     = "invalid_args"
	CodeVersionMismatch = "version_mismatch"
	CodeUnknownOp       = "unknown_operation"
)

// Response represents an RPC response from daemon to client.
// Rule/Detail are set for invariant errors and What/Holder for collisions.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Rule    string          `json:"rule,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	What    string          `json:"what,omitempty"`
	Holder  string          `json:"holder,omitempty"`
}

// IDArgs addresses a feature or learning by ID
type IDArgs struct {
	ID string `json:"id" validate:"required"`
}

// RowIDArgs addresses a blocker, invocation, conflict or alert row
type RowIDArgs struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// FeatureCreateArgs represents arguments for the feature_create operation
type FeatureCreateArgs struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description,omitempty"`
	Complexity  types.Complexity `json:"complexity,omitempty" validate:"omitempty,min=1,max=3"`
	Severity    types.Severity   `json:"severity,omitempty"`
	EpicID      string           `json:"epic_id,omitempty"`
}

// FeatureListArgs represents arguments for the feature_list operation
type FeatureListArgs struct {
	Status *types.FeatureStatus `json:"status,omitempty"`
	Phase  *types.Phase         `json:"phase,omitempty"`
	EpicID string               `json:"epic_id,omitempty"`
	Limit  int                  `json:"limit,omitempty" validate:"gte=0"`
}

// PhaseTransitionArgs represents arguments for the phase_transition operation
type PhaseTransitionArgs struct {
	FeatureID string      `json:"feature_id" validate:"required"`
	Target    types.Phase `json:"target" validate:"required"`
	Note      string      `json:"note,omitempty"`
}

// FeatureCloseArgs represents arguments for feature_complete and feature_cancel
type FeatureCloseArgs struct {
	FeatureID string `json:"feature_id" validate:"required"`
	Note      string `json:"note,omitempty"`
}

// EventListArgs represents arguments for the event_list operation
type EventListArgs struct {
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Limit      int    `json:"limit,omitempty" validate:"gte=0"`
}

// BlockerCreateArgs represents arguments for the blocker_create operation
type BlockerCreateArgs struct {
	FeatureID   string            `json:"feature_id" validate:"required"`
	Phase       types.Phase       `json:"phase,omitempty"`
	Type        types.BlockerType `json:"type" validate:"required"`
	Severity    types.Severity    `json:"severity,omitempty"`
	Title       string            `json:"title" validate:"required"`
	Description string            `json:"description,omitempty"`
}

// BlockerNoteArgs represents arguments for blocker_resolve and blocker_escalate
type BlockerNoteArgs struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Note string `json:"note,omitempty"`
}

// BlockerListArgs represents arguments for the blocker_list operation
type BlockerListArgs struct {
	FeatureID string `json:"feature_id" validate:"required"`
	OpenOnly  bool   `json:"open_only,omitempty"`
}

// GateEvaluateArgs represents arguments for the gate_evaluate operation.
// The approver defaults to the request actor.
type GateEvaluateArgs struct {
	FeatureID string           `json:"feature_id" validate:"required"`
	Name      string           `json:"name" validate:"required"`
	Status    types.GateStatus `json:"status" validate:"required"`
	Approver  string           `json:"approver,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// LockArgs represents arguments for lock_acquire and lock_release
type LockArgs struct {
	FeatureID string         `json:"feature_id" validate:"required"`
	Resource  string         `json:"resource,omitempty"`
	Kind      types.LockKind `json:"kind,omitempty"`
}

// ConflictDetectArgs represents arguments for the conflict_detect operation
type ConflictDetectArgs struct {
	FeatureID string   `json:"feature_id" validate:"required"`
	Paths     []string `json:"paths" validate:"required,min=1,dive,required"`
}

// ConflictResolveArgs represents arguments for the conflict_resolve operation
type ConflictResolveArgs struct {
	ID       int64                    `json:"id" validate:"required,gt=0"`
	Strategy types.ResolutionStrategy `json:"strategy" validate:"required"`
	Notes    string                   `json:"notes,omitempty"`
}

// ConflictListArgs represents arguments for conflict_list and
// learning_conflict_list
type ConflictListArgs struct {
	ID             string `json:"id,omitempty"`
	UnresolvedOnly bool   `json:"unresolved_only,omitempty"`
}

// InvocationStartArgs represents arguments for the invocation_start operation
type InvocationStartArgs struct {
	FeatureID string      `json:"feature_id" validate:"required"`
	Phase     types.Phase `json:"phase,omitempty"`
	Operation string      `json:"operation,omitempty"`
	Aids      []string    `json:"aids,omitempty"`
}

// LearningCreateArgs represents arguments for the learning_create operation
type LearningCreateArgs struct {
	ID         string                 `json:"id,omitempty"`
	Category   types.LearningCategory `json:"category" validate:"required"`
	Title      string                 `json:"title" validate:"required"`
	Content    string                 `json:"content" validate:"required"`
	Confidence *float64               `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Importance types.Severity         `json:"importance,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	FeatureID  string                 `json:"feature_id,omitempty"`
	Phase      types.Phase            `json:"phase,omitempty"`
}

// LearningListArgs represents arguments for the learning_list operation
type LearningListArgs struct {
	Category          *types.LearningCategory `json:"category,omitempty"`
	FeatureID         string                  `json:"feature_id,omitempty"`
	Tag               string                  `json:"tag,omitempty"`
	MinConfidence     float64                 `json:"min_confidence,omitempty" validate:"gte=0,lte=1"`
	IncludeSuperseded bool                    `json:"include_superseded,omitempty"`
	Limit             int                     `json:"limit,omitempty" validate:"gte=0"`
}

// LearningEvolveArgs represents arguments for the learning_evolve operation
type LearningEvolveArgs struct {
	PredecessorID string   `json:"predecessor_id" validate:"required"`
	Title         string   `json:"title,omitempty"`
	Content       string   `json:"content" validate:"required"`
	DeltaSummary  string   `json:"delta_summary,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// LearningConflictFlagArgs represents arguments for learning_conflict_flag
type LearningConflictFlagArgs struct {
	LearningA   string                     `json:"learning_a" validate:"required"`
	LearningB   string                     `json:"learning_b" validate:"required"`
	Kind        types.LearningConflictKind `json:"kind" validate:"required"`
	Description string                     `json:"description,omitempty"`
}

// LearningConflictResolveArgs represents arguments for learning_conflict_resolve
type LearningConflictResolveArgs struct {
	ID       int64                        `json:"id" validate:"required,gt=0"`
	Status   types.LearningConflictStatus `json:"status" validate:"required"`
	WinnerID string                       `json:"winner_id,omitempty"`
	Notes    string                       `json:"notes,omitempty"`
}

// PropagationDeclareArgs represents arguments for propagation_declare
type PropagationDeclareArgs struct {
	LearningID string           `json:"learning_id" validate:"required"`
	Kind       types.TargetKind `json:"kind" validate:"required"`
	Path       string           `json:"path,omitempty"`
	Relevance  float64          `json:"relevance" validate:"gte=0,lte=1"`
}

// PropagationRecordArgs represents arguments for propagation_record
type PropagationRecordArgs struct {
	LearningID string           `json:"learning_id" validate:"required"`
	Kind       types.TargetKind `json:"kind" validate:"required"`
	Path       string           `json:"path,omitempty"`
	Section    string           `json:"section,omitempty"`
}

// SystemEvalArgs represents arguments for eval_system and eval_system_latest
type SystemEvalArgs struct {
	WindowDays int `json:"window_days" validate:"required,gt=0"`
}

// AlertResolveArgs represents arguments for the alert_resolve operation
type AlertResolveArgs struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Note string `json:"note,omitempty"`
}

// AlertListArgs represents arguments for the alert_list operation
type AlertListArgs struct {
	FeatureID      string          `json:"feature_id,omitempty"`
	Type           types.AlertType `json:"type,omitempty"`
	UnresolvedOnly bool            `json:"unresolved_only,omitempty"`
	Limit          int             `json:"limit,omitempty" validate:"gte=0"`
}

// ReleaseLockResult is the payload of a lock_release response
type ReleaseLockResult struct {
	Released bool `json:"released"`
}

// PingResponse is the response for a ping operation
type PingResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// StatusResponse represents the daemon status metadata
type StatusResponse struct {
	Version       string  `json:"version"`
	DatabasePath  string  `json:"database_path"`
	SocketPath    string  `json:"socket_path"`
	PID           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveConns   int32   `json:"active_connections"`
	MaxConns      int     `json:"max_connections"`
}

// HealthResponse is the response for a health check operation
type HealthResponse struct {
	Status         string  `json:"status"` // "healthy", "degraded", "unhealthy"
	Version        string  `json:"version"`
	ClientVersion  string  `json:"client_version,omitempty"`
	Compatible     bool    `json:"compatible"`
	Uptime         float64 `json:"uptime_seconds"`
	DBResponseTime float64 `json:"db_response_ms"`
	ActiveConns    int32   `json:"active_connections"`
	MaxConns       int     `json:"max_connections"`
	MemoryAllocMB  uint64  `json:"memory_alloc_mb"`
	Error          string  `json:"error,omitempty"`
}
