package types

import "time"

// Health thresholds on the 0-100 overall score
const (
	HealthyThreshold    = 70.0
	ConcerningThreshold = 50.0
)

// HealthStatus buckets an overall score
type HealthStatus string

// Health statuses
const (
	HealthHealthy    HealthStatus = "HEALTHY"
	HealthConcerning HealthStatus = "CONCERNING"
	HealthCritical   HealthStatus = "CRITICAL"
)

// HealthFor returns the health status of an overall score.
func HealthFor(overall float64) HealthStatus {
	switch {
	case overall >= HealthyThreshold:
		return HealthHealthy
	case overall >= ConcerningThreshold:
		return HealthConcerning
	default:
		return HealthCritical
	}
}

// FeatureEval is an append-only score snapshot for one feature
type FeatureEval struct {
	ID              int64        `json:"id"`
	FeatureID       string       `json:"feature_id"`
	Efficiency      float64      `json:"efficiency"`
	Quality         float64      `json:"quality"`
	Overall         float64      `json:"overall"`
	Health          HealthStatus `json:"health"`
	ActualMinutes   float64      `json:"actual_minutes"`
	ExpectedMinutes float64      `json:"expected_minutes"`
	BackwardCount   int          `json:"backward_count"`
	GatesApproved   int          `json:"gates_approved"`
	GatesTotal      int          `json:"gates_total"`
	BlockerCount    int          `json:"blocker_count"`
	ThrashingPhases []Phase      `json:"thrashing_phases,omitempty"`
	ComputedAt      time.Time    `json:"computed_at"`
	Alerts          []*Alert     `json:"alerts,omitempty"`
}

// SystemHealthEval is an append-only system-wide snapshot over a window
type SystemHealthEval struct {
	ID                int64        `json:"id"`
	WindowDays        int          `json:"window_days"`
	Completed         int          `json:"completed"`
	Blocked           int          `json:"blocked"`
	InProgress        int          `json:"in_progress"`
	AvgCycleMinutes   float64      `json:"avg_cycle_minutes"`
	AvgRework         float64      `json:"avg_rework"`
	OpenKnowledgeConf int          `json:"open_knowledge_conflicts"`
	Efficiency        float64      `json:"efficiency"`
	Quality           float64      `json:"quality"`
	Overall           float64      `json:"overall"`
	Health            HealthStatus `json:"health"`
	ComputedAt        time.Time    `json:"computed_at"`
	Alerts            []*Alert     `json:"alerts,omitempty"`
}

// AlertType classifies an alert
type AlertType string

// Alert types
const (
	AlertHealthDegraded  AlertType = "HEALTH_DEGRADED"
	AlertDurationOverrun AlertType = "DURATION_OVERRUN"
	AlertThrashing       AlertType = "THRASHING"
	AlertSystemDegraded  AlertType = "SYSTEM_DEGRADED"
)

// AlertLevel is the urgency of an alert
type AlertLevel string

// Alert levels
const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is raised by the evaluation engine. FeatureID is empty for
// system-wide alerts.
type Alert struct {
	ID             int64      `json:"id"`
	FeatureID      string     `json:"feature_id,omitempty"`
	Type           AlertType  `json:"type"`
	Level          AlertLevel `json:"level"`
	Message        string     `json:"message"`
	Score          *float64   `json:"score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}

// AlertFilter is used to filter alert listings
type AlertFilter struct {
	FeatureID      string
	Type           AlertType
	UnresolvedOnly bool
	Limit          int
}

// FeatureStatusReport is the aggregate view returned by get-status
type FeatureStatusReport struct {
	Feature      *Feature           `json:"feature"`
	OpenBlockers []*Blocker         `json:"open_blockers"`
	Gates        []*QualityGate     `json:"gates"`
	Locks        []*Lock            `json:"locks"`
	Conflicts    []*FileConflict    `json:"conflicts"`
	Transitions  []*PhaseTransition `json:"transitions"`
	Durations    []*PhaseDuration   `json:"durations"`
	LatestEval   *FeatureEval       `json:"latest_eval,omitempty"`
}
