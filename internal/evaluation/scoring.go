package evaluation

import (
	"math"

	"github.com/untoldecay/flowctl/internal/types"
)

// Component weights
const (
	efficiencyWeight = 0.4
	qualityWeight    = 0.6

	timeWeight   = 0.7
	reworkWeight = 0.3

	gateWeight    = 0.5
	blockerWeight = 0.3
	thrashWeight  = 0.2

	blockerPenalty  = 20.0
	thrashThreshold = 2
)

// TimeScore is 100 while actual stays within expected and falls linearly to
// 0 at twice the expected time.
func TimeScore(actual, expected float64) float64 {
	if expected <= 0 || actual <= expected {
		return 100
	}
	return clamp(100 * (2 - actual/expected))
}

// ReworkScore is 100 / (1 + backward transitions).
func ReworkScore(backward float64) float64 {
	if backward < 0 {
		backward = 0
	}
	return 100 / (1 + backward)
}

// GateScore is the approved share of gates, or 100 with no gates.
func GateScore(approved, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(approved) / float64(total)
}

// BlockerScore loses 20 points per blocker ever raised.
func BlockerScore(blockers int) float64 {
	return clamp(100 - blockerPenalty*float64(blockers))
}

// ThrashingPhases returns the phases that received at least two BACKWARD
// transitions, in phase order.
func ThrashingPhases(transitions []*types.PhaseTransition) []types.Phase {
	var counts [types.PhaseCount]int
	for _, t := range transitions {
		if t.Kind == types.TransitionBackward {
			if i := t.ToPhase.Index(); i >= 0 {
				counts[i]++
			}
		}
	}
	var out []types.Phase
	for i, n := range counts {
		if n >= thrashThreshold {
			out = append(out, types.PhaseFromIndex(i))
		}
	}
	return out
}

// Overall combines efficiency and quality.
func Overall(efficiency, quality float64) float64 {
	return round2(efficiencyWeight*efficiency + qualityWeight*quality)
}

// FeatureInput is everything the feature formulas read.
type FeatureInput struct {
	Complexity    types.Complexity
	ActualMinutes float64
	Transitions   []*types.PhaseTransition
	GatesApproved int
	GatesTotal    int
	BlockersEver  int
}

// ScoreFeature applies the feature formulas and returns an unsaved snapshot.
func ScoreFeature(in FeatureInput) *types.FeatureEval {
	e := &types.FeatureEval{
		ActualMinutes:   round2(in.ActualMinutes),
		ExpectedMinutes: in.Complexity.ExpectedMinutes(),
		GatesApproved:   in.GatesApproved,
		GatesTotal:      in.GatesTotal,
		BlockerCount:    in.BlockersEver,
		ThrashingPhases: ThrashingPhases(in.Transitions),
	}
	for _, t := range in.Transitions {
		if t.Kind == types.TransitionBackward {
			e.BackwardCount++
		}
	}

	e.Efficiency = round2(timeWeight*TimeScore(e.ActualMinutes, e.ExpectedMinutes) +
		reworkWeight*ReworkScore(float64(e.BackwardCount)))

	thrash := 100.0
	if len(e.ThrashingPhases) > 0 {
		thrash = 0
	}
	e.Quality = round2(gateWeight*GateScore(e.GatesApproved, e.GatesTotal) +
		blockerWeight*BlockerScore(e.BlockerCount) +
		thrashWeight*thrash)

	e.Overall = Overall(e.Efficiency, e.Quality)
	e.Health = types.HealthFor(e.Overall)
	return e
}

// SystemInput is everything the system formulas read for one window.
type SystemInput struct {
	Completed         int
	Blocked           int
	InProgress        int
	AvgCycleMinutes   float64
	AvgRework         float64
	OpenKnowledgeConf int
}

// ScoreSystem applies the system formulas. Efficiency weighs average cycle
// time against the standard tier's expectation and average rework; quality
// weighs throughput, the unblocked share of in-flight work, and open
// knowledge conflicts.
func ScoreSystem(in SystemInput) *types.SystemHealthEval {
	e := &types.SystemHealthEval{
		Completed:         in.Completed,
		Blocked:           in.Blocked,
		InProgress:        in.InProgress,
		AvgCycleMinutes:   round2(in.AvgCycleMinutes),
		AvgRework:         round2(in.AvgRework),
		OpenKnowledgeConf: in.OpenKnowledgeConf,
	}

	cycle := 100.0
	if in.Completed > 0 {
		cycle = TimeScore(in.AvgCycleMinutes, types.ComplexityStandard.ExpectedMinutes())
	}
	e.Efficiency = round2(timeWeight*cycle + reworkWeight*ReworkScore(in.AvgRework))

	throughput := 100.0
	if total := in.Completed + in.Blocked + in.InProgress; total > 0 {
		throughput = 100 * float64(in.Completed) / float64(total)
	}
	unblocked := 100.0
	if inflight := in.Blocked + in.InProgress; inflight > 0 {
		unblocked = 100 * float64(in.InProgress) / float64(inflight)
	}
	e.Quality = round2(gateWeight*throughput +
		blockerWeight*unblocked +
		thrashWeight*BlockerScore(in.OpenKnowledgeConf))

	e.Overall = Overall(e.Efficiency, e.Quality)
	e.Health = types.HealthFor(e.Overall)
	return e
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
