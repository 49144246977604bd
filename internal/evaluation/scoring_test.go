package evaluation

import (
	"math"
	"testing"

	"github.com/untoldecay/flowctl/internal/types"
)

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestTimeScore(t *testing.T) {
	tests := []struct {
		actual, expected, want float64
	}{
		{30, 60, 100},
		{60, 60, 100},
		{90, 60, 50},
		{120, 60, 0},
		{500, 60, 0},
		{10, 0, 100},
	}
	for _, tt := range tests {
		if got := TimeScore(tt.actual, tt.expected); !near(got, tt.want) {
			t.Errorf("TimeScore(%v, %v) = %v, want %v", tt.actual, tt.expected, got, tt.want)
		}
	}
}

func TestComponentScores(t *testing.T) {
	if got := ReworkScore(0); got != 100 {
		t.Errorf("ReworkScore(0) = %v", got)
	}
	if got := ReworkScore(3); got != 25 {
		t.Errorf("ReworkScore(3) = %v", got)
	}
	if got := GateScore(0, 0); got != 100 {
		t.Errorf("GateScore with no gates = %v, want 100", got)
	}
	if got := GateScore(1, 4); got != 25 {
		t.Errorf("GateScore(1, 4) = %v", got)
	}
	if got := BlockerScore(2); got != 60 {
		t.Errorf("BlockerScore(2) = %v", got)
	}
	if got := BlockerScore(9); got != 0 {
		t.Errorf("BlockerScore(9) = %v, want 0", got)
	}
}

func TestThrashingPhases(t *testing.T) {
	back := func(from, to types.Phase) *types.PhaseTransition {
		return &types.PhaseTransition{FromPhase: from, ToPhase: to, Kind: types.TransitionBackward}
	}
	transitions := []*types.PhaseTransition{
		back("4", "3"),
		{FromPhase: "3", ToPhase: "4", Kind: types.TransitionForward},
		back("4", "3"),
		back("5", "2"),
		{FromPhase: "2", ToPhase: "2", Kind: types.TransitionEscalation},
	}
	got := ThrashingPhases(transitions)
	if len(got) != 1 || got[0] != types.PhaseImplementation {
		t.Errorf("ThrashingPhases = %v, want [3]", got)
	}
}

func TestScoreFeatureHealthyScenario(t *testing.T) {
	e := ScoreFeature(FeatureInput{
		Complexity:    types.ComplexitySimple,
		ActualMinutes: 30,
		GatesApproved: 2,
		GatesTotal:    2,
	})
	if e.ExpectedMinutes != 60 {
		t.Errorf("ExpectedMinutes = %v, want 60", e.ExpectedMinutes)
	}
	if !near(e.Efficiency, 100) || !near(e.Quality, 100) {
		t.Errorf("efficiency %v quality %v, want 100/100", e.Efficiency, e.Quality)
	}
	if e.Overall < 70 || e.Health != types.HealthHealthy {
		t.Errorf("overall %v health %s, want HEALTHY", e.Overall, e.Health)
	}
}

func TestScoreFeatureWeights(t *testing.T) {
	back := &types.PhaseTransition{FromPhase: "2", ToPhase: "1", Kind: types.TransitionBackward}
	e := ScoreFeature(FeatureInput{
		Complexity:    types.ComplexityStandard,
		ActualMinutes: 270,
		Transitions:   []*types.PhaseTransition{back},
		GatesApproved: 1,
		GatesTotal:    2,
		BlockersEver:  1,
	})
	// time 50, rework 50 -> 0.7*50 + 0.3*50 = 50
	if !near(e.Efficiency, 50) {
		t.Errorf("efficiency = %v, want 50", e.Efficiency)
	}
	// gate 50, blocker 80, thrash 100 -> 25 + 24 + 20 = 69
	if !near(e.Quality, 69) {
		t.Errorf("quality = %v, want 69", e.Quality)
	}
	// 0.4*50 + 0.6*69 = 61.4
	if !near(e.Overall, 61.4) || e.Health != types.HealthConcerning {
		t.Errorf("overall = %v (%s), want 61.4 CONCERNING", e.Overall, e.Health)
	}
	if e.BackwardCount != 1 || len(e.ThrashingPhases) != 0 {
		t.Errorf("backward %d thrashing %v", e.BackwardCount, e.ThrashingPhases)
	}
}

func TestScoreSystem(t *testing.T) {
	e := ScoreSystem(SystemInput{Completed: 2, Blocked: 1, InProgress: 1, AvgCycleMinutes: 90})
	// cycle 100, rework 100 -> efficiency 100
	// throughput 50, unblocked 50, knowledge 100 -> 25 + 15 + 20 = 60
	if !near(e.Efficiency, 100) || !near(e.Quality, 60) || !near(e.Overall, 76) {
		t.Errorf("system scores = %v/%v/%v, want 100/60/76", e.Efficiency, e.Quality, e.Overall)
	}

	empty := ScoreSystem(SystemInput{})
	if empty.Overall != 100 || empty.Health != types.HealthHealthy {
		t.Errorf("empty system = %v %s, want 100 HEALTHY", empty.Overall, empty.Health)
	}
}

func TestCrossing(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		prev    *float64
		overall float64
		level   types.AlertLevel
		ok      bool
	}{
		{nil, 90, "", false},
		{nil, 60, types.AlertWarning, true},
		{nil, 40, types.AlertCritical, true},
		{f(80), 65, types.AlertWarning, true},
		{f(65), 60, "", false},
		{f(65), 45, types.AlertCritical, true},
		{f(80), 30, types.AlertCritical, true},
		{f(40), 30, "", false},
		{f(40), 75, "", false},
	}
	for _, tt := range tests {
		level, ok := crossing(tt.prev, tt.overall)
		if ok != tt.ok || level != tt.level {
			t.Errorf("crossing(%v, %v) = %q %v, want %q %v", tt.prev, tt.overall, level, ok, tt.level, tt.ok)
		}
	}
}
