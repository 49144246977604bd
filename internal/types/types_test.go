package types

import (
	"testing"
)

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in      string
		want    Phase
		wantErr bool
	}{
		{"0", PhasePlanning, false},
		{"8", PhaseComplete, false},
		{" 3 ", PhaseImplementation, false},
		{"testing", PhaseTesting, false},
		{"Documentation", PhaseDocumentation, false},
		{"9", "", true},
		{"-1", "", true},
		{"ship", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePhase(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePhase(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePhase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPhaseHelpers(t *testing.T) {
	if len(AllPhases()) != PhaseCount {
		t.Fatalf("AllPhases returned %d phases", len(AllPhases()))
	}
	if PhaseImplementation.Label() != "3 (Implementation)" {
		t.Errorf("Label = %q", PhaseImplementation.Label())
	}
	if PhasePlanning.IsTerminal() || !PhaseComplete.IsTerminal() {
		t.Errorf("only Complete is terminal")
	}
	if Phase("x").Index() != -1 {
		t.Errorf("invalid phase index should be -1")
	}
}

func TestClassifyTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     TransitionKind
		ok       bool
	}{
		{PhasePlanning, PhasePlanning, TransitionForward, true},
		{PhasePlanning, PhaseDiscovery, TransitionForward, true},
		{PhaseTesting, PhaseImplementation, TransitionBackward, true},
		{PhaseDeployment, PhasePlanning, TransitionBackward, true},
		{PhasePlanning, PhaseArchitecture, "", false},
		{PhaseImplementation, PhaseDeployment, "", false},
	}
	for _, tt := range tests {
		got, ok := ClassifyTransition(tt.from, tt.to)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ClassifyTransition(%s, %s) = %q, %v; want %q, %v", tt.from, tt.to, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHealthFor(t *testing.T) {
	tests := []struct {
		score float64
		want  HealthStatus
	}{
		{100, HealthHealthy},
		{70, HealthHealthy},
		{69.99, HealthConcerning},
		{50, HealthConcerning},
		{49.9, HealthCritical},
		{0, HealthCritical},
	}
	for _, tt := range tests {
		if got := HealthFor(tt.score); got != tt.want {
			t.Errorf("HealthFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		kind    TargetKind
		path    string
		wantErr bool
	}{
		{TargetGlobalNote, "", false},
		{TargetGlobalNote, "notes.md", true},
		{TargetProjectDoc, "docs/arch.md", false},
		{TargetProjectDoc, "", true},
		{TargetSkill, "  ", true},
		{"WIKI", "x", true},
	}
	for _, tt := range tests {
		err := ValidateTarget(tt.kind, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTarget(%s, %q) error = %v, wantErr %v", tt.kind, tt.path, err, tt.wantErr)
		}
	}
}

func TestFeatureValidate(t *testing.T) {
	valid := Feature{Name: "x", Complexity: ComplexitySimple, Severity: SeverityLow,
		CurrentPhase: PhasePlanning, Status: FeatureInProgress}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid feature rejected: %v", err)
	}

	completedEarly := valid
	completedEarly.Status = FeatureCompleted
	if err := completedEarly.Validate(); err == nil {
		t.Errorf("completed feature outside phase 8 accepted")
	}

	badTier := valid
	badTier.Complexity = 4
	if err := badTier.Validate(); err == nil {
		t.Errorf("complexity 4 accepted")
	}
}

func TestExpectedMinutes(t *testing.T) {
	for c, want := range map[Complexity]float64{ComplexitySimple: 60, ComplexityStandard: 180, ComplexityComplex: 480} {
		if got := c.ExpectedMinutes(); got != want {
			t.Errorf("Complexity(%d).ExpectedMinutes() = %v, want %v", c, got, want)
		}
	}
}

func TestResolutionStrategyStatus(t *testing.T) {
	for s, want := range map[ResolutionStrategy]ConflictStatus{
		StrategySerialize:     ConflictSerialized,
		StrategyCoordinate:    ConflictCoordinated,
		StrategyAllowParallel: ConflictResolved,
	} {
		if got := s.ResultStatus(); got != want {
			t.Errorf("%s.ResultStatus() = %s, want %s", s, got, want)
		}
	}
}
