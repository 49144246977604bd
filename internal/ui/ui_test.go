package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{45 * time.Minute, "45m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
		{90*time.Minute + 40*time.Second, "1h31m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHealthReportMarkdown(t *testing.T) {
	evals := []*types.SystemHealthEval{
		{WindowDays: 7, Overall: 76, Health: types.HealthHealthy, Completed: 2, Blocked: 1, InProgress: 1, AvgCycleMinutes: 46},
	}
	alerts := []*types.Alert{
		{ID: 3, FeatureID: "feat-1", Type: types.AlertThrashing, Level: types.AlertWarning, Message: "reworked", AcknowledgedBy: "oncall"},
		{ID: 4, Type: types.AlertSystemDegraded, Level: types.AlertCritical, Message: "dropped"},
	}
	md := HealthReportMarkdown(evals, alerts)
	for _, want := range []string{
		"| 7d | 76.00 | HEALTHY |",
		"| 46m |",
		"**WARNING** `THRASHING` #3 feat-1: reworked _(acknowledged by oncall)_",
		"**CRITICAL** `SYSTEM_DEGRADED` #4 system: dropped",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}

	if md := HealthReportMarkdown(nil, nil); !strings.Contains(md, "None.") {
		t.Errorf("empty alert section not rendered:\n%s", md)
	}
}

func TestRenderStatusReport(t *testing.T) {
	r := &types.FeatureStatusReport{
		Feature: &types.Feature{ID: "feat-1", Name: "Login", Complexity: 2, Severity: types.SeverityMedium,
			CurrentPhase: types.PhaseImplementation, Status: types.FeatureBlocked},
		OpenBlockers: []*types.Blocker{{ID: 7, Type: types.BlockerTechnical, Status: types.BlockerOpen, Title: "flaky CI"}},
		Durations: []*types.PhaseDuration{
			{Phase: types.PhasePlanning, Visits: 1, WallTime: 10 * time.Minute},
			{Phase: types.PhaseDiscovery},
		},
		LatestEval: &types.FeatureEval{Overall: 61.4, Health: types.HealthConcerning},
	}
	out := RenderStatusReport(r)
	for _, want := range []string{"feat-1", "BLOCKED", "#7", "flaky CI", "0 (Planning)", "10m", "61.40", "CONCERNING"} {
		if !strings.Contains(out, want) {
			t.Errorf("status view missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "1 (Discovery)") {
		t.Error("unvisited phases should be omitted from the time table")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"y", true},
		{"", false},
	}
	for _, tt := range tests {
		var out strings.Builder
		if got := Confirm(strings.NewReader(tt.input), &out, "Cancel feature feat-1?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Cancel feature feat-1? [y/N] ") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}
