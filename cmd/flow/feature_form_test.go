package main

import (
	"strings"
	"testing"

	"github.com/untoldecay/flowctl/internal/types"
)

func TestParseFeatureFormInput(t *testing.T) {
	t.Run("BasicParsing", func(t *testing.T) {
		fv := parseFeatureFormInput(&featureFormRawInput{
			ID:          " feat-7 ",
			Name:        "Rate limiting",
			Description: "Token bucket per tenant",
			Complexity:  "3",
			Severity:    "high",
			EpicID:      "epic-1",
		})

		if fv.ID != "feat-7" {
			t.Errorf("expected id 'feat-7', got %q", fv.ID)
		}
		if fv.Name != "Rate limiting" {
			t.Errorf("expected name 'Rate limiting', got %q", fv.Name)
		}
		if fv.Complexity != 3 {
			t.Errorf("expected complexity 3, got %d", fv.Complexity)
		}
		if fv.Severity != types.SeverityHigh {
			t.Errorf("expected severity HIGH, got %q", fv.Severity)
		}
		if fv.EpicID != "epic-1" {
			t.Errorf("expected epic 'epic-1', got %q", fv.EpicID)
		}
	})

	t.Run("ComplexityDefaults", func(t *testing.T) {
		for _, raw := range []string{"", "x", "0", "4"} {
			fv := parseFeatureFormInput(&featureFormRawInput{Name: "n", Complexity: raw})
			if fv.Complexity != types.ComplexityStandard {
				t.Errorf("complexity %q: expected default %d, got %d", raw, types.ComplexityStandard, fv.Complexity)
			}
		}
	})

	t.Run("SeverityDefaults", func(t *testing.T) {
		fv := parseFeatureFormInput(&featureFormRawInput{Name: "n", Severity: "urgent"})
		if fv.Severity != types.SeverityMedium {
			t.Errorf("expected default severity MEDIUM, got %q", fv.Severity)
		}
	})

	t.Run("Params", func(t *testing.T) {
		p := parseFeatureFormInput(&featureFormRawInput{Name: "n", Complexity: "1", Severity: "LOW"}).params()
		if p.Name != "n" || p.Complexity != 1 || p.Severity != types.SeverityLow {
			t.Errorf("unexpected params: %+v", p)
		}
	})
}

func TestValidateFeatureName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"normal", "Rate limiting", false},
		{"empty", "", true},
		{"spaces", "   ", true},
		{"max length", strings.Repeat("a", 200), false},
		{"too long", strings.Repeat("a", 201), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFeatureName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFeatureName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
