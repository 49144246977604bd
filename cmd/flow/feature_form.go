package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
	"github.com/untoldecay/flowctl/internal/workflow"
)

// featureFormRawInput holds the raw string values from the form UI.
type featureFormRawInput struct {
	ID          string
	Name        string
	Description string
	Complexity  string // "1", "2" or "3"
	Severity    string
	EpicID      string
}

// featureFormValues holds the parsed form input, testable without a TTY.
type featureFormValues struct {
	ID          string
	Name        string
	Description string
	Complexity  types.Complexity
	Severity    types.Severity
	EpicID      string
}

// parseFeatureFormInput converts raw form input, defaulting unparsable
// complexity to 2 and severity to MEDIUM.
func parseFeatureFormInput(raw *featureFormRawInput) *featureFormValues {
	complexity, err := strconv.Atoi(strings.TrimSpace(raw.Complexity))
	if err != nil || !types.Complexity(complexity).IsValid() {
		complexity = int(types.ComplexityStandard)
	}
	severity := types.Severity(strings.ToUpper(strings.TrimSpace(raw.Severity)))
	if !severity.IsValid() {
		severity = types.SeverityMedium
	}
	return &featureFormValues{
		ID:          strings.TrimSpace(raw.ID),
		Name:        strings.TrimSpace(raw.Name),
		Description: strings.TrimSpace(raw.Description),
		Complexity:  types.Complexity(complexity),
		Severity:    severity,
		EpicID:      strings.TrimSpace(raw.EpicID),
	}
}

func (fv *featureFormValues) params() workflow.CreateParams {
	return workflow.CreateParams{
		ID:          fv.ID,
		Name:        fv.Name,
		Description: fv.Description,
		Complexity:  fv.Complexity,
		Severity:    fv.Severity,
		EpicID:      fv.EpicID,
	}
}

func validateFeatureName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("name is required")
	}
	if len(s) > 200 {
		return fmt.Errorf("name must be 200 characters or less")
	}
	return nil
}

func runFeatureForm() (*featureFormValues, error) {
	if !ui.IsTerminal() {
		return nil, fmt.Errorf("--form needs an interactive terminal")
	}

	raw := &featureFormRawInput{
		Complexity: strconv.Itoa(int(types.ComplexityStandard)),
		Severity:   string(types.SeverityMedium),
	}

	complexityOptions := []huh.Option[string]{
		huh.NewOption("1 - Simple (about an hour)", "1"),
		huh.NewOption("2 - Standard (about three hours, default)", "2"),
		huh.NewOption("3 - Complex (a day or more)", "3"),
	}
	severityOptions := []huh.Option[string]{
		huh.NewOption("Low", string(types.SeverityLow)),
		huh.NewOption("Medium (default)", string(types.SeverityMedium)),
		huh.NewOption("High", string(types.SeverityHigh)),
		huh.NewOption("Critical", string(types.SeverityCritical)),
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("Short name of the feature (required)").
				Placeholder("e.g., Rate limiting for the public API").
				Value(&raw.Name).
				Validate(validateFeatureName),

			huh.NewText().
				Title("Description").
				Description("What is being built and why").
				CharLimit(5000).
				Value(&raw.Description),

			huh.NewSelect[string]().
				Title("Complexity").
				Description("Drives phase depth and the expected duration").
				Options(complexityOptions...).
				Value(&raw.Complexity),

			huh.NewSelect[string]().
				Title("Severity").
				Options(severityOptions...).
				Value(&raw.Severity),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("ID").
				Description("Leave empty to generate one").
				Value(&raw.ID),

			huh.NewInput().
				Title("Epic").
				Description("Parent epic ID (optional)").
				Value(&raw.EpicID),

			huh.NewConfirm().
				Title("Create this feature?").
				Affirmative("Create").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return nil, fmt.Errorf("feature creation cancelled")
		}
		return nil, fmt.Errorf("form error: %w", err)
	}
	if !confirmed {
		return nil, fmt.Errorf("feature creation cancelled")
	}
	return parseFeatureFormInput(raw), nil
}
