package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/untoldecay/flowctl/internal/types"
)

// Ayu palette with light/dark variants
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

// Status styles
var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderHealth colors a health status.
func RenderHealth(h types.HealthStatus) string {
	switch h {
	case types.HealthHealthy:
		return RenderPass(string(h))
	case types.HealthConcerning:
		return RenderWarn(string(h))
	default:
		return RenderFail(string(h))
	}
}

// RenderFeatureStatus colors a feature status.
func RenderFeatureStatus(s types.FeatureStatus) string {
	switch s {
	case types.FeatureCompleted:
		return RenderPass(string(s))
	case types.FeatureBlocked:
		return RenderFail(string(s))
	case types.FeatureCancelled:
		return RenderMuted(string(s))
	default:
		return RenderAccent(string(s))
	}
}

// RenderAlertLevel colors an alert level.
func RenderAlertLevel(l types.AlertLevel) string {
	switch l {
	case types.AlertCritical:
		return RenderFail(string(l))
	case types.AlertWarning:
		return RenderWarn(string(l))
	default:
		return RenderMuted(string(l))
	}
}

// RenderPhaseTrack draws the nine phases with the current one highlighted:
// done phases pass-colored, the current one accented, the rest muted.
func RenderPhaseTrack(current types.Phase) string {
	cur := current.Index()
	parts := make([]string, types.PhaseCount)
	for i := range parts {
		label := string(types.PhaseFromIndex(i))
		switch {
		case i < cur:
			parts[i] = RenderPass(label)
		case i == cur:
			parts[i] = AccentStyle.Bold(true).Render("[" + label + "]")
		default:
			parts[i] = RenderMuted(label)
		}
	}
	return strings.Join(parts, RenderMuted("─"))
}
