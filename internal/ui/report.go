package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

// RenderStatusReport renders the get-status view of one feature.
func RenderStatusReport(r *types.FeatureStatusReport) string {
	f := r.Feature
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s\n", RenderAccent(f.ID), f.Name, RenderFeatureStatus(f.Status))
	fmt.Fprintf(&b, "%s\n", RenderPhaseTrack(f.CurrentPhase))
	fmt.Fprintf(&b, "%s %s   %s %d   %s %s\n",
		RenderMuted("phase"), f.CurrentPhase.Label(),
		RenderMuted("complexity"), f.Complexity,
		RenderMuted("severity"), f.Severity)

	if len(r.OpenBlockers) > 0 {
		b.WriteString("\n" + RenderCategory("Open blockers") + "\n")
		for _, bl := range r.OpenBlockers {
			fmt.Fprintf(&b, "  %s #%d [%s/%s] %s\n", RenderFail(IconFail), bl.ID, bl.Type, bl.Status, bl.Title)
		}
	}

	if len(r.Gates) > 0 {
		b.WriteString("\n" + RenderCategory("Gates") + "\n")
		for _, g := range r.Gates {
			icon := RenderPass(IconPass)
			switch g.Status {
			case types.GateRejected:
				icon = RenderFail(IconFail)
			case types.GatePending:
				icon = RenderMuted(IconSkip)
			}
			fmt.Fprintf(&b, "  %s %s (phase %s, attempt %d) by %s\n", icon, g.Name, g.Phase, g.Attempt, g.Approver)
		}
	}

	if len(r.Locks) > 0 {
		b.WriteString("\n" + RenderCategory("Locks") + "\n")
		for _, l := range r.Locks {
			fmt.Fprintf(&b, "  %s %s held by %s\n", l.Kind, l.Resource, l.Holder)
		}
	}

	if len(r.Conflicts) > 0 {
		b.WriteString("\n" + RenderCategory("File conflicts") + "\n")
		for _, c := range r.Conflicts {
			other := c.FeatureA
			if other == f.ID {
				other = c.FeatureB
			}
			fmt.Fprintf(&b, "  %s #%d with %s: %s (%s risk)\n", RenderWarn(IconWarn), c.ID, other,
				strings.Join(c.Resources, ", "), c.Risk)
		}
	}

	if rows := durationRows(r.Durations); len(rows) > 0 {
		b.WriteString("\n" + RenderCategory("Time") + "\n")
		b.WriteString(NewTable([]string{"Phase", "Visits", "Wall", "Agent", "Runs"}, rows))
		b.WriteString("\n")
	}

	if e := r.LatestEval; e != nil {
		fmt.Fprintf(&b, "\n%s %.2f %s  (efficiency %.2f, quality %.2f)\n",
			RenderMuted("health"), e.Overall, RenderHealth(e.Health), e.Efficiency, e.Quality)
	}
	return b.String()
}

func durationRows(ds []*types.PhaseDuration) [][]string {
	var rows [][]string
	for _, d := range ds {
		if d.Visits == 0 && d.Invocations == 0 {
			continue
		}
		rows = append(rows, []string{
			d.Phase.Label(),
			fmt.Sprint(d.Visits),
			FormatDuration(d.WallTime),
			FormatDuration(d.InvocationTime),
			fmt.Sprint(d.Invocations),
		})
	}
	return rows
}

// FormatDuration renders a duration at minute precision ("2h05m", "45m",
// "30s" below a minute).
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

// HealthReportMarkdown renders system snapshots and open alerts as a
// markdown document for RenderMarkdown.
func HealthReportMarkdown(evals []*types.SystemHealthEval, alerts []*types.Alert) string {
	var b strings.Builder
	b.WriteString("# System health\n\n")
	b.WriteString("| Window | Overall | Health | Efficiency | Quality | Done | Blocked | Active | Avg cycle | Avg rework | Open conflicts |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|\n")
	for _, e := range evals {
		fmt.Fprintf(&b, "| %dd | %.2f | %s | %.2f | %.2f | %d | %d | %d | %s | %.2f | %d |\n",
			e.WindowDays, e.Overall, e.Health, e.Efficiency, e.Quality,
			e.Completed, e.Blocked, e.InProgress,
			FormatDuration(time.Duration(e.AvgCycleMinutes*float64(time.Minute))),
			e.AvgRework, e.OpenKnowledgeConf)
	}

	b.WriteString("\n## Open alerts\n\n")
	if len(alerts) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	for _, a := range alerts {
		scope := a.FeatureID
		if scope == "" {
			scope = "system"
		}
		ack := ""
		if a.AcknowledgedBy != "" {
			ack = fmt.Sprintf(" _(acknowledged by %s)_", a.AcknowledgedBy)
		}
		fmt.Fprintf(&b, "- **%s** `%s` #%d %s: %s%s\n", a.Level, a.Type, a.ID, scope, a.Message, ack)
	}
	return b.String()
}
