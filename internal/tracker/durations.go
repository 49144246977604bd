package tracker

import (
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

// ComputePhaseDurations replays the transition log to attribute wall time
// to phases. The first visit is Planning, starting at feature creation;
// every non-escalation transition starts a visit to its target phase. The
// last visit ends at completion or cancellation, or at now for features in
// flight. Completed invocation time is summed by the phase it was recorded
// in. Every phase appears in the result, in order.
func ComputePhaseDurations(f *types.Feature, transitions []*types.PhaseTransition, invocations []*types.AgentInvocation, now time.Time) []*types.PhaseDuration {
	out := make([]*types.PhaseDuration, types.PhaseCount)
	for i := range out {
		out[i] = &types.PhaseDuration{Phase: types.PhaseFromIndex(i)}
	}

	end := now
	switch {
	case f.CompletedAt != nil:
		end = *f.CompletedAt
	case f.CancelledAt != nil:
		end = *f.CancelledAt
	}

	phase := types.PhasePlanning
	start := f.CreatedAt
	out[0].Visits = 1
	for _, tr := range transitions {
		if tr.Kind == types.TransitionEscalation {
			continue
		}
		addWall(out, phase, start, tr.CreatedAt)
		phase = tr.ToPhase
		start = tr.CreatedAt
		if i := phase.Index(); i >= 0 {
			out[i].Visits++
		}
	}
	if !phase.IsTerminal() {
		addWall(out, phase, start, end)
	}

	for _, inv := range invocations {
		if inv.DurationMS == nil {
			continue
		}
		if i := inv.Phase.Index(); i >= 0 {
			out[i].InvocationTime += inv.Duration()
			out[i].Invocations++
		}
	}
	return out
}

func addWall(out []*types.PhaseDuration, phase types.Phase, from, to time.Time) {
	i := phase.Index()
	if i < 0 || !to.After(from) {
		return
	}
	out[i].WallTime += to.Sub(from)
}

// TotalInvocationTime sums the durations of completed invocations.
func TotalInvocationTime(invocations []*types.AgentInvocation) time.Duration {
	var total time.Duration
	for _, inv := range invocations {
		total += inv.Duration()
	}
	return total
}

// TotalWallTime sums wall time across phases.
func TotalWallTime(durations []*types.PhaseDuration) time.Duration {
	var total time.Duration
	for _, d := range durations {
		total += d.WallTime
	}
	return total
}
