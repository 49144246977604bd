package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const workflowScopeName = "github.com/untoldecay/flowctl/workflow"

// instruments are created once against the global meter provider. Before
// Init they record into the OTel global delegate, which is a no-op until a
// real provider is installed.
type instruments struct {
	transitions  metric.Int64Counter
	blockers     metric.Int64Counter
	validations  metric.Int64Counter
	propagations metric.Int64Counter
	alerts       metric.Int64Counter
	evalScore    metric.Float64Histogram
	invocationMS metric.Int64Histogram
}

var getInstruments = sync.OnceValue(func() *instruments {
	m := Meter(workflowScopeName)
	inst := &instruments{}
	inst.transitions, _ = m.Int64Counter("flow.phase.transitions",
		metric.WithDescription("Phase transitions by kind"))
	inst.blockers, _ = m.Int64Counter("flow.blockers",
		metric.WithDescription("Blocker lifecycle events"))
	inst.validations, _ = m.Int64Counter("flow.learning.validations",
		metric.WithDescription("Learning validations and references"))
	inst.propagations, _ = m.Int64Counter("flow.learning.propagations",
		metric.WithDescription("Recorded propagations by target kind"))
	inst.alerts, _ = m.Int64Counter("flow.alerts",
		metric.WithDescription("Alerts raised by type and level"))
	inst.evalScore, _ = m.Float64Histogram("flow.eval.overall",
		metric.WithDescription("Overall evaluation score"))
	inst.invocationMS, _ = m.Int64Histogram("flow.invocation.duration",
		metric.WithDescription("Agent invocation duration"),
		metric.WithUnit("ms"))
	return inst
})

// RecordTransition counts a phase transition of the given kind.
func RecordTransition(ctx context.Context, kind string) {
	getInstruments().transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("flow.transition.kind", kind)))
}

// RecordBlocker counts a blocker event (created, resolved, escalated).
func RecordBlocker(ctx context.Context, event, blockerType string) {
	getInstruments().blockers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow.blocker.event", event),
		attribute.String("flow.blocker.type", blockerType),
	))
}

// RecordConfidenceBump counts a validation or reference.
func RecordConfidenceBump(ctx context.Context, source string) {
	getInstruments().validations.Add(ctx, 1, metric.WithAttributes(attribute.String("flow.learning.source", source)))
}

// RecordPropagation counts a new propagation record.
func RecordPropagation(ctx context.Context, targetKind string) {
	getInstruments().propagations.Add(ctx, 1, metric.WithAttributes(attribute.String("flow.target.kind", targetKind)))
}

// RecordAlert counts a raised alert.
func RecordAlert(ctx context.Context, alertType, level string) {
	getInstruments().alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow.alert.type", alertType),
		attribute.String("flow.alert.level", level),
	))
}

// RecordEvalScore records an overall score for a feature or system window.
func RecordEvalScore(ctx context.Context, scope string, overall float64) {
	getInstruments().evalScore.Record(ctx, overall, metric.WithAttributes(attribute.String("flow.eval.scope", scope)))
}

// RecordInvocation records a completed invocation duration.
func RecordInvocation(ctx context.Context, phase string, ms int64) {
	getInstruments().invocationMS.Record(ctx, ms, metric.WithAttributes(attribute.String("flow.phase", phase)))
}
