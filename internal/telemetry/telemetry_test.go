package telemetry

import (
	"context"
	"testing"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("FLOW_OTEL_ENABLED", "")
	if Enabled() {
		t.Fatalf("Enabled() = true with FLOW_OTEL_ENABLED unset")
	}
	if err := Init(context.Background(), "flow-test", "0.0.0"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Shutdown(context.Background())

	// Recording against no-op providers must not panic.
	ctx := context.Background()
	RecordTransition(ctx, "FORWARD")
	RecordBlocker(ctx, "created", "TECHNICAL")
	RecordConfidenceBump(ctx, "validate")
	RecordPropagation(ctx, "SKILL")
	RecordAlert(ctx, "THRASHING", "WARNING")
	RecordEvalScore(ctx, "feature", 72.5)
	RecordInvocation(ctx, "3", 1200)
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want b", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}
