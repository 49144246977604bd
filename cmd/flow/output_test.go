package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/flowctl/internal/rpc"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

func TestToYAMLUsesJSONNames(t *testing.T) {
	f := &types.Feature{ID: "feat-1", Name: "Rate limiting", CurrentPhase: types.Phase("2"), Status: types.FeatureInProgress}
	out, err := toYAML(f)
	require.NoError(t, err)
	assert.Contains(t, string(out), "id: feat-1")
	assert.Contains(t, string(out), `current_phase: "2"`)
	assert.Contains(t, string(out), "status: IN_PROGRESS")
	assert.NotContains(t, string(out), "currentphase")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("feature x: %w", storage.ErrNotFound), rpc.CodeNotFound},
		{storage.Violation("phase skip", "no"), rpc.CodeInvariant},
		{fmt.Errorf("acquire: %w", &storage.CollisionError{What: "lock", Holder: "alice"}), rpc.CodeCollision},
		{fmt.Errorf("%w: bad phase", rpc.ErrInvalidArgs), rpc.CodeInvalidArgs},
		{fmt.Errorf("%w: 0.1 vs 0.9", rpc.ErrVersionMismatch), rpc.CodeVersionMismatch},
		{errors.New("disk full"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func TestEventsSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*types.Event{
		{ID: 1, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: 2, CreatedAt: now.Add(-time.Hour)},
		{ID: 3, CreatedAt: now},
	}

	assert.Len(t, eventsSince(events, time.Time{}), 3)

	kept := eventsSince(events, now.Add(-time.Hour))
	require.Len(t, kept, 2)
	assert.Equal(t, int64(2), kept[0].ID)
	assert.Len(t, events, 3, "input slice must not be modified")
}

func TestEventDetail(t *testing.T) {
	old, nu, note := "1", "2", "scoped"
	assert.Equal(t, ": 1 → 2 (scoped)", eventDetail(&types.Event{OldValue: &old, NewValue: &nu, Comment: &note}))
	assert.Equal(t, ": 2", eventDetail(&types.Event{NewValue: &nu}))
	assert.Equal(t, "", eventDetail(&types.Event{}))
}

func TestMatchFeatures(t *testing.T) {
	features := []*types.Feature{
		{ID: "feat-1", Name: "Rate limiting"},
		{ID: "feat-2", Name: "Audit log"},
		{ID: "bug-3", Name: "Login redirect"},
	}
	assert.Len(t, matchFeatures(features, ""), 3)

	got := matchFeatures(features, "audt")
	require.Len(t, got, 1)
	assert.Equal(t, "feat-2", got[0].ID)

	got = matchFeatures(features, "feat")
	assert.Len(t, got, 2)
}

func TestLockTarget(t *testing.T) {
	kind, res := lockTarget([]string{"feat-1"})
	assert.Equal(t, types.LockFeature, kind)
	assert.Equal(t, types.FeatureLockResource, res)

	kind, res = lockTarget([]string{"feat-1", "internal/search.go"})
	assert.Equal(t, types.LockFile, kind)
	assert.Equal(t, "internal/search.go", res)
}

func TestPropagationTarget(t *testing.T) {
	kind, path := propagationTarget([]string{"learn-1", "global_note"})
	assert.Equal(t, types.TargetKind("GLOBAL_NOTE"), kind)
	assert.Empty(t, path)

	kind, path = propagationTarget([]string{"learn-1", "skill", "skills/sqlite.md"})
	assert.Equal(t, types.TargetKind("SKILL"), kind)
	assert.Equal(t, "skills/sqlite.md", path)
}
