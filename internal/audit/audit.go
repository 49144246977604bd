// Package audit writes the event trail that accompanies every mutation and
// exports it as append-only JSONL.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// FileName is the export file name stored under .flow/.
const FileName = "events.jsonl"

// Change carries the optional before/after values and comment of an event.
// Empty strings are stored as NULL.
type Change struct {
	Old     string
	New     string
	Comment string
}

// Record appends an event inside the caller's transaction so the state
// change and its audit entry commit together.
func Record(ctx context.Context, tx storage.Transaction, entityType, entityID string, eventType types.EventType, actor string, c Change) error {
	e := &types.Event{
		EntityType: entityType,
		EntityID:   entityID,
		EventType:  eventType,
		Actor:      actor,
		OldValue:   optional(c.Old),
		NewValue:   optional(c.New),
		Comment:    optional(c.Comment),
	}
	if err := tx.AddEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", eventType, entityID, err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EventSource is the subset of storage needed to export events.
type EventSource interface {
	GetEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error)
}

// Export writes every event at or after since to w, one JSON object per
// line, oldest first. It returns the number of events written.
func Export(ctx context.Context, src EventSource, since time.Time, w io.Writer) (int, error) {
	events, err := src.GetEventsSince(ctx, since, 0)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("failed to encode event %d: %w", e.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush events: %w", err)
	}
	return len(events), nil
}

// AppendFile exports events into path, creating it and its directory when
// missing. Existing lines are never rewritten.
func AppendFile(ctx context.Context, src EventSource, since time.Time, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // nolint:gosec // JSONL is meant to be shared
	if err != nil {
		return 0, fmt.Errorf("failed to open events log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Export(ctx, src, since, f)
}
