// Package workflow implements the feature registry, the phase state machine,
// gating, and the concurrency coordinator on top of a storage backend.
//
// Every mutating method runs inside a single storage transaction and writes
// its audit event in that same transaction, so a rejected call leaves no
// partial record behind.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// Evaluator scores a feature once it completes.
type Evaluator interface {
	ComputeFeatureEval(ctx context.Context, featureID, actor string) (*types.FeatureEval, error)
}

// Service coordinates features through the workflow.
type Service struct {
	store     storage.Storage
	log       *slog.Logger
	now       func() time.Time
	evaluator Evaluator
}

// Option configures a Service.
type Option func(*Service)

// WithEvaluator runs e after every successful completion.
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// New creates a workflow service over store. A nil logger discards output.
func New(store storage.Storage, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Service{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) timestamp() time.Time { return s.now().UTC() }

// activeFeature loads a feature and rejects it when terminal.
func activeFeature(ctx context.Context, r storage.Reader, id, op string) (*types.Feature, error) {
	f, err := r.GetFeature(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status.IsTerminal() {
		return nil, storage.Violation("terminal feature", "cannot %s: %s is %s", op, f.ID, f.Status)
	}
	return f, nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("actor is required")
	}
	return nil
}

// rejected logs an invariant rejection at debug level and passes err through.
func (s *Service) rejected(op, id string, err error) error {
	if storage.IsInvariant(err) || storage.IsCollision(err) {
		s.log.Debug("rejected", "op", op, "id", id, "error", err)
	}
	return err
}
