// Package knowledge maintains the versioned learning base: iteration chains,
// confidence scoring, conflict detection, and propagation to downstream
// targets.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
)

// DefaultSimilarityThreshold is the title similarity above which two
// learnings of the same category are flagged as contradicting.
const DefaultSimilarityThreshold = 0.70

// SimilarityConfigKey is the store config key that overrides the threshold.
const SimilarityConfigKey = "knowledge.similarity-threshold"

// Service owns learnings and their propagation.
type Service struct {
	store     storage.Storage
	log       *slog.Logger
	now       func() time.Time
	threshold func() float64
}

// Option configures a Service.
type Option func(*Service)

// WithSimilarityThreshold supplies the contradiction threshold. fn is called
// on every detection so a reloaded config takes effect immediately.
func WithSimilarityThreshold(fn func() float64) Option {
	return func(s *Service) { s.threshold = fn }
}

// New creates a knowledge service over store. A nil logger discards output.
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

// similarityThreshold resolves the threshold from the option, then the
// store config, then the default.
func (s *Service) similarityThreshold(ctx context.Context, r storage.Reader) (float64, error) {
	if s.threshold != nil {
		if v := s.threshold(); v > 0 && v <= 1 {
			return v, nil
		}
	}
	raw, err := r.GetConfig(ctx, SimilarityConfigKey)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return DefaultSimilarityThreshold, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a number in (0, 1]", SimilarityConfigKey, raw)
	}
	return v, nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("actor is required")
	}
	return nil
}

func (s *Service) rejected(op, id string, err error) error {
	if storage.IsInvariant(err) || storage.IsCollision(err) {
		s.log.Debug("rejected", "op", op, "id", id, "error", err)
	}
	return err
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
