// Package evaluation scores features and the system as a whole from the
// histories kept by the workflow, gating, and knowledge layers, and raises
// alerts when health degrades.
package evaluation

import (
	"log/slog"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
)

// DefaultWindows are the rolling system health windows, in days.
var DefaultWindows = []int{7, 30, 90}

// Service computes and stores evaluation snapshots.
type Service struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// New creates an evaluation service over store. A nil logger discards output.
func New(store storage.Storage, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, log: log, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
