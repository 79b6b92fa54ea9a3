package query

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/strata/pkg/core"
)

// Warner reports unsupported driver features, once per feature key.
// A nil Warner discards warnings.
type Warner struct {
	driver string
	logger *slog.Logger

	mu   sync.Mutex
	seen map[core.Feature]bool
}

// NewWarner creates a warner for the named driver.
func NewWarner(driver string, logger *slog.Logger) *Warner {
	return &Warner{driver: driver, logger: logger, seen: make(map[core.Feature]bool)}
}

// Warn records that feature was requested but not applied.
func (w *Warner) Warn(feature core.Feature) {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.seen[feature] {
		w.mu.Unlock()
		return
	}
	w.seen[feature] = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Warn("driver feature not supported", "driver", w.driver, "feature", string(feature))
	}
}

// Seen returns the warned feature keys, sorted.
func (w *Warner) Seen() []core.Feature {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Feature, 0, len(w.seen))
	for f := range w.seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
