package store

import (
	"sync"
	"time"

	"github.com/i474232898/air-quality-features/internal/features"
)

// RunHistory is a concurrency-safe, time-ordered list of pipeline run summaries.
type RunHistory struct {
	mu   sync.RWMutex
	runs []features.RunSummary

	// retention configuration
	maxHistory int           // max number of runs kept
	maxAge     time.Duration // optional max age for runs
}

// NewRunHistory creates a RunHistory with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewRunHistory(maxHistory int, maxAge time.Duration) *RunHistory {
	return &RunHistory{
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveRun appends a run summary and enforces retention.
func (h *RunHistory) SaveRun(summary features.RunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append(h.runs, summary)

	// Enforce retention by count.
	if h.maxHistory > 0 && len(h.runs) > h.maxHistory {
		over := len(h.runs) - h.maxHistory
		h.runs = h.runs[over:]
	}

	// Enforce retention by age; the newest run is always kept.
	if h.maxAge > 0 {
		cutoff := time.Now().Add(-h.maxAge)
		i := 0
		for ; i < len(h.runs)-1; i++ {
			if !h.runs[i].StartedAt.Before(cutoff) {
				break
			}
		}
		h.runs = h.runs[i:]
	}
}

// LatestRun returns the most recent run.
func (h *RunHistory) LatestRun() (features.RunSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.runs) == 0 {
		return features.RunSummary{}, features.ErrNoRuns
	}
	return h.runs[len(h.runs)-1], nil
}

// RunsBetween returns all runs started between from and to (inclusive).
func (h *RunHistory) RunsBetween(from, to time.Time) ([]features.RunSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []features.RunSummary
	for _, run := range h.runs {
		if !run.StartedAt.Before(from) && !run.StartedAt.After(to) {
			result = append(result, run)
		}
	}

	if len(result) == 0 {
		return nil, features.ErrNoRuns
	}
	return result, nil
}
