package features

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

var (
	// ErrNoRuns is returned when no run matches a history query.
	ErrNoRuns = errors.New("no pipeline runs recorded")

	errNoRecordReader = errors.New("no record reader configured")
)

// Service runs the pipeline across cities and keeps a history of runs.
type Service struct {
	deps    Dependencies
	history RunHistory
	records RecordReader
}

// NewService creates a new Service. history and records may be nil.
func NewService(deps Dependencies, history RunHistory, records RecordReader) *Service {
	return &Service{
		deps:    deps,
		history: history,
		records: records,
	}
}

// Collect runs the pipeline once per distinct city, in order. Each city gets its own
// Pipeline instance and one city's failure never stops the others. The only
// error returned is a ConfigurationError detected before any stage runs.
func (s *Service) Collect(ctx context.Context, featureGroup string, cities []string) (RunSummary, error) {
	now := s.deps.Now
	if now == nil {
		now = time.Now
	}

	cleaned := make([]string, 0, len(cities))
	seen := make(map[string]bool, len(cities))
	for _, c := range cities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if seen[c] {
			log.Printf("INFO: pipeline: skipping duplicate city %q", c)
			continue
		}
		seen[c] = true
		cleaned = append(cleaned, c)
	}
	if len(cleaned) == 0 {
		return RunSummary{}, &ConfigurationError{Missing: []string{"cities"}}
	}
	if err := s.deps.check(featureGroup); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		FeatureGroup: featureGroup,
		StartedAt:    now().UTC(),
	}
	log.Printf("INFO: pipeline: starting run feature_group=%s cities=%v", featureGroup, cleaned)

	for _, city := range cleaned {
		p, err := NewPipeline(featureGroup, s.deps)
		if err != nil {
			return RunSummary{}, err
		}
		summary.Results = append(summary.Results, p.Run(ctx, city))
	}

	summary.FinishedAt = now().UTC()
	log.Printf("INFO: pipeline: run finished feature_group=%s cities=%d failed=%d",
		featureGroup, len(summary.Results), summary.Failures())

	if s.history != nil {
		s.history.SaveRun(summary)
	}
	return summary, nil
}

// GetRecord reads a stored record back from the feature store.
func (s *Service) GetRecord(ctx context.Context, featureGroup, recordID string) ([]FeatureValue, error) {
	if s.records == nil {
		return nil, errNoRecordReader
	}
	return s.records.GetRecord(ctx, featureGroup, recordID)
}

// RecentRecordIDs lists the newest record ids of a feature group.
func (s *Service) RecentRecordIDs(ctx context.Context, featureGroup string, n int64) ([]string, error) {
	if s.records == nil {
		return nil, errNoRecordReader
	}
	return s.records.RecentRecordIDs(ctx, featureGroup, n)
}

// LatestRun delegates to the run history.
func (s *Service) LatestRun() (RunSummary, error) {
	if s.history == nil {
		return RunSummary{}, ErrNoRuns
	}
	return s.history.LatestRun()
}

// RunsBetween delegates to the run history.
func (s *Service) RunsBetween(from, to time.Time) ([]RunSummary, error) {
	if s.history == nil {
		return nil, ErrNoRuns
	}
	return s.history.RunsBetween(from, to)
}
