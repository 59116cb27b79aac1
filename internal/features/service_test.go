package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceHistory struct {
	runs []RunSummary
}

func (h *sliceHistory) SaveRun(s RunSummary) { h.runs = append(h.runs, s) }

func (h *sliceHistory) LatestRun() (RunSummary, error) {
	if len(h.runs) == 0 {
		return RunSummary{}, ErrNoRuns
	}
	return h.runs[len(h.runs)-1], nil
}

func (h *sliceHistory) RunsBetween(from, to time.Time) ([]RunSummary, error) {
	var out []RunSummary
	for _, r := range h.runs {
		if !r.StartedAt.Before(from) && !r.StartedAt.After(to) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRuns
	}
	return out, nil
}

func TestServiceCollect(t *testing.T) {
	t.Run("cities are isolated", func(t *testing.T) {
		f := newFixture()
		f.weather.fail = map[string]error{"atlantis": errors.New("no such city")}
		history := &sliceHistory{}
		svc := NewService(f.deps(), history, nil)

		summary, err := svc.Collect(context.Background(), "aq", []string{"paris", " atlantis ", "", "oslo"})

		require.NoError(t, err)
		statuses := summary.Statuses()
		assert.Len(t, statuses, 3)
		assert.Equal(t, StatusSuccess, statuses["paris"])
		assert.Equal(t, "failed: no such city", statuses["atlantis"])
		assert.Equal(t, StatusSuccess, statuses["oslo"])
		assert.Equal(t, 1, summary.Failures())
		assert.Len(t, f.records.puts, 2)

		require.Len(t, history.runs, 1)
		latest, err := svc.LatestRun()
		require.NoError(t, err)
		assert.Equal(t, summary.StartedAt, latest.StartedAt)
	})

	t.Run("results keep input order", func(t *testing.T) {
		f := newFixture()
		svc := NewService(f.deps(), nil, nil)

		summary, err := svc.Collect(context.Background(), "aq", []string{"b", "a", "c"})

		require.NoError(t, err)
		require.Len(t, summary.Results, 3)
		assert.Equal(t, "b", summary.Results[0].City)
		assert.Equal(t, "a", summary.Results[1].City)
		assert.Equal(t, "c", summary.Results[2].City)
	})

	t.Run("duplicate cities run once", func(t *testing.T) {
		f := newFixture()
		svc := NewService(f.deps(), nil, nil)

		summary, err := svc.Collect(context.Background(), "aq", []string{"paris", "oslo", " paris"})

		require.NoError(t, err)
		require.Len(t, summary.Results, 2)
		assert.Equal(t, "paris", summary.Results[0].City)
		assert.Equal(t, "oslo", summary.Results[1].City)
		assert.Equal(t, 2, f.weather.calls)
		assert.Len(t, summary.Statuses(), len(summary.Results))
	})

	t.Run("no cities", func(t *testing.T) {
		svc := NewService(newFixture().deps(), nil, nil)

		_, err := svc.Collect(context.Background(), "aq", []string{" ", ""})

		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, []string{"cities"}, cerr.Missing)
	})

	t.Run("missing collaborators fail before any stage", func(t *testing.T) {
		f := newFixture()
		deps := f.deps()
		deps.Records = nil
		svc := NewService(deps, nil, nil)

		_, err := svc.Collect(context.Background(), "aq", []string{"paris"})

		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Zero(t, f.weather.calls)
	})
}

func TestServiceWithoutHistory(t *testing.T) {
	svc := NewService(newFixture().deps(), nil, nil)

	_, err := svc.LatestRun()
	assert.ErrorIs(t, err, ErrNoRuns)

	_, err = svc.RunsBetween(fixedNow.Add(-time.Hour), fixedNow)
	assert.ErrorIs(t, err, ErrNoRuns)

	_, err = svc.GetRecord(context.Background(), "aq", "rec-1")
	assert.ErrorIs(t, err, errNoRecordReader)
}

func TestErrorMessages(t *testing.T) {
	up := &UpstreamFetchError{Source: "weather", City: "paris", Attempts: 3, Err: errors.New("server error: status 503")}
	assert.Equal(t, `weather fetch for "paris" failed after 3 attempts: server error: status 503`, up.Error())

	cfg := &ConfigurationError{Missing: []string{"WEATHER_API_KEY"}}
	assert.Equal(t, "missing required configuration: WEATHER_API_KEY", cfg.Error())

	cfg = &ConfigurationError{Reason: "PORT failed numeric"}
	assert.Equal(t, "invalid configuration: PORT failed numeric", cfg.Error())
}
