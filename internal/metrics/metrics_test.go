package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-features/internal/features"
)

func TestPrometheusSinkEmit(t *testing.T) {
	s := NewPrometheusSink("aq")
	ctx := context.Background()
	ts := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Emit(ctx, features.Metric{Name: "WeatherFetchSuccess", Value: 1, Unit: features.UnitCount, Timestamp: ts}))
	require.NoError(t, s.Emit(ctx, features.Metric{Name: "WeatherFetchSuccess", Value: 1, Unit: features.UnitCount, Timestamp: ts}))
	require.NoError(t, s.Emit(ctx, features.Metric{Name: "PipelineDuration", Value: 1.5, Unit: features.UnitSeconds, Timestamp: ts}))
	require.NoError(t, s.Emit(ctx, features.Metric{Name: "Backlog", Value: 7, Unit: "Items", Timestamp: ts}))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.events.WithLabelValues("WeatherFetchSuccess")))
	assert.Equal(t, 7.0, testutil.ToFloat64(s.values.WithLabelValues("Backlog", "Items")))
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(s.lastEmit.WithLabelValues("PipelineDuration")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.durations))
}

func TestPrometheusSinkRejects(t *testing.T) {
	s := NewPrometheusSink("aq")

	assert.ErrorIs(t, s.Emit(context.Background(), features.Metric{Unit: features.UnitCount}), errEmptyName)
	assert.Error(t, s.Emit(context.Background(), features.Metric{Name: "X", Value: -1, Unit: features.UnitCount}))
}

func TestPrometheusSinkHandler(t *testing.T) {
	s := NewPrometheusSink("aq")
	require.NoError(t, s.Emit(context.Background(), features.Metric{Name: "ValidationFailure", Value: 1, Unit: features.UnitCount}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `aq_pipeline_events_total{metric="ValidationFailure"} 1`)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{}.Emit(context.Background(), features.Metric{Name: "PipelineDuration", Value: 0.2, Unit: features.UnitSeconds}))
	assert.ErrorIs(t, LogSink{}.Emit(context.Background(), features.Metric{}), errEmptyName)
}
