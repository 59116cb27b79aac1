package features

import (
	"context"
	"time"
)

// WeatherSource fetches the daily weather observation for a city.
type WeatherSource interface {
	FetchWeather(ctx context.Context, city string) (WeatherObservation, error)
}

// AirQualitySource fetches the current air-quality reading for a city.
type AirQualitySource interface {
	FetchAirQuality(ctx context.Context, city string) (AirQualityObservation, error)
}

// SchemaProvider describes which feature names a feature group accepts.
type SchemaProvider interface {
	AllowedFields(ctx context.Context, featureGroup string) (map[string]struct{}, error)
}

// RecordWriter persists one record atomically.
type RecordWriter interface {
	PutRecord(ctx context.Context, featureGroup string, record []FeatureValue) error
}

// RecordReader reads records back from the feature store.
type RecordReader interface {
	GetRecord(ctx context.Context, featureGroup, recordID string) ([]FeatureValue, error)
	RecentRecordIDs(ctx context.Context, featureGroup string, n int64) ([]string, error)
}

// FeatureStore is the contract every feature-store backend satisfies.
type FeatureStore interface {
	SchemaProvider
	RecordWriter
	RecordReader
	EnsureFeatureGroup(ctx context.Context, featureGroup string, definitions []string) error
}

// MetricsSink accepts metric data points. Errors are logged by callers and never escalated.
type MetricsSink interface {
	Emit(ctx context.Context, m Metric) error
}

// RunHistory keeps recent run summaries.
type RunHistory interface {
	SaveRun(summary RunSummary)
	LatestRun() (RunSummary, error)
	RunsBetween(from, to time.Time) ([]RunSummary, error)
}
