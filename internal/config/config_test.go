package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-features/internal/features"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("WEATHER_API_KEY", "vc-key")
	t.Setenv("AIR_QUALITY_API_KEY", "waqi-key")
	t.Setenv("FEATURE_GROUP_NAME", "air-quality")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"los angeles"}, cfg.Cities)
	assert.Equal(t, "0 12 * * *", cfg.Schedule)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.FetchMaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.FetchRetryInitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.FetchRetryMaxBackoff)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "prometheus", cfg.MetricsSink)
	assert.Equal(t, DefaultFeatureDefinitions, cfg.FeatureDefinitions)
	assert.Equal(t, 90, cfg.RunHistoryMax)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.RunOnStart)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CITIES", "paris, ,oslo ")
	t.Setenv("FEATURE_DEFINITIONS", "record_id,event_time,pm25")
	t.Setenv("FETCH_MAX_ATTEMPTS", "5")
	t.Setenv("FEATURE_STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RUN_ON_START", "true")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"paris", "oslo"}, cfg.Cities)
	assert.Equal(t, []string{"record_id", "event_time", "pm25"}, cfg.FeatureDefinitions)
	assert.Equal(t, 5, cfg.FetchMaxAttempts)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.RunOnStart)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "")
	t.Setenv("AIR_QUALITY_API_KEY", "")
	t.Setenv("FEATURE_GROUP_NAME", "")

	_, err := Load()

	var cerr *features.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.ElementsMatch(t, []string{"WEATHER_API_KEY", "AIR_QUALITY_API_KEY", "FEATURE_GROUP_NAME"}, cerr.Missing)
}

func TestLoadInvalidValues(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FEATURE_STORE_BACKEND", "dynamo")

		_, err := Load()

		var cerr *features.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "FEATURE_STORE_BACKEND failed oneof")
	})

	t.Run("bad duration", func(t *testing.T) {
		setRequired(t)
		t.Setenv("HTTP_TIMEOUT", "soon")

		_, err := Load()

		assert.ErrorContains(t, err, "invalid HTTP_TIMEOUT")
	})

	t.Run("bad bool", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RUN_ON_START", "maybe")

		_, err := Load()

		assert.ErrorContains(t, err, "invalid RUN_ON_START")
	})
}

func TestValidateMongo(t *testing.T) {
	cfg := &AppConfig{
		WeatherAPIKey:      "a",
		AirQualityAPIKey:   "b",
		FeatureGroupName:   "aq",
		FeatureDefinitions: DefaultFeatureDefinitions,
		Cities:             []string{"paris"},
		Schedule:           "0 12 * * *",
		HTTPTimeout:        time.Second,
		FetchMaxAttempts:   1,
		StoreBackend:       "mongo",
		MetricsSink:        "log",
	}

	err := cfg.Validate()

	var cerr *features.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"MONGO_URI", "MONGO_DATABASE"}, cerr.Missing)

	cfg.MongoURI = "mongodb://localhost:27017"
	cfg.MongoDatabase = "featurestore"
	assert.NoError(t, cfg.Validate())
}
