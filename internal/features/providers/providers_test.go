package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-features/internal/features"
	"github.com/i474232898/air-quality-features/internal/store"
)

var fastBackoff = BackoffConfig{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 4*time.Second, backoffDelay(DefaultBackoff, 1))
	assert.Equal(t, 8*time.Second, backoffDelay(DefaultBackoff, 2))
	assert.Equal(t, 10*time.Second, backoffDelay(DefaultBackoff, 3))

	unbounded := BackoffConfig{MaxAttempts: 5, InitialInterval: time.Second}
	assert.Equal(t, 4*time.Second, backoffDelay(unbounded, 3))
}

func TestVisualCrossingFetchWeather(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queryCost":1,"days":[
			{"datetime":"2024-01-20","temp":72,"humidity":65.5,"conditions":"Clear","stations":["KLAX"],"severerisk":null},
			{"datetime":"2024-01-21","temp":70}
		]}`))
	}))
	defer srv.Close()

	p := NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", fastBackoff)
	obs, err := p.FetchWeather(context.Background(), "los angeles")

	require.NoError(t, err)
	assert.Equal(t, "/los angeles/today", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "los angeles", obs.City)
	assert.Equal(t, []string{"datetime", "temp", "humidity", "conditions", "stations", "severerisk"}, obs.Row.Names())

	temp, _ := obs.Row.Get("temp")
	assert.Equal(t, features.KindInt, temp.Kind())
	assert.Equal(t, "72", temp.String())

	stations, _ := obs.Row.Get("stations")
	assert.Equal(t, `["KLAX"]`, stations.String())

	risk, _ := obs.Row.Get("severerisk")
	assert.True(t, risk.IsMissing())
}

func TestVisualCrossingEmptyDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"days":[]}`))
	}))
	defer srv.Close()

	obs, err := NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", fastBackoff).FetchWeather(context.Background(), "nowhere")

	require.NoError(t, err)
	assert.Zero(t, obs.Row.Len())
}

func TestVisualCrossingRetriesThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", fastBackoff).FetchWeather(context.Background(), "paris")

	var upErr *features.UpstreamFetchError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Equal(t, 3, upErr.Attempts)
	assert.ErrorIs(t, err, errServerError)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestVisualCrossingRecoversAfterRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"days":[{"datetime":"2024-01-20","temp":50.5}]}`))
	}))
	defer srv.Close()

	obs, err := NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", fastBackoff).FetchWeather(context.Background(), "paris")

	require.NoError(t, err)
	assert.Equal(t, 2, obs.Row.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestVisualCrossingCircuitOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	single := BackoffConfig{MaxAttempts: 1, InitialInterval: time.Millisecond}
	p := NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", single)
	for i := 0; i < 6; i++ {
		_, err := p.FetchWeather(context.Background(), "paris")
		require.Error(t, err)
	}

	_, err := p.FetchWeather(context.Background(), "paris")

	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, int32(6), atomic.LoadInt32(&hits))
}

func TestProvidersRequireAPIKey(t *testing.T) {
	_, err := NewVisualCrossingProvider(http.DefaultClient, "", "", fastBackoff).FetchWeather(context.Background(), "paris")
	assert.ErrorIs(t, err, errMissingAPIKey)

	_, err = NewWAQIProvider(http.DefaultClient, "", "", fastBackoff).FetchAirQuality(context.Background(), "paris")
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWAQIProvider(srv.Client(), srv.URL, "token", fastBackoff).FetchAirQuality(ctx, "paris")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWAQIFetchAirQuality(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		_, _ = w.Write([]byte(`{"status":"ok","data":{
			"aqi":50,
			"time":{"s":"2024-01-20 13:00:00","tz":"-08:00"},
			"iaqi":{"pm25":{"v":35},"pm10":{"v":40},"co":{"v":0.8},"o3":{"v":30.1}}
		}}`))
	}))
	defer srv.Close()

	obs, err := NewWAQIProvider(srv.Client(), srv.URL, "token", fastBackoff).FetchAirQuality(context.Background(), "paris")

	require.NoError(t, err)
	assert.Equal(t, "/paris/", gotPath)
	assert.Equal(t, "token", gotToken)
	assert.Equal(t, "paris", obs.City)
	assert.Equal(t, "2024-01-20", obs.Date)
	assert.Equal(t, "35", obs.PM25.String())
	assert.Equal(t, "40", obs.PM10.String())
	assert.Equal(t, "0.8", obs.CO.String())
	assert.Equal(t, "30.1", obs.O3.String())
	assert.True(t, obs.NO2.IsMissing())
	assert.True(t, obs.SO2.IsMissing())
}

func TestWAQIMissingPM25(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","data":{"time":{"s":"2024-01-20 13:00:00"},"iaqi":{"pm10":{"v":12}}}}`))
	}))
	defer srv.Close()

	obs, err := NewWAQIProvider(srv.Client(), srv.URL, "token", fastBackoff).FetchAirQuality(context.Background(), "paris")

	require.NoError(t, err)
	assert.True(t, obs.PM25.IsMissing())
	assert.Equal(t, "12", obs.PM10.String())
}

func TestWAQIErrorStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"status":"error","data":"Unknown station"}`))
	}))
	defer srv.Close()

	_, err := NewWAQIProvider(srv.Client(), srv.URL, "token", fastBackoff).FetchAirQuality(context.Background(), "atlantis")

	var upErr *features.UpstreamFetchError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, errStationStatus)
	assert.Contains(t, err.Error(), "Unknown station")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDecodeRow(t *testing.T) {
	row, err := decodeRow(json.RawMessage(`{"z":1,"a":"x","m":true,"n":null,"o":{"k":1}}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m", "n", "o"}, row.Names())
	m, _ := row.Get("m")
	assert.Equal(t, "true", m.String())
	o, _ := row.Get("o")
	assert.Equal(t, `{"k":1}`, o.String())

	_, err = decodeRow(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestUpstreamErrorStatusCode(t *testing.T) {
	err := upstreamError("weather", "paris", 2, newStatusError(http.StatusBadGateway))

	var upErr *features.UpstreamFetchError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusBadGateway, upErr.StatusCode)
	assert.Equal(t, 2, upErr.Attempts)
}

func TestUpstreamHealthy(t *testing.T) {
	assert.True(t, upstreamHealthy(nil))
	assert.True(t, upstreamHealthy(newStatusError(http.StatusBadRequest)))
	assert.True(t, upstreamHealthy(newStatusError(http.StatusNotFound)))
	assert.True(t, upstreamHealthy(context.Canceled))
	assert.False(t, upstreamHealthy(newStatusError(http.StatusTooManyRequests)))
	assert.False(t, upstreamHealthy(newStatusError(http.StatusServiceUnavailable)))
	assert.False(t, upstreamHealthy(errors.New("connection refused")))
}

type okAir struct{}

func (okAir) FetchAirQuality(_ context.Context, city string) (features.AirQualityObservation, error) {
	return features.AirQualityObservation{City: city, Date: "2024-01-20", PM25: features.Int(35)}, nil
}

func TestBadCitiesDoNotBlockLaterCities(t *testing.T) {
	var goodHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		atomic.AddInt32(&goodHits, 1)
		_, _ = w.Write([]byte(`{"days":[{"datetime":"2024-01-20","temp":72}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	fs := store.NewMemoryStore()
	require.NoError(t, fs.EnsureFeatureGroup(ctx, "aq", []string{
		features.FieldRecordID, features.FieldEventTime, "date", "city", "temp", "pm25",
	}))
	svc := features.NewService(features.Dependencies{
		Weather:    NewVisualCrossingProvider(srv.Client(), srv.URL, "secret", fastBackoff),
		AirQuality: okAir{},
		Schema:     fs,
		Records:    fs,
	}, nil, fs)

	summary, err := svc.Collect(ctx, "aq", []string{"bad one", "bad two", "bad three", "good city"})

	require.NoError(t, err)
	statuses := summary.Statuses()
	assert.Contains(t, statuses["bad one"], "after 3 attempts")
	assert.Contains(t, statuses["bad three"], "after 3 attempts")
	assert.Equal(t, features.StatusSuccess, statuses["good city"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&goodHits))
}
