package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-features/internal/features"
)

// WAQIBaseURL is the city feed endpoint of the World Air Quality Index API.
const WAQIBaseURL = "https://api.waqi.info/feed"

var errStationStatus = errors.New("air quality api returned error status")

// WAQIProvider implements features.AirQualitySource for the WAQI feed API.
type WAQIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWAQIProvider(client *http.Client, baseURL, apiKey string, backoff BackoffConfig) *WAQIProvider {
	if baseURL == "" {
		baseURL = WAQIBaseURL
	}
	return &WAQIProvider{
		name:    "air quality",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("waqi"),
	}
}

// FetchAirQuality reads the date and per-pollutant iaqi values for the city.
// Pollutants absent from the response are returned as missing values.
func (p *WAQIProvider) FetchAirQuality(ctx context.Context, city string) (features.AirQualityObservation, error) {
	if p.apiKey == "" {
		return features.AirQualityObservation{}, upstreamError(p.name, city, 0, errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("token", p.apiKey)

		u := fmt.Sprintf("%s/%s/?%s", p.baseURL, url.PathEscape(city), values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, attempts, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return features.AirQualityObservation{}, upstreamError(p.name, city, attempts, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return features.AirQualityObservation{}, upstreamError(p.name, city, attempts, fmt.Errorf("decode response: %w", err))
	}

	// WAQI answers 200 with {"status":"error","data":"Unknown station"} for unknown cities.
	if payload.Status != "" && payload.Status != "ok" {
		var reason string
		_ = json.Unmarshal(payload.Data, &reason)
		return features.AirQualityObservation{}, upstreamError(p.name, city, attempts, fmt.Errorf("%w: %s %s", errStationStatus, payload.Status, reason))
	}

	var data struct {
		Time struct {
			S string `json:"s"`
		} `json:"time"`
		IAQI map[string]struct {
			V interface{} `json:"v"`
		} `json:"iaqi"`
	}
	dataDec := json.NewDecoder(bytes.NewReader(payload.Data))
	dataDec.UseNumber()
	if err := dataDec.Decode(&data); err != nil {
		return features.AirQualityObservation{}, upstreamError(p.name, city, attempts, fmt.Errorf("decode data: %w", err))
	}

	date := data.Time.S
	if len(date) > 10 {
		date = date[:10]
	}

	pollutant := func(name string) features.Value {
		entry, ok := data.IAQI[name]
		if !ok {
			return features.Missing()
		}
		return jsonValue(entry.V)
	}

	return features.AirQualityObservation{
		City: city,
		Date: date,
		PM25: pollutant("pm25"),
		PM10: pollutant("pm10"),
		NO2:  pollutant("no2"),
		SO2:  pollutant("so2"),
		CO:   pollutant("co"),
		O3:   pollutant("o3"),
	}, nil
}
