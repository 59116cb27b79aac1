package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-features/internal/features"
)

// VisualCrossingBaseURL is the timeline endpoint of the Visual Crossing weather API.
const VisualCrossingBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// VisualCrossingProvider implements features.WeatherSource for the Visual Crossing timeline API.
type VisualCrossingProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewVisualCrossingProvider(client *http.Client, baseURL, apiKey string, backoff BackoffConfig) *VisualCrossingProvider {
	if baseURL == "" {
		baseURL = VisualCrossingBaseURL
	}
	return &VisualCrossingProvider{
		name:    "weather",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("visualcrossing"),
	}
}

// FetchWeather returns today's daily observation for the city. Field order of
// the first "days" entry is preserved; an empty "days" array yields an empty row.
func (p *VisualCrossingProvider) FetchWeather(ctx context.Context, city string) (features.WeatherObservation, error) {
	if p.apiKey == "" {
		return features.WeatherObservation{}, upstreamError(p.name, city, 0, errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("unitGroup", "us")
		values.Set("include", "days")
		values.Set("key", p.apiKey)
		values.Set("contentType", "json")

		u := fmt.Sprintf("%s/%s/today?%s", p.baseURL, url.PathEscape(city), values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, attempts, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return features.WeatherObservation{}, upstreamError(p.name, city, attempts, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Days []json.RawMessage `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return features.WeatherObservation{}, upstreamError(p.name, city, attempts, fmt.Errorf("decode response: %w", err))
	}

	obs := features.WeatherObservation{City: city}
	if len(payload.Days) == 0 {
		log.Printf("weather: no days returned for %q", city)
		return obs, nil
	}

	row, err := decodeRow(payload.Days[0])
	if err != nil {
		return features.WeatherObservation{}, upstreamError(p.name, city, attempts, fmt.Errorf("decode day: %w", err))
	}
	obs.Row = row
	return obs, nil
}
