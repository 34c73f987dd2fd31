package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// OpenWeatherProvider implements parking.WeatherProvider against
// OpenWeatherMap's current-weather-by-coordinate endpoint.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, coord parking.Coordinate) (parking.WeatherReading, error) {
	if p.apiKey == "" {
		return parking.WeatherReading{}, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", coord.Latitude))
		values.Set("lon", fmt.Sprintf("%f", coord.Longitude))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return parking.WeatherReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return parking.WeatherReading{}, err
	}

	return parking.WeatherReading{
		Temperature: payload.Main.Temp,
		Condition:   mapOpenWeatherCondition(payload.Weather),
	}, nil
}

func mapOpenWeatherCondition(items []struct {
	Main string `json:"main"`
}) parking.Condition {
	if len(items) == 0 {
		return parking.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return parking.ConditionClear
	case "Clouds":
		return parking.ConditionCloudy
	case "Rain", "Drizzle":
		return parking.ConditionRain
	case "Snow":
		return parking.ConditionSnow
	case "Thunderstorm":
		return parking.ConditionStorm
	default:
		return parking.ConditionUnknown
	}
}

var _ parking.WeatherProvider = (*OpenWeatherProvider)(nil)
