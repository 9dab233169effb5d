package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// CurrentConditions is the subset of the HKO regional weather report the service reads.
type CurrentConditions struct {
	// Temperature is nil when the report carries no station readings.
	Temperature *float64
	IconCodes   []int
	Warnings    []string
	// RainfallMax is nil when the first rainfall district reports no maximum.
	RainfallMax *float64
}

// ForecastDay is one day of the HKO nine-day forecast.
type ForecastDay struct {
	Date        string // YYYYMMDD
	Weather     string
	MinTemp     float64
	MaxTemp     float64
	MinHumidity float64
	MaxHumidity float64
}

// HKOClient calls the Hong Kong Observatory open-data weather endpoint.
type HKOClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker Breaker
}

func NewHKOClient(apiURL string, timeout time.Duration) *HKOClient {
	return &HKOClient{
		apiURL:  apiURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetCircuitBreaker installs an optional breaker around every call.
func (c *HKOClient) SetCircuitBreaker(b Breaker) {
	c.breaker = b
}

type hkoValue struct {
	Value float64 `json:"value"`
}

type rhrreadResponse struct {
	Temperature struct {
		Data []hkoValue `json:"data"`
	} `json:"temperature"`
	Icon           []int           `json:"icon"`
	WarningMessage json.RawMessage `json:"warningMessage"`
	Rainfall       struct {
		Data []struct {
			Max *float64 `json:"max"`
		} `json:"data"`
	} `json:"rainfall"`
}

// CurrentConditions fetches the current regional weather report (dataType=rhrread).
func (c *HKOClient) CurrentConditions(ctx context.Context) (CurrentConditions, error) {
	var apiResp rhrreadResponse
	if err := c.fetch(ctx, observability.UpstreamWeatherCurrent, "rhrread", &apiResp); err != nil {
		return CurrentConditions{}, fmt.Errorf("current weather: %w", err)
	}

	warnings, err := parseWarnings(apiResp.WarningMessage)
	if err != nil {
		return CurrentConditions{}, fmt.Errorf("current weather: %w", err)
	}

	out := CurrentConditions{
		IconCodes: apiResp.Icon,
		Warnings:  warnings,
	}
	if len(apiResp.Temperature.Data) > 0 {
		v := apiResp.Temperature.Data[0].Value
		out.Temperature = &v
	}
	if len(apiResp.Rainfall.Data) > 0 {
		out.RainfallMax = apiResp.Rainfall.Data[0].Max
	}
	return out, nil
}

type fndResponse struct {
	WeatherForecast []struct {
		ForecastDate    string   `json:"forecastDate"`
		ForecastWeather string   `json:"forecastWeather"`
		ForecastMaxtemp hkoValue `json:"forecastMaxtemp"`
		ForecastMintemp hkoValue `json:"forecastMintemp"`
		ForecastMaxrh   hkoValue `json:"forecastMaxrh"`
		ForecastMinrh   hkoValue `json:"forecastMinrh"`
	} `json:"weatherForecast"`
}

// Forecast fetches the nine-day forecast (dataType=fnd).
func (c *HKOClient) Forecast(ctx context.Context) ([]ForecastDay, error) {
	var apiResp fndResponse
	if err := c.fetch(ctx, observability.UpstreamWeatherForecast, "fnd", &apiResp); err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}

	days := make([]ForecastDay, 0, len(apiResp.WeatherForecast))
	for _, f := range apiResp.WeatherForecast {
		days = append(days, ForecastDay{
			Date:        f.ForecastDate,
			Weather:     f.ForecastWeather,
			MinTemp:     f.ForecastMintemp.Value,
			MaxTemp:     f.ForecastMaxtemp.Value,
			MinHumidity: f.ForecastMinrh.Value,
			MaxHumidity: f.ForecastMaxrh.Value,
		})
	}
	return days, nil
}

func (c *HKOClient) fetch(ctx context.Context, upstream, dataType string, out any) error {
	return guarded(ctx, c.breaker, func() error {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := c.buildRequest(reqCtx, dataType)
		if err != nil {
			observe(upstream, "error", start)
			return fmt.Errorf("build request: %w", err)
		}
		setCorrelationID(ctx, req.Header)

		resp, err := c.client.Do(req)
		if err != nil {
			observe(upstream, "error", start)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return fmt.Errorf("request timeout: %w", err)
			}
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		observe(upstream, statusLabel(resp.StatusCode), start)
		if err := checkStatus(resp.StatusCode); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
		}
		return nil
	})
}

func (c *HKOClient) buildRequest(ctx context.Context, dataType string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("dataType", dataType)
	params.Set("lang", "en")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// parseWarnings accepts warningMessage as absent, a string, or an array of strings.
func parseWarnings(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: warningMessage: %v", ErrMalformedResponse, err)
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}
