package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paulmach/orb"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

const (
	nearbySearchPath   = "/place/nearbysearch/json"
	distanceMatrixPath = "/distancematrix/json"
)

// Place is one nearby-search candidate. Location is {lon, lat}.
type Place struct {
	Name     string
	Location orb.Point
}

// MapsClient calls the Google Places nearby-search and Distance Matrix APIs.
type MapsClient struct {
	apiKey        string
	http          *resty.Client
	placesBreaker Breaker
	matrixBreaker Breaker
}

// NewMapsClient returns a client rooted at baseURL, e.g. https://maps.googleapis.com/maps/api.
func NewMapsClient(apiKey, baseURL string, timeout time.Duration) (*MapsClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Google API key is required", ErrInvalidAPIKey)
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &MapsClient{apiKey: apiKey, http: c}, nil
}

// SetCircuitBreakers installs per-endpoint breakers. Either may be nil.
func (c *MapsClient) SetCircuitBreakers(places, matrix Breaker) {
	c.placesBreaker = places
	c.matrixBreaker = matrix
}

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NearbyStations lists places of placeType within radius meters of at.
func (c *MapsClient) NearbyStations(ctx context.Context, at orb.Point, radius int, placeType string) ([]Place, error) {
	var places []Place
	err := guarded(ctx, c.placesBreaker, func() error {
		var apiResp placesResponse
		if err := c.get(ctx, observability.UpstreamPlaces, nearbySearchPath, map[string]string{
			"location": latLng(at),
			"radius":   strconv.Itoa(radius),
			"type":     placeType,
			"key":      c.apiKey,
		}, &apiResp); err != nil {
			return err
		}
		if err := googleStatus(apiResp.Status, apiResp.ErrorMessage); err != nil {
			return err
		}
		places = make([]Place, 0, len(apiResp.Results))
		for _, r := range apiResp.Results {
			places = append(places, Place{
				Name:     r.Name,
				Location: orb.Point{r.Geometry.Location.Lng, r.Geometry.Location.Lat},
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nearby search %s: %w", placeType, err)
	}
	return places, nil
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance *struct {
				Value float64 `json:"value"`
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// WalkingDistance returns the walking route length in meters from origin to dest.
func (c *MapsClient) WalkingDistance(ctx context.Context, origin, dest orb.Point) (float64, error) {
	var meters float64
	err := guarded(ctx, c.matrixBreaker, func() error {
		var apiResp distanceMatrixResponse
		if err := c.get(ctx, observability.UpstreamDistanceMatrix, distanceMatrixPath, map[string]string{
			"origins":      latLng(origin),
			"destinations": latLng(dest),
			"mode":         "walking",
			"key":          c.apiKey,
		}, &apiResp); err != nil {
			return err
		}
		if err := googleStatus(apiResp.Status, apiResp.ErrorMessage); err != nil {
			return err
		}
		if len(apiResp.Rows) == 0 || len(apiResp.Rows[0].Elements) == 0 {
			return fmt.Errorf("%w: empty distance matrix", ErrMalformedResponse)
		}
		el := apiResp.Rows[0].Elements[0]
		if el.Status != "" && el.Status != "OK" {
			return fmt.Errorf("%w: element status %s", ErrNoRoute, el.Status)
		}
		if el.Distance == nil {
			return fmt.Errorf("%w: element has no distance", ErrMalformedResponse)
		}
		meters = el.Distance.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking distance: %w", err)
	}
	return meters, nil
}

func (c *MapsClient) get(ctx context.Context, upstream, path string, params map[string]string, out any) error {
	start := time.Now()

	req := c.http.R().SetContext(ctx).SetQueryParams(params)
	if id := observability.CorrelationID(ctx); id != "" {
		req.SetHeader(correlationHeader, id)
	}

	resp, err := req.Get(path)
	if err != nil {
		observe(upstream, "error", start)
		err = redactKey(err, c.apiKey)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	observe(upstream, statusLabel(resp.StatusCode()), start)

	if err := checkStatus(resp.StatusCode()); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	return nil
}

// googleStatus maps a Google Web Service status field to a sentinel error.
func googleStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "REQUEST_DENIED":
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, message)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return fmt.Errorf("%w: %s", ErrRateLimited, status)
	case "":
		return fmt.Errorf("%w: missing status", ErrMalformedResponse)
	default:
		return fmt.Errorf("%w: status %s %s", ErrUpstreamFailure, status, message)
	}
}

func latLng(p orb.Point) string {
	return strconv.FormatFloat(p.Lat(), 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon(), 'f', -1, 64)
}
