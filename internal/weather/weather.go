// Package weather fetches forecast data from the National Weather Service,
// the upstream payload producer the limiter protects.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.weather.gov"
	userAgent      = "RateLimiterApp/1.0"
	maxPeriods     = 7
)

// Client talks to the NWS API. The zero value is not usable; use NewClient.
type Client struct {
	http    *http.Client
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a weather client with a 10-second request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Period is one forecast entry.
type Period struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	ShortForecast    string `json:"shortForecast"`
	DetailedForecast string `json:"detailedForecast"`
}

// Location describes the resolved forecast point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	State     string  `json:"state"`
}

// Forecast is the formatted forecast response.
type Forecast struct {
	Location Location `json:"location"`
	Periods  []Period `json:"forecast"`
	Updated  string   `json:"updated"`
}

// Conditions is the latest observation from one station.
type Conditions struct {
	Station     string  `json:"station"`
	Timestamp   string  `json:"timestamp"`
	Temperature Reading `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   Reading `json:"windSpeed"`
	Description string  `json:"description"`
}

// Reading is a measured value with its unit code.
type Reading struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Forecast resolves the grid point for the coordinates and returns the next
// periods of the forecast.
func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) (*Forecast, error) {
	var points struct {
		Properties struct {
			Forecast         string `json:"forecast"`
			RelativeLocation struct {
				Properties struct {
					City  string `json:"city"`
					State string `json:"state"`
				} `json:"properties"`
			} `json:"relativeLocation"`
		} `json:"properties"`
	}
	url := fmt.Sprintf("%s/points/%g,%g", c.baseURL, latitude, longitude)
	if err := c.getJSON(ctx, url, &points); err != nil {
		return nil, err
	}

	var forecast struct {
		Properties struct {
			Updated    string   `json:"updated"`
			UpdateTime string   `json:"updateTime"`
			Periods    []Period `json:"periods"`
		} `json:"properties"`
	}
	if err := c.getJSON(ctx, points.Properties.Forecast, &forecast); err != nil {
		return nil, err
	}

	periods := forecast.Properties.Periods
	if len(periods) > maxPeriods {
		periods = periods[:maxPeriods]
	}

	updated := forecast.Properties.Updated
	if updated == "" {
		updated = forecast.Properties.UpdateTime
	}

	return &Forecast{
		Location: Location{
			Latitude:  latitude,
			Longitude: longitude,
			City:      points.Properties.RelativeLocation.Properties.City,
			State:     points.Properties.RelativeLocation.Properties.State,
		},
		Periods: periods,
		Updated: updated,
	}, nil
}

// Current returns the latest observation from a station.
func (c *Client) Current(ctx context.Context, stationID string) (*Conditions, error) {
	var obs struct {
		Properties struct {
			Timestamp   string `json:"timestamp"`
			Temperature struct {
				Value    float64 `json:"value"`
				UnitCode string  `json:"unitCode"`
			} `json:"temperature"`
			RelativeHumidity struct {
				Value float64 `json:"value"`
			} `json:"relativeHumidity"`
			WindSpeed struct {
				Value    float64 `json:"value"`
				UnitCode string  `json:"unitCode"`
			} `json:"windSpeed"`
			TextDescription string `json:"textDescription"`
		} `json:"properties"`
	}
	url := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, stationID)
	if err := c.getJSON(ctx, url, &obs); err != nil {
		return nil, err
	}

	p := obs.Properties
	return &Conditions{
		Station:     stationID,
		Timestamp:   p.Timestamp,
		Temperature: Reading{Value: p.Temperature.Value, Unit: p.Temperature.UnitCode},
		Humidity:    p.RelativeHumidity.Value,
		WindSpeed:   Reading{Value: p.WindSpeed.Value, Unit: p.WindSpeed.UnitCode},
		Description: p.TextDescription,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weather api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
