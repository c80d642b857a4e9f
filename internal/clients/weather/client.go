package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MedellinCenter is the default point weather is sampled at
var MedellinCenter = geo.Point{Latitude: 6.2442, Longitude: -75.5812}

// Client provides access to OpenWeatherMap API
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
	point      geo.Point
}

// NewClient creates a new OpenWeatherMap API client sampling Medellín
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://api.openweathermap.org", &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client against baseURL using the given transport
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: doer,
		baseURL:    baseURL,
		point:      MedellinCenter,
	}
}

// WithPoint returns a copy of the client that samples another point
func (c *Client) WithPoint(p geo.Point) *Client {
	cp := *c
	cp.point = p
	return &cp
}

// WeatherData is the current observation at a point
type WeatherData struct {
	LocationName       string    `json:"location_name"`
	Coordinates        geo.Point `json:"coordinates"`
	WeatherMain        string    `json:"weather_main"`
	WeatherDescription string    `json:"weather_description"`
	TemperatureCelsius float32   `json:"temperature_celsius"`
	HumidityPercent    int32     `json:"humidity_percent"`
	CloudsPercent      int32     `json:"clouds_percent"`
	RainLastHourMm     float32   `json:"rain_last_hour_mm"`
	ObservedAt         time.Time `json:"observed_at"`
}

// CurrentCondition reduces the current observation to a congestion weather band
func (c *Client) CurrentCondition(ctx context.Context) (forecast.Weather, error) {
	data, err := c.GetCurrentWeather(ctx, c.point)
	if err != nil {
		return forecast.WeatherClear, err
	}
	return Condition(data), nil
}

// Condition maps an observation to clear, cloudy or rainy
func Condition(data *WeatherData) forecast.Weather {
	switch strings.ToLower(data.WeatherMain) {
	case "rain", "drizzle", "thunderstorm", "squall":
		return forecast.WeatherRainy
	case "clouds", "mist", "fog", "haze", "smoke":
		return forecast.WeatherCloudy
	}
	if data.RainLastHourMm > 0 {
		return forecast.WeatherRainy
	}
	return forecast.WeatherClear
}

// GetCurrentWeather retrieves current weather conditions for coordinates
func (c *Client) GetCurrentWeather(ctx context.Context, point geo.Point) (*WeatherData, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", point.Latitude))
	params.Set("lon", fmt.Sprintf("%.6f", point.Longitude))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	params.Set("lang", "es")

	var response OpenWeatherCurrentResponse
	if err := c.get(ctx, "/data/2.5/weather", params, &response); err != nil {
		return nil, err
	}

	return processCurrentWeatherResponse(response), nil
}

// WeatherAlerts returns active weather alerts around the sampled point as
// incident alerts, using One Call API 3.0
func (c *Client) WeatherAlerts(ctx context.Context) ([]alerts.Alert, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", c.point.Latitude))
	params.Set("lon", fmt.Sprintf("%.6f", c.point.Longitude))
	params.Set("appid", c.apiKey)
	params.Set("exclude", "minutely,hourly,daily")

	var response OpenWeatherOneCallResponse
	if err := c.get(ctx, "/data/3.0/onecall", params, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch weather alerts: %w", err)
	}

	return processWeatherAlerts(response.Alerts, c.point), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return fmt.Errorf("rate limit exceeded (60/minute)")
	}
	if resp.StatusCode == 401 {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func processCurrentWeatherResponse(response OpenWeatherCurrentResponse) *WeatherData {
	var weatherMain, weatherDescription string
	if len(response.Weather) > 0 {
		weatherMain = response.Weather[0].Main
		weatherDescription = response.Weather[0].Description
	}

	data := &WeatherData{
		LocationName:       response.Name,
		Coordinates:        geo.Point{Latitude: response.Coord.Lat, Longitude: response.Coord.Lon},
		WeatherMain:        weatherMain,
		WeatherDescription: weatherDescription,
		TemperatureCelsius: response.Main.Temp,
		HumidityPercent:    response.Main.Humidity,
		CloudsPercent:      response.Clouds.All,
		ObservedAt:         time.Unix(response.Dt, 0).UTC(),
	}
	if response.Rain != nil {
		data.RainLastHourMm = response.Rain.OneHour
	}
	return data
}

// processWeatherAlerts converts One Call alerts into active weather incidents
func processWeatherAlerts(raw []OpenWeatherAlert, point geo.Point) []alerts.Alert {
	var out []alerts.Alert
	for _, a := range raw {
		loc := point
		out = append(out, alerts.Alert{
			// sender + event + start identifies an alert across polls
			ID:          fmt.Sprintf("%s_%s_%d", a.SenderName, a.Event, a.Start),
			Title:       a.Event,
			Description: strings.TrimSpace(a.Description),
			Type:        alerts.TypeWeather,
			Severity:    alertSeverity(a),
			Location:    &loc,
			Source:      "openweathermap:" + a.SenderName,
			Timestamp:   time.Unix(a.Start, 0).UTC(),
			IsActive:    true,
		})
	}
	return out
}

// alertSeverity reads warning level words from the event name and tags
func alertSeverity(a OpenWeatherAlert) alerts.Severity {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a.Event + " " + strings.Join(a.Tags, " "))) {
		words[strings.Trim(w, ".,;:()")] = true
	}
	switch {
	case words["roja"] || words["red"] || words["extreme"]:
		return alerts.SeverityCritical
	case words["naranja"] || words["orange"] || words["flood"]:
		return alerts.SeverityHigh
	case words["amarilla"] || words["yellow"]:
		return alerts.SeverityMedium
	}
	return alerts.SeverityLow
}

// OpenWeatherCurrentResponse represents the current weather API response
type OpenWeatherCurrentResponse struct {
	Coord      OpenWeatherCoord     `json:"coord"`
	Weather    []OpenWeatherWeather `json:"weather"`
	Main       OpenWeatherMain      `json:"main"`
	Clouds     OpenWeatherClouds    `json:"clouds"`
	Rain       *OpenWeatherRain     `json:"rain,omitempty"`
	Visibility int32                `json:"visibility"`
	Name       string               `json:"name"`
	Dt         int64                `json:"dt"`
}

// OpenWeatherOneCallResponse represents One Call API response with alerts
type OpenWeatherOneCallResponse struct {
	Lat    float64            `json:"lat"`
	Lon    float64            `json:"lon"`
	Alerts []OpenWeatherAlert `json:"alerts,omitempty"`
}

// OpenWeatherCoord represents coordinates in response
type OpenWeatherCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OpenWeatherWeather represents weather condition
type OpenWeatherWeather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// OpenWeatherMain represents main weather data
type OpenWeatherMain struct {
	Temp     float32 `json:"temp"`
	Humidity int32   `json:"humidity"`
}

// OpenWeatherClouds represents cloud cover
type OpenWeatherClouds struct {
	All int32 `json:"all"`
}

// OpenWeatherRain represents precipitation volume
type OpenWeatherRain struct {
	OneHour float32 `json:"1h"`
}

// OpenWeatherAlert represents weather alert from One Call API
type OpenWeatherAlert struct {
	SenderName  string   `json:"sender_name"`
	Event       string   `json:"event"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
