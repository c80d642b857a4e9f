package weather

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	return args.Get(0).(*http.Response), args.Error(1)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

const rainyResponse = `{
	"coord": {"lat": 6.2442, "lon": -75.5812},
	"weather": [{"main": "Rain", "description": "lluvia ligera"}],
	"main": {"temp": 19.5, "humidity": 88},
	"clouds": {"all": 75},
	"rain": {"1h": 0.6},
	"visibility": 8000,
	"name": "Medellín",
	"dt": 1741782600
}`

const alertsResponse = `{
	"lat": 6.2442,
	"lon": -75.5812,
	"alerts": [
		{
			"sender_name": "IDEAM",
			"event": "Alerta naranja por lluvias",
			"start": 1741780800,
			"end": 1741813200,
			"description": "  Lluvias fuertes en el Valle de Aburrá. ",
			"tags": ["Rain"]
		},
		{
			"sender_name": "SIATA",
			"event": "Aviso de tormenta",
			"start": 1741784400,
			"end": 1741795200,
			"description": "Actividad eléctrica",
			"tags": []
		}
	]
}`

func TestCurrentCondition_Rainy(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, rainyResponse), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP)

	w, err := client.CurrentCondition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, forecast.WeatherRainy, w)

	mockHTTP.AssertExpectations(t)
}

func TestGetCurrentWeather_Parsing(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, rainyResponse), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP)

	data, err := client.GetCurrentWeather(context.Background(), MedellinCenter)
	require.NoError(t, err)
	assert.Equal(t, "Medellín", data.LocationName)
	assert.Equal(t, "lluvia ligera", data.WeatherDescription)
	assert.Equal(t, float32(19.5), data.TemperatureCelsius)
	assert.Equal(t, int32(88), data.HumidityPercent)
	assert.Equal(t, float32(0.6), data.RainLastHourMm)
	assert.Equal(t, int64(1741782600), data.ObservedAt.Unix())
}

func TestCondition(t *testing.T) {
	tests := []struct {
		main     string
		rain     float32
		expected forecast.Weather
	}{
		{"Clear", 0, forecast.WeatherClear},
		{"Clouds", 0, forecast.WeatherCloudy},
		{"Mist", 0, forecast.WeatherCloudy},
		{"Drizzle", 0, forecast.WeatherRainy},
		{"Thunderstorm", 0, forecast.WeatherRainy},
		{"Clear", 1.2, forecast.WeatherRainy},
		{"", 0, forecast.WeatherClear},
	}

	for _, tt := range tests {
		t.Run(tt.main, func(t *testing.T) {
			assert.Equal(t, tt.expected, Condition(&WeatherData{WeatherMain: tt.main, RainLastHourMm: tt.rain}))
		})
	}
}

func TestGetCurrentWeather_RequestFormat(t *testing.T) {
	var capturedRequest *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		capturedRequest = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, rainyResponse), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP).
		WithPoint(geo.Point{Latitude: 6.17, Longitude: -75.59})

	_, err := client.CurrentCondition(context.Background())
	require.NoError(t, err)

	require.NotNil(t, capturedRequest)
	assert.Equal(t, "/data/2.5/weather", capturedRequest.URL.Path)
	q := capturedRequest.URL.Query()
	assert.Equal(t, "6.170000", q.Get("lat"))
	assert.Equal(t, "-75.590000", q.Get("lon"))
	assert.Equal(t, "test-api-key", q.Get("appid"))
	assert.Equal(t, "metric", q.Get("units"))
}

func TestCurrentCondition_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"rate limit", 429, `{}`, "rate limit exceeded"},
		{"unauthorized", 401, `{"cod": 401}`, "invalid API key"},
		{"server error", 500, `oops`, "API error 500: oops"},
		{"invalid json", 200, `{"invalid": json}`, "failed to decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
				createMockResponse(tt.status, tt.body), nil)

			client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP)

			w, err := client.CurrentCondition(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
			assert.Equal(t, forecast.WeatherClear, w)
		})
	}
}

func TestWeatherAlerts(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, alertsResponse), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP)

	got, err := client.WeatherAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "IDEAM_Alerta naranja por lluvias_1741780800", first.ID)
	assert.Equal(t, alerts.TypeWeather, first.Type)
	assert.Equal(t, alerts.SeverityHigh, first.Severity)
	assert.Equal(t, "Lluvias fuertes en el Valle de Aburrá.", first.Description)
	assert.Equal(t, "openweathermap:IDEAM", first.Source)
	assert.True(t, first.IsActive)
	require.NotNil(t, first.Location)
	assert.Equal(t, MedellinCenter, *first.Location)

	assert.Equal(t, alerts.SeverityLow, got[1].Severity)
}

func TestWeatherAlerts_NoAlerts(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"lat": 6.2442, "lon": -75.5812}`), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://api.openweathermap.org", mockHTTP)

	got, err := client.WeatherAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAlertSeverity(t *testing.T) {
	assert.Equal(t, alerts.SeverityCritical, alertSeverity(OpenWeatherAlert{Event: "Alerta roja"}))
	assert.Equal(t, alerts.SeverityHigh, alertSeverity(OpenWeatherAlert{Event: "Flood Watch"}))
	assert.Equal(t, alerts.SeverityMedium, alertSeverity(OpenWeatherAlert{Event: "Yellow warning"}))
	assert.Equal(t, alerts.SeverityLow, alertSeverity(OpenWeatherAlert{Event: "Reduced visibility"}))
}
