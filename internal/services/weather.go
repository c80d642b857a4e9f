package services

import (
	"context"
	"fmt"
	"log"

	"github.com/movilityai/tripplanner/internal/cache"
	"github.com/movilityai/tripplanner/internal/clients/weather"
	"github.com/movilityai/tripplanner/internal/config"
	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// WeatherSource is the subset of the OpenWeatherMap client the service uses
type WeatherSource interface {
	GetCurrentWeather(ctx context.Context, point geo.Point) (*weather.WeatherData, error)
	WeatherAlerts(ctx context.Context) ([]alerts.Alert, error)
}

// LocationWeather is the observation for one configured location
type LocationWeather struct {
	LocationID string              `json:"location_id"`
	Data       weather.WeatherData `json:"data"`
	Condition  forecast.Weather    `json:"condition"`
}

// WeatherService caches observations for the configured locations
type WeatherService struct {
	weatherClient WeatherSource
	cache         *cache.Cache
	config        *config.WeatherConfig
}

// NewWeatherService creates a new WeatherService
func NewWeatherService(weatherClient WeatherSource, cache *cache.Cache, config *config.WeatherConfig) *WeatherService {
	return &WeatherService{
		weatherClient: weatherClient,
		cache:         cache,
		config:        config,
	}
}

// ListWeather returns observations for every configured location
func (s *WeatherService) ListWeather(ctx context.Context) ([]LocationWeather, error) {
	var cachedWeatherData []LocationWeather
	cacheKey := "weather:all"

	found, fresh, err := s.cache.GetStale(cacheKey, &cachedWeatherData)
	if err != nil {
		log.Printf("Cache error: %v", err)
		found = false
	}

	if found && fresh {
		return cachedWeatherData, nil
	}

	log.Printf("Refreshing weather data from OpenWeatherMap API")
	weatherData, err := s.refreshWeatherData(ctx)
	if err != nil {
		if found {
			log.Printf("Refresh failed, returning stale cached weather data: %v", err)
			return cachedWeatherData, nil
		}
		return nil, fmt.Errorf("failed to refresh weather data: %w", err)
	}

	if err := s.cache.Set(cacheKey, weatherData, s.config.RefreshInterval, "weather"); err != nil {
		log.Printf("Failed to cache weather data: %v", err)
	}
	return weatherData, nil
}

// CurrentCondition reports the worst condition across locations
func (s *WeatherService) CurrentCondition(ctx context.Context) (forecast.Weather, error) {
	data, err := s.ListWeather(ctx)
	if err != nil {
		return forecast.WeatherClear, err
	}

	worst := forecast.WeatherClear
	for _, d := range data {
		if conditionRank(d.Condition) > conditionRank(worst) {
			worst = d.Condition
		}
	}
	return worst, nil
}

// ActiveAlerts returns cached weather alerts
func (s *WeatherService) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	var cachedAlerts []alerts.Alert
	cacheKey := "weather:alerts"

	found, fresh, err := s.cache.GetStale(cacheKey, &cachedAlerts)
	if err != nil {
		log.Printf("Cache error: %v", err)
		found = false
	}
	if found && fresh {
		return cachedAlerts, nil
	}

	result, err := s.weatherClient.WeatherAlerts(ctx)
	if err != nil {
		if found {
			log.Printf("Refresh failed, returning stale cached alerts: %v", err)
			return cachedAlerts, nil
		}
		return nil, fmt.Errorf("failed to refresh weather alerts: %w", err)
	}

	if err := s.cache.Set(cacheKey, result, s.config.RefreshInterval, "weather_alerts"); err != nil {
		log.Printf("Failed to cache weather alerts: %v", err)
	}
	return result, nil
}

// Refresh drops the cached observations and fetches them again
func (s *WeatherService) Refresh(ctx context.Context) error {
	s.cache.Delete("weather:all")
	_, err := s.ListWeather(ctx)
	return err
}

// refreshWeatherData fetches every configured location. Locations that fail
// are skipped; it errors only if none succeed.
func (s *WeatherService) refreshWeatherData(ctx context.Context) ([]LocationWeather, error) {
	if s.config.OpenWeatherAPIKey == "" {
		return nil, fmt.Errorf("OpenWeatherMap API key not configured")
	}

	var weatherDataList []LocationWeather
	for _, location := range s.config.Locations {
		data, err := s.weatherClient.GetCurrentWeather(ctx, location.Point())
		if err != nil {
			log.Printf("Failed to process weather for location %s: %v", location.ID, err)
			continue
		}
		data.LocationName = location.Name
		weatherDataList = append(weatherDataList, LocationWeather{
			LocationID: location.ID,
			Data:       *data,
			Condition:  weather.Condition(data),
		})
	}

	if len(weatherDataList) == 0 {
		return nil, fmt.Errorf("no weather data could be processed")
	}
	return weatherDataList, nil
}

func conditionRank(w forecast.Weather) int {
	switch w {
	case forecast.WeatherRainy:
		return 2
	case forecast.WeatherCloudy:
		return 1
	}
	return 0
}
