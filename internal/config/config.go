package config

import (
	"time"

	"github.com/movilityai/tripplanner/internal/clients/kmlfeed"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/pipeline"
	"github.com/movilityai/tripplanner/internal/stream/kafka"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Pipeline   pipeline.Config  `koanf:"pipeline" yaml:"pipeline"`
	Routing    routing.Config   `koanf:"routing" yaml:"routing"`
	Directions DirectionsConfig `koanf:"directions" yaml:"directions"`
	Weather    WeatherConfig    `koanf:"weather" yaml:"weather"`
	Alerts     AlertsConfig     `koanf:"alerts" yaml:"alerts"`
	Transit    TransitConfig    `koanf:"transit" yaml:"transit"`
	Postgres   PostgresConfig   `koanf:"postgres" yaml:"postgres"`
	Kafka      kafka.Config     `koanf:"kafka" yaml:"kafka"`
	OpenAI     OpenAIConfig     `koanf:"openai" yaml:"openai"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port            int           `koanf:"port" yaml:"port"`
	CorsOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DirectionsConfig holds Google Directions API settings
type DirectionsConfig struct {
	APIKey   string        `koanf:"api_key" yaml:"api_key"`
	CacheTTL time.Duration `koanf:"cache_ttl" yaml:"cache_ttl"`
	Bucket   time.Duration `koanf:"bucket" yaml:"bucket"`
}

// WeatherConfig holds weather monitoring configuration
type WeatherConfig struct {
	RefreshInterval   time.Duration     `koanf:"refresh_interval" yaml:"refresh_interval"`
	OpenWeatherAPIKey string            `koanf:"openweather_api_key" yaml:"openweather_api_key"`
	Locations         []WeatherLocation `koanf:"locations" yaml:"locations"`
	AlertsEnabled     bool              `koanf:"alerts_enabled" yaml:"alerts_enabled"`
}

// WeatherLocation represents a location to monitor for weather
type WeatherLocation struct {
	ID   string  `koanf:"id" yaml:"id"`
	Name string  `koanf:"name" yaml:"name"`
	Lat  float64 `koanf:"lat" yaml:"lat"`
	Lon  float64 `koanf:"lon" yaml:"lon"`
}

// Point returns the location as a geo point
func (w WeatherLocation) Point() geo.Point {
	return geo.Point{Latitude: w.Lat, Longitude: w.Lon}
}

// AlertsConfig holds alert feed settings
type AlertsConfig struct {
	RefreshInterval time.Duration  `koanf:"refresh_interval" yaml:"refresh_interval"`
	SourceTimeout   time.Duration  `koanf:"source_timeout" yaml:"source_timeout"`
	KMLFeeds        []kmlfeed.Feed `koanf:"kml_feeds" yaml:"kml_feeds"`
}

// TransitConfig holds the GTFS-realtime service alert feed settings
type TransitConfig struct {
	FeedURL string        `koanf:"feed_url" yaml:"feed_url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
	Lines   []string      `koanf:"lines" yaml:"lines"`
}

// PostgresConfig holds the operator alert store settings. An empty URL
// disables the store.
type PostgresConfig struct {
	URL     string `koanf:"url" yaml:"url"`
	Limit   int    `koanf:"limit" yaml:"limit"`
	Migrate bool   `koanf:"migrate" yaml:"migrate"`
}

// OpenAIConfig holds the alert classifier settings. An empty key falls back
// to keyword classification.
type OpenAIConfig struct {
	APIKey string `koanf:"api_key" yaml:"api_key"`
	Model  string `koanf:"model" yaml:"model"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CorsOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: pipeline.DefaultConfig(),
		Routing:  routing.DefaultConfig(),
		Directions: DirectionsConfig{
			CacheTTL: 5 * time.Minute,
			Bucket:   15 * time.Minute,
		},
		Weather: WeatherConfig{
			RefreshInterval: 10 * time.Minute,
			Locations: []WeatherLocation{
				{
					ID:   "medellin-centro",
					Name: "Medellín Centro",
					Lat:  6.2442,
					Lon:  -75.5812,
				},
				{
					ID:   "bello",
					Name: "Bello",
					Lat:  6.3373,
					Lon:  -75.5580,
				},
				{
					ID:   "envigado",
					Name: "Envigado",
					Lat:  6.1759,
					Lon:  -75.5917,
				},
			},
		},
		Alerts: AlertsConfig{
			RefreshInterval: 5 * time.Minute,
			SourceTimeout:   20 * time.Second,
		},
		Transit: TransitConfig{
			Timeout: 15 * time.Second,
			Lines:   []string{"A", "B", "K", "J", "L", "H", "M", "P", "T-A", "1", "2"},
		},
		Postgres: PostgresConfig{
			Limit: 200,
		},
		Kafka: kafka.Config{
			Topic:   "traffic-alerts",
			GroupID: "tripplanner",
			MaxAge:  6 * time.Hour,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
	}
}
