package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dpup/prefab"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/movilityai/tripplanner/internal/cache"
	"github.com/movilityai/tripplanner/internal/clients/google"
	"github.com/movilityai/tripplanner/internal/clients/gtfsrt"
	"github.com/movilityai/tripplanner/internal/clients/kmlfeed"
	"github.com/movilityai/tripplanner/internal/clients/weather"
	"github.com/movilityai/tripplanner/internal/config"
	httpdelivery "github.com/movilityai/tripplanner/internal/delivery/http"
	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/lib/zones"
	"github.com/movilityai/tripplanner/internal/pipeline"
	"github.com/movilityai/tripplanner/internal/services"
	"github.com/movilityai/tripplanner/internal/store/postgres"
	"github.com/movilityai/tripplanner/internal/stream/kafka"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	appConfig := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, 10*time.Minute)

	registry := zones.Default()

	// Directions
	if appConfig.Directions.APIKey == "" {
		log.Fatal("Google Directions API key is required in configuration")
	}
	directions := google.NewCachedClient(
		google.NewClient(appConfig.Directions.APIKey),
		cacheInstance, appConfig.Directions.CacheTTL, appConfig.Directions.Bucket,
	)
	planner := routing.NewPlanner(directions, appConfig.Routing)

	// Alert classification
	var classifier alerts.Classifier = alerts.KeywordClassifier{}
	if appConfig.OpenAI.APIKey != "" {
		classifier = alerts.NewCachedClassifier(
			alerts.NewOpenAIClassifier(appConfig.OpenAI.APIKey, appConfig.OpenAI.Model),
			cacheInstance,
		)
		log.Printf("OpenAI classification enabled with content-based caching (model: %s)", appConfig.OpenAI.Model)
	} else {
		log.Printf("OpenAI API key not configured, classifying alerts with keywords")
	}

	// Weather
	var weatherService *services.WeatherService
	if appConfig.Weather.OpenWeatherAPIKey != "" {
		weatherService = services.NewWeatherService(
			weather.NewClient(appConfig.Weather.OpenWeatherAPIKey), cacheInstance, &appConfig.Weather)
	}

	// Alert sources
	var sources []services.AlertSource
	var transitClient *gtfsrt.Client

	if len(appConfig.Alerts.KMLFeeds) > 0 {
		sources = append(sources, services.AlertSource{
			Name:     "kml",
			Provider: kmlfeed.NewFeedParser(appConfig.Alerts.KMLFeeds),
		})
	}

	if appConfig.Transit.FeedURL != "" {
		transitClient = gtfsrt.NewClient(appConfig.Transit.FeedURL, appConfig.Transit.Timeout, appConfig.Transit.Lines)
		sources = append(sources, services.AlertSource{Name: "gtfs-rt", Provider: transitClient})
	}

	if appConfig.Postgres.URL != "" {
		store, closeStore := openAlertStore(ctx, appConfig.Postgres)
		if store != nil {
			defer closeStore()
			sources = append(sources, services.AlertSource{Name: "postgres", Provider: store})
		}
	}

	if len(appConfig.Kafka.Brokers) > 0 {
		stream := kafka.NewAlertStream(appConfig.Kafka)
		go func() {
			if err := stream.Run(ctx); err != nil {
				log.Printf("Alert stream stopped: %v", err)
			}
		}()
		sources = append(sources, services.AlertSource{Name: "kafka", Provider: stream})
	}

	if weatherService != nil && appConfig.Weather.AlertsEnabled {
		sources = append(sources, services.AlertSource{Name: "weather", Provider: weatherService})
	}

	alertFeed := services.NewAlertFeed(registry, classifier, cacheInstance, services.AlertFeedConfig{
		RefreshInterval: appConfig.Alerts.RefreshInterval,
		SourceTimeout:   appConfig.Alerts.SourceTimeout,
	}, sources...)

	refreshers := map[string]services.Refresher{"alerts": alertFeed}
	if weatherService != nil {
		refreshers["weather"] = weatherService
	}
	periodicRefresh := services.NewPeriodicRefreshService(appConfig.Alerts.RefreshInterval, refreshers)
	if err := periodicRefresh.StartPeriodicRefresh(ctx); err != nil {
		log.Printf("Failed to start periodic refresh: %v", err)
	}
	defer periodicRefresh.Stop()

	// Pipeline
	forecaster := forecast.NewForecaster()
	deps := pipeline.Dependencies{
		Registry:   registry,
		Forecaster: forecaster,
		Correlator: alerts.NewCorrelator(registry),
		Planner:    planner,
		Alerts:     alertFeed,
	}
	if weatherService != nil {
		deps.Weather = weatherService
	}
	if transitClient != nil {
		deps.Transit = transitClient
	}
	orchestrator := pipeline.NewOrchestrator(deps, appConfig.Pipeline)

	log.Printf("Trip planner starting")
	log.Printf("Zones loaded: %d", registry.Len())
	log.Printf("Alert sources: %d", len(sources))
	log.Printf("Weather locations: %d", len(appConfig.Weather.Locations))

	// HTTP API
	handler := httpdelivery.NewHandler(httpdelivery.Dependencies{
		Planner:    orchestrator,
		Alerts:     alertFeed,
		Correlator: deps.Correlator,
		Forecaster: forecaster,
		Weather:    deps.Weather,
		Registry:   registry,
	})
	app := httpdelivery.NewApp(handler, appConfig.Server.CorsOrigins)

	go func() {
		addr := fmt.Sprintf(":%d", appConfig.Server.Port)
		log.Printf("HTTP API listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// gRPC health and reflection. Port and gateway settings come from
	// prefab.yaml/env vars.
	healthServer := health.NewServer()
	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", homepageHandler(appConfig.Server.Port)),
	)
	healthpb.RegisterHealthServer(server.ServiceRegistrar(), healthServer)
	healthServer.SetServingStatus("tripplanner", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	healthServer.Shutdown()
	if err := app.ShutdownWithTimeout(appConfig.Server.ShutdownTimeout); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited gracefully")
}

// loadConfig overlays Prefab's config (prefab.yaml and PF__ env vars) on the defaults
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	sections := map[string]interface{}{
		"server":     &appConfig.Server,
		"pipeline":   &appConfig.Pipeline,
		"routing":    &appConfig.Routing,
		"directions": &appConfig.Directions,
		"weather":    &appConfig.Weather,
		"alerts":     &appConfig.Alerts,
		"transit":    &appConfig.Transit,
		"postgres":   &appConfig.Postgres,
		"kafka":      &appConfig.Kafka,
		"openai":     &appConfig.OpenAI,
	}
	for name, target := range sections {
		if err := prefab.Config.Unmarshal(name, target); err != nil {
			log.Fatalf("Failed to unmarshal %s section: %v", name, err)
		}
	}

	return appConfig
}

// openAlertStore connects to Postgres. A failed connection disables the
// store instead of stopping the server.
func openAlertStore(ctx context.Context, cfg config.PostgresConfig) (*postgres.AlertStore, func()) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.URL)
	if err == nil {
		err = pool.Ping(connectCtx)
	}
	if err != nil {
		log.Printf("Warning: Could not connect to database: %v", err)
		log.Println("Running without operator alerts")
		if pool != nil {
			pool.Close()
		}
		return nil, nil
	}
	log.Println("Connected to PostgreSQL")

	store := postgres.NewAlertStore(pool, cfg.Limit)
	if cfg.Migrate {
		if err := store.Migrate(connectCtx); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	return store, pool.Close
}

// homepageHandler points visitors at the HTTP API
func homepageHandler(apiPort int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		text := fmt.Sprintf(`tripplanner

Traffic-aware multi-modal trip planning for the Medellín metropolitan area.

HTTP API on port %d:
  GET  /health
  POST /api/v1/route-planning        - Plan a trip
  GET  /api/v1/alerts                - Active alerts by zone
  GET  /api/v1/alerts/zones          - Alert summary per zone
  GET  /api/v1/traffic-predictions   - Congestion forecasts
  GET  /api/v1/zones.kml             - Zone map layer

gRPC: grpc.health.v1.Health (service "tripplanner")
`, apiPort)

		if _, err := fmt.Fprint(w, text); err != nil {
			slog.Error("Failed to write homepage", "error", err)
		}
	}
}
