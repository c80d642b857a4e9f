package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/clients/google"
	"github.com/movilityai/tripplanner/internal/clients/weather"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/pipeline"
)

func main() {
	var (
		apiKey     = flag.String("api-key", "", "Google Directions API key (or set GOOGLE_API_KEY env var)")
		weatherKey = flag.String("weather-key", "", "OpenWeatherMap API key (or set OPENWEATHER_API_KEY env var)")
		originStr  = flag.String("origin", "6.250600,-75.568300", "Origin coordinates (lat,lon)")
		destStr    = flag.String("dest", "6.337300,-75.558000", "Destination coordinates (lat,lon)")
		modes      = flag.String("modes", "metro,bus,walk", "Comma-separated preferred modes")
		departure  = flag.String("departure", "", "Departure time (RFC3339), defaults to now")
		asJSON     = flag.Bool("json", false, "Print the full pipeline state as JSON")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Trip Planning Tool\n\n")
		fmt.Printf("Runs one planning request through the pipeline against live APIs.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -api-key=YOUR_KEY\n", os.Args[0])
		fmt.Printf("  %s -origin=\"6.2094,-75.5710\" -dest=\"6.2442,-75.5812\" -modes=driving,metro\n", os.Args[0])
		fmt.Printf("  GOOGLE_API_KEY=your_key %s -json\n", os.Args[0])
		return
	}

	key := *apiKey
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		log.Fatal("Google Directions API key required. Use -api-key flag or GOOGLE_API_KEY env var")
	}

	origin, err := parseLocation(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	destination, err := parseLocation(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	req := pipeline.Request{
		Origin:         origin,
		Destination:    destination,
		PreferredModes: strings.Split(*modes, ","),
	}
	if *departure != "" {
		req.DepartureTime, err = time.Parse(time.RFC3339, *departure)
		if err != nil {
			log.Fatalf("Invalid departure time: %v", err)
		}
	}

	deps := pipeline.Dependencies{
		Planner: routing.NewPlanner(google.NewClient(key), routing.DefaultConfig()),
	}
	wkey := *weatherKey
	if wkey == "" {
		wkey = os.Getenv("OPENWEATHER_API_KEY")
	}
	if wkey != "" {
		deps.Weather = weather.NewClient(wkey)
	}

	state := pipeline.NewOrchestrator(deps, pipeline.DefaultConfig()).Run(context.Background(), req)

	if *asJSON {
		out, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode state: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Trip Planning\n")
	fmt.Printf("=============\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Lat, origin.Lng)
	fmt.Printf("Destination: %.6f, %.6f\n", destination.Lat, destination.Lng)
	fmt.Printf("Weather: %s\n", state.Context.Weather)
	fmt.Printf("\n")

	for i, opt := range state.RouteOptions {
		fmt.Printf("%d. %s: %d min, %.1f km, traffic %s, CO2 %.2f kg, score %.1f\n",
			i+1, opt.ID, opt.DurationMinutes, opt.DistanceKm, opt.TrafficLevel, opt.CO2Kg, opt.Score)
	}
	for _, f := range state.Forecasts {
		fmt.Printf("Forecast %s +%d min: %s (%.2f)\n", f.Zone, f.HorizonMinutes, f.PredictedLevel, f.Confidence)
	}
	for _, w := range state.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	for _, e := range state.Errors {
		fmt.Printf("Error: %s\n", e)
	}

	fmt.Printf("\n%s\n", state.FinalResponse)
	fmt.Printf("Confidence: %.0f%%  (%d ms)\n", state.Confidence*100, state.ProcessingTimeMs)
}

func parseLocation(s string) (geo.Location, error) {
	var loc geo.Location
	if _, err := fmt.Sscanf(s, "%f,%f", &loc.Lat, &loc.Lng); err != nil {
		return geo.Location{}, err
	}
	return loc, nil
}
