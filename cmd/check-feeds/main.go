package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/movilityai/tripplanner/internal/cache"
	"github.com/movilityai/tripplanner/internal/clients/gtfsrt"
	"github.com/movilityai/tripplanner/internal/clients/kmlfeed"
	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/zones"
	"github.com/movilityai/tripplanner/internal/services"
)

func main() {
	var (
		kmlURL   = flag.String("kml", "", "KML incident feed URL")
		kmlType  = flag.String("kml-type", "incident", "KML feed type: closure, roadworks, incident")
		gtfsURL  = flag.String("gtfs-rt", "", "GTFS-realtime service alerts feed URL")
		showZone = flag.String("zone", "", "Only print alerts correlated to this zone id")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || (*kmlURL == "" && *gtfsURL == "") {
		fmt.Printf("Alert Feed Check Tool\n\n")
		fmt.Printf("Fetches alert feeds, merges them and correlates them to zones.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -kml=https://example.org/cierres.kml -kml-type=closure\n", os.Args[0])
		fmt.Printf("  %s -gtfs-rt=https://example.org/alerts.pb -zone=autopista-norte\n", os.Args[0])
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var sources []services.AlertSource
	if *kmlURL != "" {
		feed := kmlfeed.Feed{Name: "cli", URL: *kmlURL, Type: parseFeedType(*kmlType)}
		sources = append(sources, services.AlertSource{Name: "kml", Provider: kmlfeed.NewFeedParser([]kmlfeed.Feed{feed})})
	}
	if *gtfsURL != "" {
		client := gtfsrt.NewClient(*gtfsURL, 15*time.Second, nil)
		sources = append(sources, services.AlertSource{Name: "gtfs-rt", Provider: client})

		statuses, err := client.LineStatuses(ctx)
		if err != nil {
			fmt.Printf("❌ Line status failed: %v\n", err)
		} else {
			for _, s := range statuses {
				fmt.Printf("Line %s: %s %s\n", s.Line, s.Status, s.Message)
			}
		}
	}

	registry := zones.Default()
	feed := services.NewAlertFeed(registry, nil, cache.NewCache(), services.AlertFeedConfig{}, sources...)

	merged, err := feed.ActiveAlerts(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch alerts: %v", err)
	}
	fmt.Printf("✅ %d alerts after merge\n\n", len(merged))

	var filters *alerts.Filters
	if *showZone != "" {
		filters = &alerts.Filters{ZoneIDs: []string{*showZone}}
	}
	for _, za := range alerts.NewCorrelator(registry).Correlate(merged, nil, filters) {
		peak := ""
		if za.IsPeakHour {
			peak = " [peak]"
		}
		fmt.Printf("[%s] %s (%s): %s%s\n", za.Severity, za.Zone.Name, za.Source, za.Description, peak)
	}
}

func parseFeedType(s string) kmlfeed.FeedType {
	switch s {
	case "closure":
		return kmlfeed.ROAD_CLOSURE
	case "roadworks":
		return kmlfeed.ROADWORKS
	}
	return kmlfeed.TRAFFIC_INCIDENT
}
