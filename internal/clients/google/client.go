package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/routing"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the Google Directions API
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
	language   string
	region     string
}

// NewClient creates a new Google Directions API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://maps.googleapis.com", &http.Client{
		Timeout: 10 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client against baseURL using the given transport
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: doer,
		baseURL:    baseURL,
		language:   "es",
		region:     "CO",
	}
}

// GetRoute requests directions for one travel mode and returns the first
// route. ZERO_RESULTS is not an error: it returns nil, nil.
func (c *Client) GetRoute(ctx context.Context, origin, destination geo.Location, mode routing.TravelMode, departure time.Time) (*routing.DirectionsRoute, error) {
	params := url.Values{}
	params.Set("origin", formatLocation(origin))
	params.Set("destination", formatLocation(destination))
	params.Set("mode", string(mode))
	params.Set("key", c.apiKey)
	params.Set("language", c.language)
	params.Set("region", c.region)
	params.Set("alternatives", "true")

	// departure_time only matters for modes with schedules or live traffic
	if mode == routing.TravelTransit || mode == routing.TravelDriving {
		if departure.IsZero() || departure.Before(time.Now()) {
			params.Set("departure_time", "now")
		} else {
			params.Set("departure_time", strconv.FormatInt(departure.Unix(), 10))
		}
	}
	if mode == routing.TravelDriving {
		params.Set("traffic_model", "best_guess")
	}

	requestURL := fmt.Sprintf("%s/maps/api/directions/json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response DirectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch response.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return nil, nil
	case "OVER_QUERY_LIMIT":
		return nil, fmt.Errorf("rate limit exceeded")
	default:
		return nil, fmt.Errorf("directions error %s: %s", response.Status, response.ErrorMessage)
	}

	if len(response.Routes) == 0 {
		return nil, nil
	}

	return processRoute(response.Routes[0]), nil
}

// processRoute converts the API route into the provider-neutral shape
func processRoute(route DirectionsAPIRoute) *routing.DirectionsRoute {
	out := &routing.DirectionsRoute{
		Summary:          route.Summary,
		OverviewPolyline: route.OverviewPolyline.Points,
		Warnings:         route.Warnings,
	}

	for _, leg := range route.Legs {
		l := routing.DirectionsLeg{
			DistanceMeters:  leg.Distance.Value,
			DurationSeconds: leg.Duration.Value,
		}
		if leg.DurationInTraffic != nil {
			l.DurationInTrafficSeconds = leg.DurationInTraffic.Value
		}

		for _, step := range leg.Steps {
			s := routing.DirectionsStep{
				HTMLInstructions: step.HTMLInstructions,
				TravelMode:       step.TravelMode,
				DistanceMeters:   step.Distance.Value,
				DurationSeconds:  step.Duration.Value,
				Start:            geo.Point{Latitude: step.StartLocation.Lat, Longitude: step.StartLocation.Lng},
				End:              geo.Point{Latitude: step.EndLocation.Lat, Longitude: step.EndLocation.Lng},
			}
			if td := step.TransitDetails; td != nil {
				s.Transit = &routing.TransitDetails{
					LineName:      td.Line.Name,
					LineShortName: td.Line.ShortName,
					VehicleType:   td.Line.Vehicle.Type,
					DepartureStop: td.DepartureStop.Name,
					ArrivalStop:   td.ArrivalStop.Name,
					NumStops:      td.NumStops,
				}
			}
			l.Steps = append(l.Steps, s)
		}

		out.Legs = append(out.Legs, l)
	}

	return out
}

// formatLocation prefers coordinates and falls back to the address text
func formatLocation(l geo.Location) string {
	if l.Lat != 0 || l.Lng != 0 {
		return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
	}
	return l.Address
}

// DirectionsResponse represents the API response structure
type DirectionsResponse struct {
	Status       string               `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Routes       []DirectionsAPIRoute `json:"routes"`
}

// DirectionsAPIRoute represents a single route in the response
type DirectionsAPIRoute struct {
	Summary          string             `json:"summary"`
	Legs             []DirectionsAPILeg `json:"legs"`
	OverviewPolyline struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
	Warnings []string `json:"warnings"`
}

// DirectionsAPILeg represents one leg between waypoints
type DirectionsAPILeg struct {
	Distance          TextValue           `json:"distance"`
	Duration          TextValue           `json:"duration"`
	DurationInTraffic *TextValue          `json:"duration_in_traffic,omitempty"`
	Steps             []DirectionsAPIStep `json:"steps"`
}

// DirectionsAPIStep represents a single instruction within a leg
type DirectionsAPIStep struct {
	HTMLInstructions string             `json:"html_instructions"`
	TravelMode       string             `json:"travel_mode"`
	Distance         TextValue          `json:"distance"`
	Duration         TextValue          `json:"duration"`
	StartLocation    LatLng             `json:"start_location"`
	EndLocation      LatLng             `json:"end_location"`
	TransitDetails   *TransitAPIDetails `json:"transit_details,omitempty"`
}

// TransitAPIDetails describes the transit vehicle taken on a step
type TransitAPIDetails struct {
	Line struct {
		Name      string `json:"name"`
		ShortName string `json:"short_name"`
		Vehicle   struct {
			Type string `json:"type"`
		} `json:"vehicle"`
	} `json:"line"`
	DepartureStop struct {
		Name string `json:"name"`
	} `json:"departure_stop"`
	ArrivalStop struct {
		Name string `json:"name"`
	} `json:"arrival_stop"`
	NumStops int `json:"num_stops"`
}

// TextValue is the API's numeric value paired with display text
type TextValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// LatLng represents coordinates in the response
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
