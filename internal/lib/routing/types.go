package routing

import (
	"context"
	"errors"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/traffic"
)

var (
	// ErrNoRoutes is returned when no mode produced a candidate
	ErrNoRoutes = errors.New("no route candidates available")

	// ErrMissingEndpoints is returned when the origin or destination is empty
	ErrMissingEndpoints = errors.New("missing origin or destination")
)

// TravelMode is the mode family requested from a directions provider
type TravelMode string

const (
	TravelTransit   TravelMode = "transit"
	TravelWalking   TravelMode = "walking"
	TravelBicycling TravelMode = "bicycling"
	TravelDriving   TravelMode = "driving"
)

// Mode is the transport mode of a normalized leg
type Mode string

const (
	ModeMetro   Mode = "metro"
	ModeBus     Mode = "bus"
	ModeTransit Mode = "transit"
	ModeWalk    Mode = "walk"
	ModeBike    Mode = "bike"
	ModeCar     Mode = "car"
)

// DirectionsProvider returns one itinerary for a mode. A nil route with a nil
// error means the provider has no candidate for that mode.
type DirectionsProvider interface {
	GetRoute(ctx context.Context, origin, destination geo.Location, mode TravelMode, departure time.Time) (*DirectionsRoute, error)
}

// DirectionsRoute is the provider-side itinerary before normalization
type DirectionsRoute struct {
	Summary          string
	Legs             []DirectionsLeg
	OverviewPolyline string
	Warnings         []string
}

// DirectionsLeg is one origin-to-destination leg of a provider itinerary
type DirectionsLeg struct {
	DistanceMeters  int
	DurationSeconds int
	// DurationInTrafficSeconds is zero when the provider has no traffic estimate
	DurationInTrafficSeconds int
	Steps                    []DirectionsStep
}

// DirectionsStep is a single provider instruction
type DirectionsStep struct {
	HTMLInstructions string
	TravelMode       string
	DistanceMeters   int
	DurationSeconds  int
	Start            geo.Point
	End              geo.Point
	Transit          *TransitDetails
}

// TransitDetails describes the vehicle for a transit step
type TransitDetails struct {
	LineName      string `json:"line_name"`
	LineShortName string `json:"line_short_name,omitempty"`
	VehicleType   string `json:"vehicle_type"`
	DepartureStop string `json:"departure_stop,omitempty"`
	ArrivalStop   string `json:"arrival_stop,omitempty"`
	NumStops      int    `json:"num_stops,omitempty"`
}

// RouteStep is one normalized leg of an itinerary
type RouteStep struct {
	Instruction     string          `json:"instruction"`
	TransportMode   Mode            `json:"transport_mode"`
	DurationMinutes int             `json:"duration_minutes"`
	DistanceKm      float64         `json:"distance_km"`
	StartLocation   geo.Location    `json:"start_location"`
	EndLocation     geo.Location    `json:"end_location"`
	Transit         *TransitDetails `json:"transit_details,omitempty"`
}

// RouteOption is a ranked candidate itinerary
type RouteOption struct {
	ID              string        `json:"id"`
	Origin          geo.Location  `json:"origin"`
	Destination     geo.Location  `json:"destination"`
	TransportModes  []Mode        `json:"transport_modes"`
	DurationMinutes int           `json:"duration_minutes"`
	DistanceKm      float64       `json:"distance_km"`
	Steps           []RouteStep   `json:"steps"`
	Polyline        []geo.Point   `json:"polyline,omitempty"`
	TrafficLevel    traffic.Level `json:"traffic_level"`
	EstimatedCost   *float64      `json:"estimated_cost,omitempty"`
	CO2Kg           float64       `json:"co2_kg"`
	Confidence      float64       `json:"confidence"`
	Score           float64       `json:"score"`
}

// HasMode reports whether any leg of the route uses the mode
func (r RouteOption) HasMode(m Mode) bool {
	for _, mode := range r.TransportModes {
		if mode == m {
			return true
		}
	}
	return false
}

// Cost returns the estimated cost, zero when unknown
func (r RouteOption) Cost() float64 {
	if r.EstimatedCost == nil {
		return 0
	}
	return *r.EstimatedCost
}

// PlanRequest is the input to Planner.Plan
type PlanRequest struct {
	Origin         geo.Location
	Destination    geo.Location
	PreferredModes []string
	DepartureTime  time.Time
	// Alerts inflate candidate durations by severity
	Alerts []alerts.ZoneAlert
}

// Plan is the ranked result of a planning request
type Plan struct {
	Options        []RouteOption `json:"route_options"`
	Selected       *RouteOption  `json:"selected_route"`
	Alternatives   []RouteOption `json:"alternative_routes"`
	StraightLineKm float64       `json:"straight_line_km"`
}

// Config tunes candidate generation and the cost model
type Config struct {
	MetroFare       float64       `koanf:"metro_fare" yaml:"metro_fare"`
	BusFare         float64       `koanf:"bus_fare" yaml:"bus_fare"`
	DrivingPerKm    float64       `koanf:"driving_per_km" yaml:"driving_per_km"`
	WalkingMaxKm    float64       `koanf:"walking_max_km" yaml:"walking_max_km"`
	MaxAlternatives int           `koanf:"max_alternatives" yaml:"max_alternatives"`
	ProviderTimeout time.Duration `koanf:"provider_timeout" yaml:"provider_timeout"`
}

// DefaultConfig returns the Medellín fare model
func DefaultConfig() Config {
	return Config{
		MetroFare:       2.5,
		BusFare:         2.5,
		DrivingPerKm:    2.0,
		WalkingMaxKm:    3.0,
		MaxAlternatives: 5,
		ProviderTimeout: 10 * time.Second,
	}
}

// DefaultPreferredModes is used when a request names no modes
var DefaultPreferredModes = []string{"metro", "bus", "walk"}
