package pipeline

import (
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/recommend"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/lib/traffic"
	"github.com/movilityai/tripplanner/internal/lib/transit"
)

// Stage names a step of the planning state machine
type Stage string

const (
	StageStart     Stage = "start"
	StageContext   Stage = "context"
	StageForecast  Stage = "forecast"
	StageCorrelate Stage = "correlate"
	StagePlan      Stage = "plan"
	StageRecommend Stage = "recommend"
	StageEnd       Stage = "end"
)

// Request is the resolved input of one planning run
type Request struct {
	UserID         string       `json:"user_id,omitempty"`
	Query          string       `json:"query,omitempty"`
	Origin         geo.Location `json:"origin"`
	Destination    geo.Location `json:"destination"`
	PreferredModes []string     `json:"preferred_modes,omitempty"`
	DepartureTime  time.Time    `json:"departure_time,omitempty"`
}

// Message is a progress note left by a stage
type Message struct {
	Stage     Stage     `json:"stage"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TravelContext is what the context stage learned about current conditions
type TravelContext struct {
	Weather      forecast.Weather     `json:"weather"`
	IsHoliday    bool                 `json:"is_holiday"`
	LineStatuses []transit.LineStatus `json:"line_statuses,omitempty"`
	CollectedAt  time.Time            `json:"collected_at"`
}

// CongestionZone is a registry zone near the trip with its current level
type CongestionZone struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Location     geo.Location  `json:"location"`
	RadiusKm     float64       `json:"radius_km"`
	CurrentLevel traffic.Level `json:"current_level"`
	PeakHours    []string      `json:"peak_hours"`
}

// State is threaded through every stage of a run. Messages, Errors and
// Warnings only grow within a run; SelectedRoute, when set, is RouteOptions[0].
type State struct {
	RunID          string       `json:"run_id"`
	UserID         string       `json:"user_id,omitempty"`
	Query          string       `json:"query,omitempty"`
	Origin         geo.Location `json:"origin"`
	Destination    geo.Location `json:"destination"`
	PreferredModes []string     `json:"preferred_modes"`
	DepartureTime  time.Time    `json:"departure_time"`

	CurrentStage Stage     `json:"current_stage"`
	Messages     []Message `json:"messages"`
	Errors       []string  `json:"errors"`
	Warnings     []string  `json:"warnings"`

	Context                 TravelContext                 `json:"context"`
	RawAlerts               []alerts.Alert                `json:"-"`
	RouteOptions            []routing.RouteOption         `json:"route_options"`
	SelectedRoute           *routing.RouteOption          `json:"selected_route,omitempty"`
	AlternativeRoutes       []routing.RouteOption         `json:"alternative_routes"`
	Alerts                  []alerts.ZoneAlert            `json:"traffic_alerts"`
	Forecasts               []forecast.CongestionForecast `json:"traffic_predictions"`
	CongestionZones         []CongestionZone              `json:"congestion_zones"`
	Recommendations         []recommend.Recommendation    `json:"recommendations"`
	OptimizationSuggestions []string                      `json:"optimization_suggestions"`

	FinalResponse    string  `json:"final_response"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// Clone returns a copy whose slices can be appended to or replaced without
// touching the original. Elements are shared; stages replace products rather
// than mutating them in place.
func (s *State) Clone() *State {
	c := *s
	c.PreferredModes = append([]string(nil), s.PreferredModes...)
	c.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	c.Errors = append(make([]string, 0, len(s.Errors)), s.Errors...)
	c.Warnings = append(make([]string, 0, len(s.Warnings)), s.Warnings...)
	c.Context.LineStatuses = append([]transit.LineStatus(nil), s.Context.LineStatuses...)
	c.RawAlerts = append([]alerts.Alert(nil), s.RawAlerts...)
	c.RouteOptions = append([]routing.RouteOption(nil), s.RouteOptions...)
	c.AlternativeRoutes = append([]routing.RouteOption(nil), s.AlternativeRoutes...)
	c.Alerts = append([]alerts.ZoneAlert(nil), s.Alerts...)
	c.Forecasts = append([]forecast.CongestionForecast(nil), s.Forecasts...)
	c.CongestionZones = append([]CongestionZone(nil), s.CongestionZones...)
	c.Recommendations = append([]recommend.Recommendation(nil), s.Recommendations...)
	c.OptimizationSuggestions = append([]string(nil), s.OptimizationSuggestions...)
	if len(c.RouteOptions) > 0 && s.SelectedRoute != nil {
		c.SelectedRoute = &c.RouteOptions[0]
	}
	return &c
}

// HasCompleteResult reports whether both routes and recommendations exist
func (s *State) HasCompleteResult() bool {
	return len(s.RouteOptions) > 0 && len(s.Recommendations) > 0
}

// extends reports whether s kept every accumulated entry of prev
func (s *State) extends(prev *State) bool {
	return len(s.Messages) >= len(prev.Messages) &&
		len(s.Errors) >= len(prev.Errors) &&
		len(s.Warnings) >= len(prev.Warnings)
}

// routePoints returns origin, the selected route's stops and destination
func (s *State) routePoints() []geo.Point {
	points := []geo.Point{s.Origin.Point()}
	if s.SelectedRoute != nil {
		if len(s.SelectedRoute.Polyline) > 0 {
			points = append(points, s.SelectedRoute.Polyline...)
		}
		for _, step := range s.SelectedRoute.Steps {
			points = append(points, step.StartLocation.Point(), step.EndLocation.Point())
		}
	}
	return append(points, s.Destination.Point())
}

func (s *State) addMessage(content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Stage: s.CurrentStage, Content: content, Timestamp: now})
}

func (s *State) addWarning(w string) {
	s.Warnings = append(s.Warnings, w)
}
