package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/recommend"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/lib/traffic"
	"github.com/movilityai/tripplanner/internal/lib/transit"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

// AlertSource returns a snapshot of currently active alerts
type AlertSource interface {
	ActiveAlerts(ctx context.Context) ([]alerts.Alert, error)
}

// WeatherProvider reports the current weather band
type WeatherProvider interface {
	CurrentCondition(ctx context.Context) (forecast.Weather, error)
}

// TransitStatusProvider reports the operating state of transit lines
type TransitStatusProvider interface {
	LineStatuses(ctx context.Context) ([]transit.LineStatus, error)
}

// Planner produces ranked route candidates
type Planner interface {
	Plan(ctx context.Context, req routing.PlanRequest) (*routing.Plan, error)
}

// StageFunc runs one stage against a working copy of the state. A returned
// error discards the copy.
type StageFunc func(ctx context.Context, s *State) error

// centroZone stands in when no registry zone is near the trip
var centroZone = CongestionZone{
	ID:           "medellin-centro",
	Name:         "Medellín Centro",
	Location:     geo.Location{Address: "Medellín, Antioquia", Lat: 6.2442, Lng: -75.5812},
	RadiusKm:     3,
	CurrentLevel: traffic.Medium,
	PeakHours:    []string{"06:00-09:00", "16:00-19:00"},
}

// contextStage gathers weather, transit status and the alert snapshot.
// Collaborator failures only add warnings.
func (o *Orchestrator) contextStage(ctx context.Context, s *State) error {
	tc := TravelContext{
		Weather:     forecast.WeatherClear,
		IsHoliday:   isWeekend(s.DepartureTime),
		CollectedAt: o.now(),
	}

	if o.deps.Weather != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CollaboratorTimeout)
		w, err := o.deps.Weather.CurrentCondition(callCtx)
		cancel()
		if err != nil {
			s.addWarning(fmt.Sprintf("weather unavailable: %v", err))
		} else {
			tc.Weather = w
		}
	}

	if o.deps.Transit != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CollaboratorTimeout)
		statuses, err := o.deps.Transit.LineStatuses(callCtx)
		cancel()
		if err != nil {
			s.addWarning(fmt.Sprintf("transit status unavailable: %v", err))
		} else {
			tc.LineStatuses = statuses
			for _, d := range transit.Disrupted(statuses) {
				s.addWarning(fmt.Sprintf("línea %s: %s", d.Line, d.Status))
			}
		}
	}

	s.RawAlerts = nil
	if o.deps.Alerts != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CollaboratorTimeout)
		snapshot, err := o.deps.Alerts.ActiveAlerts(callCtx)
		cancel()
		if err != nil {
			s.addWarning(fmt.Sprintf("alert feed unavailable: %v", err))
		} else {
			s.RawAlerts = snapshot
		}
	}

	s.Context = tc
	s.addMessage(fmt.Sprintf("Collected context. Weather: %s, holiday: %t, transit lines: %d, alerts: %d",
		tc.Weather, tc.IsHoliday, len(tc.LineStatuses), len(s.RawAlerts)), o.now())
	return nil
}

// forecastStage finds congestion zones near the trip and forecasts up to
// MaxForecastZones of them
func (o *Orchestrator) forecastStage(ctx context.Context, s *State) error {
	at := s.DepartureTime
	nearby := congestionZones(o.deps.Registry, s.Origin, s.Destination, o.cfg.ZoneRadiusKm, at)

	targets := nearby
	if len(targets) > o.cfg.MaxForecastZones {
		targets = targets[:o.cfg.MaxForecastZones]
	}
	if len(targets) == 0 {
		targets = []CongestionZone{centroZone}
	}
	names := make([]string, len(targets))
	for i, z := range targets {
		names[i] = z.Name
	}

	features := forecast.Features{Weather: s.Context.Weather, IsHoliday: s.Context.IsHoliday}
	opts := forecast.Options{
		Horizons:        o.cfg.Horizons,
		IntervalMinutes: o.cfg.IntervalMinutes,
		BaseTime:        at,
	}

	s.CongestionZones = nearby
	s.Forecasts = o.deps.Forecaster.ForecastMany(ctx, names, features, opts)

	heavy := 0
	for _, f := range s.Forecasts {
		if f.PredictedLevel.Rank() >= traffic.High.Rank() {
			heavy++
		}
	}
	s.addMessage(fmt.Sprintf("Analyzed traffic: %d zones, %d predictions, %d high or severe",
		len(nearby), len(s.Forecasts), heavy), o.now())
	return nil
}

// congestionZones lists registry zones whose center lies within radiusKm of
// the origin or destination. Level follows priority tier and peak state.
func congestionZones(registry *zones.Registry, origin, destination geo.Location, radiusKm float64, at time.Time) []CongestionZone {
	inRange := make(map[string]bool)
	for _, end := range []geo.Location{origin, destination} {
		for _, z := range registry.Near(end.Lat, end.Lng, radiusKm) {
			inRange[z.ID] = true
		}
	}

	var out []CongestionZone
	for _, z := range registry.All() {
		if !inRange[z.ID] {
			continue
		}

		peaks := make([]string, len(z.PeakHours))
		for i, w := range z.PeakHours {
			peaks[i] = w.String()
		}
		out = append(out, CongestionZone{
			ID:           z.ID,
			Name:         z.Name,
			Location:     geo.Location{Address: z.Description, Lat: z.Center.Latitude, Lng: z.Center.Longitude},
			RadiusKm:     geo.RoundTo(z.RadiusKm(), 2),
			CurrentLevel: zoneLevel(z, at),
			PeakHours:    peaks,
		})
	}
	return out
}

func zoneLevel(z zones.GeoZone, at time.Time) traffic.Level {
	if z.InPeak(at) {
		switch z.Priority {
		case zones.PriorityCritical:
			return traffic.Severe
		case zones.PriorityHigh:
			return traffic.High
		default:
			return traffic.Medium
		}
	}
	if z.Priority == zones.PriorityCritical {
		return traffic.Medium
	}
	return traffic.Low
}

// correlateStage attaches the alert snapshot to zones along the trip
func (o *Orchestrator) correlateStage(_ context.Context, s *State) error {
	correlator := o.deps.Correlator.WithClock(fixedClock(s.DepartureTime))
	route := s.routePoints()

	s.Alerts = correlator.Correlate(s.RawAlerts, route, nil)
	high := correlator.HighPriorityAlerts(s.RawAlerts, route)
	if len(high) > 0 {
		s.addWarning(fmt.Sprintf("%d high-priority alerts affecting critical zones on your route", len(high)))
	}

	var critical []string
	for _, sum := range alerts.SummarizeByZone(s.Alerts) {
		if sum.HighOrCritical > 0 {
			critical = append(critical, sum.ZoneName)
		}
	}
	msg := fmt.Sprintf("Correlated %d of %d alerts, %d high-priority", len(s.Alerts), len(s.RawAlerts), len(high))
	if len(critical) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(critical, ", "))
	}
	s.addMessage(msg, o.now())
	return nil
}

// planStage ranks candidates against every correlated alert, then
// re-correlates the snapshot along the selected route's geometry
func (o *Orchestrator) planStage(ctx context.Context, s *State) error {
	plan, err := o.deps.Planner.Plan(ctx, routing.PlanRequest{
		Origin:         s.Origin,
		Destination:    s.Destination,
		PreferredModes: s.PreferredModes,
		DepartureTime:  s.DepartureTime,
		Alerts:         s.Alerts,
	})
	if err != nil {
		return fmt.Errorf("route planning failed: %w", err)
	}
	if plan == nil || len(plan.Options) == 0 {
		return routing.ErrNoRoutes
	}

	s.RouteOptions = plan.Options
	s.SelectedRoute = &s.RouteOptions[0]
	s.AlternativeRoutes = append([]routing.RouteOption(nil), plan.Alternatives...)

	correlator := o.deps.Correlator.WithClock(fixedClock(s.DepartureTime))
	s.Alerts = correlator.Correlate(s.RawAlerts, s.routePoints(), nil)

	best := s.SelectedRoute
	s.addMessage(fmt.Sprintf("Generated %d route options. Best route: %d min, %.2f km",
		len(s.RouteOptions), best.DurationMinutes, best.DistanceKm), o.now())
	return nil
}

// recommendStage synthesizes suggestions from the assembled products
func (o *Orchestrator) recommendStage(_ context.Context, s *State) error {
	out := recommend.Synthesize(recommend.Input{
		Selected:      s.SelectedRoute,
		Alternatives:  s.AlternativeRoutes,
		Alerts:        s.Alerts,
		Forecasts:     s.Forecasts,
		DepartureTime: s.DepartureTime,
	}, o.cfg.MaxRecommendations)

	s.Recommendations = out.Recommendations
	s.OptimizationSuggestions = out.Suggestions
	s.addMessage(fmt.Sprintf("Generated %d recommendations", len(out.Recommendations)), o.now())
	return nil
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
