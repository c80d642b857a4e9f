// Package pipeline sequences the trip planning stages as a small state
// machine over a per-run State.
//
// Stages run in the order context, forecast, correlate, plan, recommend.
// After every stage the run ends early once more than MaxErrors errors have
// accumulated. After recommend, a run without route options retries plan
// exactly once. A stage that fails or panics leaves the state as it was
// except for the recorded error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/recommend"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

// ErrMissingEndpoints is recorded when a run has no origin or destination
var ErrMissingEndpoints = routing.ErrMissingEndpoints

// Config bounds a run
type Config struct {
	MaxErrors           int           `koanf:"max_errors" yaml:"max_errors"`
	CollaboratorTimeout time.Duration `koanf:"collaborator_timeout" yaml:"collaborator_timeout"`
	MaxRecommendations  int           `koanf:"max_recommendations" yaml:"max_recommendations"`
	MaxForecastZones    int           `koanf:"max_forecast_zones" yaml:"max_forecast_zones"`
	ZoneRadiusKm        float64       `koanf:"zone_radius_km" yaml:"zone_radius_km"`
	Horizons            []int         `koanf:"horizons" yaml:"horizons"`
	IntervalMinutes     int           `koanf:"interval_minutes" yaml:"interval_minutes"`
}

// DefaultConfig returns the standard run bounds
func DefaultConfig() Config {
	return Config{
		MaxErrors:           3,
		CollaboratorTimeout: 5 * time.Second,
		MaxRecommendations:  recommend.DefaultMaxRecommendations,
		MaxForecastZones:    4,
		ZoneRadiusKm:        5,
		Horizons:            []int{30, 60},
		IntervalMinutes:     15,
	}
}

// Dependencies are the components and collaborators a run uses. Alerts,
// Weather and Transit are optional.
type Dependencies struct {
	Registry   *zones.Registry
	Forecaster *forecast.Forecaster
	Correlator *alerts.Correlator
	Planner    Planner
	Alerts     AlertSource
	Weather    WeatherProvider
	Transit    TransitStatusProvider
}

// Orchestrator runs planning requests through the stage sequence
type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	stages map[Stage]StageFunc
	now    func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStage replaces the implementation of a stage
func WithStage(stage Stage, fn StageFunc) Option {
	return func(o *Orchestrator) { o.stages[stage] = fn }
}

// WithClock sets the clock used for timestamps and default departure times
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the default stages over the given dependencies
func NewOrchestrator(deps Dependencies, cfg Config, opts ...Option) *Orchestrator {
	d := DefaultConfig()
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = d.MaxErrors
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = d.CollaboratorTimeout
	}
	if cfg.MaxForecastZones <= 0 {
		cfg.MaxForecastZones = d.MaxForecastZones
	}
	if cfg.ZoneRadiusKm <= 0 {
		cfg.ZoneRadiusKm = d.ZoneRadiusKm
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = d.Horizons
	}
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = d.IntervalMinutes
	}
	if deps.Registry == nil {
		deps.Registry = zones.Default()
	}
	if deps.Forecaster == nil {
		deps.Forecaster = forecast.NewForecaster()
	}
	if deps.Correlator == nil {
		deps.Correlator = alerts.NewCorrelator(deps.Registry)
	}

	o := &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
	o.stages = map[Stage]StageFunc{
		StageContext:   o.contextStage,
		StageForecast:  o.forecastStage,
		StageCorrelate: o.correlateStage,
		StagePlan:      o.planStage,
		StageRecommend: o.recommendStage,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one planning request. It never returns an error: failures are
// recorded in the returned state's Errors and Warnings.
func (o *Orchestrator) Run(ctx context.Context, req Request) *State {
	ctx = logging.EnsureLogger(ctx)
	start := o.now()
	s := newState(req, start)

	logging.Infow(ctx, "pipeline: run started", "run_id", s.RunID, "modes", strings.Join(s.PreferredModes, ","))

	if req.Origin.IsZero() || req.Destination.IsZero() {
		s.Errors = append(s.Errors, ErrMissingEndpoints.Error())
	} else {
		retried := false
		for stage := StageContext; stage != StageEnd; stage = o.next(s, stage, &retried) {
			o.runStage(ctx, s, stage)
		}
	}

	o.finish(s, start)
	logging.Infow(ctx, "pipeline: run finished", "run_id", s.RunID,
		"errors", len(s.Errors), "warnings", len(s.Warnings), "confidence", s.Confidence,
		"duration_ms", s.ProcessingTimeMs)
	return s
}

func newState(req Request, now time.Time) *State {
	modes := req.PreferredModes
	if len(modes) == 0 {
		modes = routing.DefaultPreferredModes
	}
	departure := req.DepartureTime
	if departure.IsZero() {
		departure = now
	}
	return &State{
		RunID:          uuid.NewString(),
		UserID:         req.UserID,
		Query:          req.Query,
		Origin:         req.Origin,
		Destination:    req.Destination,
		PreferredModes: append([]string(nil), modes...),
		DepartureTime:  departure,
		CurrentStage:   StageStart,
		Messages:       []Message{},
		Errors:         []string{},
		Warnings:       []string{},
	}
}

// next decides the stage after current
func (o *Orchestrator) next(s *State, current Stage, retried *bool) Stage {
	if len(s.Errors) > o.cfg.MaxErrors {
		return StageEnd
	}
	switch current {
	case StageContext:
		return StageForecast
	case StageForecast:
		return StageCorrelate
	case StageCorrelate:
		return StagePlan
	case StagePlan:
		return StageRecommend
	case StageRecommend:
		if s.HasCompleteResult() {
			return StageEnd
		}
		if len(s.RouteOptions) == 0 && !*retried {
			*retried = true
			return StagePlan
		}
	}
	return StageEnd
}

// runStage executes a stage on a clone and adopts the clone only on success
func (o *Orchestrator) runStage(ctx context.Context, s *State, stage Stage) {
	fn, ok := o.stages[stage]
	if !ok {
		s.Errors = append(s.Errors, fmt.Sprintf("%s: no stage registered", stage))
		return
	}

	work := s.Clone()
	work.CurrentStage = stage
	err := o.safeRun(ctx, stage, fn, work)
	if err == nil && !work.extends(s) {
		err = errors.New("stage dropped accumulated entries")
	}
	if err == nil && work.SelectedRoute != nil && (len(work.RouteOptions) == 0 || work.SelectedRoute.ID != work.RouteOptions[0].ID) {
		err = errors.New("selected route is not the top-ranked option")
	}

	if err != nil {
		logging.Warnw(ctx, "pipeline: stage failed", "run_id", s.RunID, "stage", string(stage), "error", err)
		s.CurrentStage = stage
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", stage, err))
		return
	}
	*s = *work
}

func (o *Orchestrator) safeRun(ctx context.Context, stage Stage, fn StageFunc, s *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stackErr, _ := prefaberrors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "pipeline: recovered from panic in stage",
				"stage", string(stage), "error", r, "error.stack_trace", stackErr.MinimalStack(3, 5))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, s)
}

// finish computes confidence and the summary text
func (o *Orchestrator) finish(s *State, start time.Time) {
	s.CurrentStage = StageEnd
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	if s.Warnings == nil {
		s.Warnings = []string{}
	}
	s.Confidence = Confidence(s)
	s.FinalResponse = Summary(s)
	s.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
}

// Confidence is 1 reduced by 0.2 per error, 0.1 per warning, 0.5 without a
// selected route and 0.1 with more than three alerts, clamped to [0,1]
func Confidence(s *State) float64 {
	c := 1.0
	c -= 0.2 * float64(len(s.Errors))
	c -= 0.1 * float64(len(s.Warnings))
	if s.SelectedRoute == nil {
		c -= 0.5
	}
	if len(s.Alerts) > 3 {
		c -= 0.1
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Summary renders the run outcome for people
func Summary(s *State) string {
	if s.SelectedRoute == nil {
		if len(s.Errors) > 0 {
			return fmt.Sprintf("Lo siento, encontré algunos problemas: %s", strings.Join(s.Errors, ", "))
		}
		return "No pude encontrar una ruta óptima. Por favor verifica los datos e intenta de nuevo."
	}

	r := s.SelectedRoute
	modes := make([]string, len(r.TransportModes))
	for i, m := range r.TransportModes {
		modes[i] = string(m)
	}

	var b strings.Builder
	b.WriteString("Ruta recomendada\n\n")
	fmt.Fprintf(&b, "Desde: %s\n", placeName(r.Origin.Address, "origen"))
	fmt.Fprintf(&b, "Hasta: %s\n\n", placeName(r.Destination.Address, "destino"))
	fmt.Fprintf(&b, "Duración: %d minutos\n", r.DurationMinutes)
	fmt.Fprintf(&b, "Distancia: %.2f km\n", r.DistanceKm)
	fmt.Fprintf(&b, "Modos: %s\n", strings.Join(modes, " → "))
	fmt.Fprintf(&b, "Costo estimado: $%.2f\n", r.Cost())
	fmt.Fprintf(&b, "CO2: %.2f kg\n", r.CO2Kg)
	fmt.Fprintf(&b, "Tráfico: %s\n", r.TrafficLevel)

	var serious []alerts.ZoneAlert
	for _, za := range s.Alerts {
		if za.Severity.AtLeast(alerts.SeverityHigh) {
			serious = append(serious, za)
		}
	}
	if len(serious) > 0 {
		fmt.Fprintf(&b, "\nAlertas activas (%d)\n", len(serious))
		for i, za := range serious {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "• %s: %s\n", za.Zone.Name, za.Description)
		}
	}

	if len(s.Recommendations) > 0 {
		b.WriteString("\nRecomendaciones\n")
		for i, rec := range s.Recommendations {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "• %s: %s\n", rec.Title, rec.Description)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\nResultados parciales: %s\n", strings.Join(s.Errors, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func placeName(address, fallback string) string {
	if address == "" {
		return fallback
	}
	return address
}
