package routing

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/traffic"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// modeFamily is one strategy the planner can request from the provider
type modeFamily struct {
	travel     TravelMode
	aliases    []string
	mode       Mode
	confidence float64
}

// families are attempted and collected in this order
var families = []modeFamily{
	{travel: TravelTransit, aliases: []string{"transit", "metro", "bus"}, mode: ModeTransit, confidence: 0.95},
	{travel: TravelWalking, aliases: []string{"walking", "walk"}, mode: ModeWalk, confidence: 0.98},
	{travel: TravelBicycling, aliases: []string{"bicycling", "bike"}, mode: ModeBike, confidence: 0.90},
	{travel: TravelDriving, aliases: []string{"driving", "car"}, mode: ModeCar, confidence: 0.92},
}

// Planner generates candidate itineraries per mode and ranks them
type Planner struct {
	provider DirectionsProvider
	cfg      Config
	newID    func() string
}

// NewPlanner creates a planner backed by a directions provider
func NewPlanner(provider DirectionsProvider, cfg Config) *Planner {
	defaults := DefaultConfig()
	if cfg.WalkingMaxKm <= 0 {
		cfg.WalkingMaxKm = defaults.WalkingMaxKm
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = defaults.MaxAlternatives
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaults.ProviderTimeout
	}
	return &Planner{
		provider: provider,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
}

// Plan requests one candidate per eligible mode family, adjusts them for the
// supplied alerts and ranks them by score. A family that fails or returns
// nothing is skipped; ErrNoRoutes is returned when every family did.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if req.Origin.IsZero() || req.Destination.IsZero() {
		return nil, ErrMissingEndpoints
	}

	modes := req.PreferredModes
	if len(modes) == 0 {
		modes = DefaultPreferredModes
	}

	straight, known := straightLineKm(req.Origin, req.Destination)
	eligible := p.eligibleFamilies(modes, straight, known)
	log.Printf("Planner: distance %.2fkm, modes %s, %d families", straight, strings.Join(modes, ","), len(eligible))

	candidates := make([]*RouteOption, len(eligible))
	var g errgroup.Group
	for i, fam := range eligible {
		g.Go(func() error {
			candidates[i] = p.candidate(ctx, fam, req)
			return nil
		})
	}
	_ = g.Wait()

	var options []RouteOption
	for _, c := range candidates {
		if c != nil {
			options = append(options, *c)
		}
	}
	if len(options) == 0 {
		return nil, ErrNoRoutes
	}

	multiplier := AlertMultiplier(req.Alerts)
	for i := range options {
		applyAlertMultiplier(&options[i], multiplier)
		options[i].Score = Score(options[i])
	}
	Rank(options)

	plan := &Plan{
		Options:        options,
		Selected:       &options[0],
		StraightLineKm: geo.RoundTo(straight, 2),
	}
	end := 1 + p.cfg.MaxAlternatives
	if end > len(options) {
		end = len(options)
	}
	plan.Alternatives = options[1:end]
	return plan, nil
}

// eligibleFamilies picks the families named by the preferred modes. Walking is
// gated on straight-line distance and skipped when coordinates are unknown.
func (p *Planner) eligibleFamilies(preferred []string, straightKm float64, known bool) []modeFamily {
	want := make(map[string]bool, len(preferred))
	for _, m := range preferred {
		want[strings.ToLower(strings.TrimSpace(m))] = true
	}

	var out []modeFamily
	for _, fam := range families {
		requested := false
		for _, alias := range fam.aliases {
			if want[alias] {
				requested = true
				break
			}
		}
		if !requested {
			continue
		}
		if fam.travel == TravelWalking && (!known || straightKm >= p.cfg.WalkingMaxKm) {
			continue
		}
		out = append(out, fam)
	}
	return out
}

// candidate asks the provider for one itinerary. Failures yield nil.
func (p *Planner) candidate(ctx context.Context, fam modeFamily, req PlanRequest) *RouteOption {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()

	route, err := p.provider.GetRoute(callCtx, req.Origin, req.Destination, fam.travel, req.DepartureTime)
	if err != nil {
		log.Printf("Planner: %s directions failed: %v", fam.travel, err)
		return nil
	}
	if route == nil || len(route.Legs) == 0 {
		log.Printf("Planner: no %s route found", fam.travel)
		return nil
	}

	opt, err := p.normalize(route, fam, req)
	if err != nil {
		log.Printf("Planner: failed to normalize %s route: %v", fam.travel, err)
		return nil
	}
	if opt.DurationMinutes <= 0 {
		return nil
	}
	return opt
}

// normalize converts the first provider leg into a RouteOption
func (p *Planner) normalize(route *DirectionsRoute, fam modeFamily, req PlanRequest) (*RouteOption, error) {
	leg := route.Legs[0]

	steps := make([]RouteStep, 0, len(leg.Steps))
	var modes []Mode
	seen := map[Mode]bool{}
	for _, s := range leg.Steps {
		if s.DurationSeconds < 0 || s.DistanceMeters < 0 {
			return nil, fmt.Errorf("negative step metrics in %s route", fam.travel)
		}
		mode := stepMode(s, fam)
		steps = append(steps, RouteStep{
			Instruction:     strings.TrimSpace(htmlTag.ReplaceAllString(s.HTMLInstructions, "")),
			TransportMode:   mode,
			DurationMinutes: ceilMinutes(s.DurationSeconds),
			DistanceKm:      float64(s.DistanceMeters) / 1000,
			StartLocation:   geo.Location{Lat: s.Start.Latitude, Lng: s.Start.Longitude},
			EndLocation:     geo.Location{Lat: s.End.Latitude, Lng: s.End.Longitude},
			Transit:         s.Transit,
		})
		if !seen[mode] {
			seen[mode] = true
			modes = append(modes, mode)
		}
	}
	if len(modes) == 0 {
		modes = []Mode{fam.mode}
	}

	distanceKm := float64(leg.DistanceMeters) / 1000
	duration := ceilMinutes(leg.DurationSeconds)
	level := traffic.Low

	var cost float64
	switch fam.travel {
	case TravelTransit:
		cost = TransitFare(modes, p.cfg)
	case TravelDriving:
		if leg.DurationInTrafficSeconds > 0 {
			inTraffic := ceilMinutes(leg.DurationInTrafficSeconds)
			if duration > 0 {
				level = DelayLevel(float64(inTraffic) / float64(duration))
			}
			duration = inTraffic
		}
		cost = distanceKm * p.cfg.DrivingPerKm
	}

	opt := &RouteOption{
		ID:              fmt.Sprintf("route-%s-%s", fam.mode, p.newID()),
		Origin:          req.Origin,
		Destination:     req.Destination,
		TransportModes:  modes,
		DurationMinutes: duration,
		DistanceKm:      distanceKm,
		Steps:           steps,
		TrafficLevel:    level,
		EstimatedCost:   &cost,
		CO2Kg:           EstimateCO2(distanceKm, modes),
		Confidence:      fam.confidence,
	}

	if route.OverviewPolyline != "" {
		points, err := geo.NewGeoUtils().DecodePolyline(route.OverviewPolyline)
		if err != nil {
			log.Printf("Planner: ignoring undecodable %s polyline: %v", fam.travel, err)
		} else {
			opt.Polyline = points
		}
	}
	return opt, nil
}

// stepMode maps a provider step to a normalized transport mode
func stepMode(s DirectionsStep, fam modeFamily) Mode {
	switch strings.ToUpper(s.TravelMode) {
	case "WALKING":
		return ModeWalk
	case "BICYCLING":
		return ModeBike
	case "DRIVING":
		return ModeCar
	case "TRANSIT":
		return vehicleMode(s.Transit)
	}
	return fam.mode
}

func vehicleMode(t *TransitDetails) Mode {
	if t == nil {
		return ModeTransit
	}
	v := strings.ToLower(t.VehicleType)
	switch {
	case strings.Contains(v, "metro"), strings.Contains(v, "subway"), strings.Contains(v, "rail"):
		return ModeMetro
	case strings.Contains(v, "bus"):
		return ModeBus
	default:
		return ModeTransit
	}
}

// AlertMultiplier is 1 + 0.3 per high alert + 0.5 per critical alert
func AlertMultiplier(zas []alerts.ZoneAlert) float64 {
	m := 1.0
	for _, za := range zas {
		switch za.Severity {
		case alerts.SeverityHigh:
			m += 0.3
		case alerts.SeverityCritical:
			m += 0.5
		}
	}
	return m
}

// applyAlertMultiplier inflates the duration and reclassifies non-driving
// routes. Driving keeps the level derived from the provider's traffic ratio.
func applyAlertMultiplier(opt *RouteOption, multiplier float64) {
	if multiplier == 1 {
		return
	}
	opt.DurationMinutes = int(math.Ceil(float64(opt.DurationMinutes) * multiplier))
	if opt.HasMode(ModeCar) {
		return
	}
	switch {
	case multiplier > 1.3:
		opt.TrafficLevel = traffic.High
	case multiplier > 1.1:
		opt.TrafficLevel = traffic.Medium
	}
}

// DelayLevel bands a traffic-vs-free-flow duration ratio
func DelayLevel(ratio float64) traffic.Level {
	switch {
	case ratio >= 2.0:
		return traffic.Severe
	case ratio >= 1.5:
		return traffic.High
	case ratio >= 1.2:
		return traffic.Medium
	default:
		return traffic.Low
	}
}

// TransitFare charges the metro fare when metro is used (bus transfers are
// integrated), the bus fare for bus-only trips and nothing otherwise
func TransitFare(modes []Mode, cfg Config) float64 {
	var hasMetro, hasBus bool
	for _, m := range modes {
		switch m {
		case ModeMetro:
			hasMetro = true
		case ModeBus:
			hasBus = true
		}
	}
	switch {
	case hasMetro:
		return cfg.MetroFare
	case hasBus:
		return cfg.BusFare
	default:
		return 0
	}
}

// emissionFactors in kg CO2 per km
var emissionFactors = map[Mode]float64{
	ModeCar:   0.12,
	ModeBus:   0.05,
	ModeMetro: 0.02,
	ModeBike:  0,
	ModeWalk:  0,
}

const defaultEmissionFactor = 0.05

// EstimateCO2 multiplies distance by the mean emission factor of the modes
func EstimateCO2(distanceKm float64, modes []Mode) float64 {
	if len(modes) == 0 {
		return 0
	}
	var sum float64
	for _, m := range modes {
		f, ok := emissionFactors[m]
		if !ok {
			f = defaultEmissionFactor
		}
		sum += f
	}
	return geo.RoundTo(distanceKm*sum/float64(len(modes)), 2)
}

// Score is the weighted ranking cost of a route; lower is better
func Score(r RouteOption) float64 {
	return 0.4*float64(r.DurationMinutes) + 0.2*r.Cost() + 0.2*r.CO2Kg + 0.2*(1-r.Confidence)*100
}

// Rank sorts routes ascending by score, keeping input order for ties
func Rank(routes []RouteOption) {
	sort.SliceStable(routes, func(i, j int) bool {
		return Score(routes[i]) < Score(routes[j])
	})
}

func straightLineKm(a, b geo.Location) (float64, bool) {
	if (a.Lat == 0 && a.Lng == 0) || (b.Lat == 0 && b.Lng == 0) {
		return 0, false
	}
	return geo.HaversineKm(a.Point(), b.Point()), true
}

func ceilMinutes(seconds int) int {
	return int(math.Ceil(float64(seconds) / 60))
}
