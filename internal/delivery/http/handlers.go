package http

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/gofiber/fiber/v2"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/zones"
	"github.com/movilityai/tripplanner/internal/pipeline"
)

// TripPlanner runs one planning request through the pipeline
type TripPlanner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.State
}

// Dependencies are the components the handlers read from. Weather is optional.
type Dependencies struct {
	Planner    TripPlanner
	Alerts     pipeline.AlertSource
	Correlator *alerts.Correlator
	Forecaster *forecast.Forecaster
	Weather    pipeline.WeatherProvider
	Registry   *zones.Registry
}

// Handler contains all HTTP handlers
type Handler struct {
	deps Dependencies
	now  func() time.Time
}

// NewHandler creates a new handler
func NewHandler(deps Dependencies) *Handler {
	if deps.Registry == nil {
		deps.Registry = zones.Default()
	}
	if deps.Correlator == nil {
		deps.Correlator = alerts.NewCorrelator(deps.Registry)
	}
	if deps.Forecaster == nil {
		deps.Forecaster = forecast.NewForecaster()
	}
	return &Handler{deps: deps, now: time.Now}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "tripplanner",
		"zones":   h.deps.Registry.Len(),
	})
}

type routePlanningRequest struct {
	Origin         geo.Location `json:"origin"`
	Destination    geo.Location `json:"destination"`
	PreferredModes []string     `json:"preferredModes"`
	DepartureTime  *time.Time   `json:"departureTime"`
	Query          string       `json:"query"`
	UserID         string       `json:"userId"`
}

// PlanRoute runs the planning pipeline for the request body
func (h *Handler) PlanRoute(c *fiber.Ctx) error {
	var body routePlanningRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	for _, loc := range []geo.Location{body.Origin, body.Destination} {
		if _, err := geo.NewPoint(loc.Lat, loc.Lng); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid coordinates")
		}
	}

	req := pipeline.Request{
		UserID:         body.UserID,
		Query:          body.Query,
		Origin:         body.Origin,
		Destination:    body.Destination,
		PreferredModes: body.PreferredModes,
	}
	if body.DepartureTime != nil {
		req.DepartureTime = *body.DepartureTime
	}

	state := h.deps.Planner.Run(c.UserContext(), req)

	return c.JSON(fiber.Map{
		"success": len(state.RouteOptions) > 0,
		"data":    state,
	})
}

// ListAlerts returns the active alerts correlated to zones
func (h *Handler) ListAlerts(c *fiber.Ctx) error {
	filters, err := parseFilters(c)
	if err != nil {
		return err
	}

	zoneAlerts, err := h.correlated(c.UserContext(), filters)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    zoneAlerts,
		"count":   len(zoneAlerts),
	})
}

// ZoneSummary returns per-zone alert counts
func (h *Handler) ZoneSummary(c *fiber.Ctx) error {
	zoneAlerts, err := h.correlated(c.UserContext(), nil)
	if err != nil {
		return err
	}

	summary := alerts.SummarizeByZone(zoneAlerts)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
		"count":   len(summary),
	})
}

// TrafficPredictions forecasts congestion for the requested zones, or every
// registry zone when none are named
func (h *Handler) TrafficPredictions(c *fiber.Ctx) error {
	ctx := c.UserContext()

	zoneIDs := splitList(c.Query("zone"))
	if len(zoneIDs) == 0 {
		for _, z := range h.deps.Registry.ByPriority() {
			zoneIDs = append(zoneIDs, z.ID)
		}
	}

	opts := forecast.DefaultOptions()
	if raw := c.Query("horizons"); raw != "" {
		horizons, err := parseHorizons(raw)
		if err != nil {
			return err
		}
		opts.Horizons = horizons
	}
	now := h.now()
	opts.BaseTime = now

	features := forecast.Features{
		Weather:   forecast.WeatherClear,
		IsHoliday: now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
	}
	if h.deps.Weather != nil {
		w, err := h.deps.Weather.CurrentCondition(ctx)
		if err != nil {
			logging.Warnw(ctx, "http: weather unavailable for predictions", "error", err)
		} else {
			features.Weather = w
		}
	}

	predictions := h.deps.Forecaster.ForecastMany(ctx, zoneIDs, features, opts)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    predictions,
		"weather": features.Weather,
		"count":   len(predictions),
	})
}

// ZonesKML serves the registry as a KML layer
func (h *Handler) ZonesKML(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := zones.WriteKML(&buf, "Zonas de congestión de Medellín", h.deps.Registry.All()); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render zones")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.google-earth.kml+xml")
	return c.Send(buf.Bytes())
}

func (h *Handler) correlated(ctx context.Context, filters *alerts.Filters) ([]alerts.ZoneAlert, error) {
	if h.deps.Alerts == nil {
		return []alerts.ZoneAlert{}, nil
	}

	snapshot, err := h.deps.Alerts.ActiveAlerts(ctx)
	if err != nil {
		logging.Errorw(ctx, "http: failed to fetch alerts", "error", err)
		return nil, fiber.NewError(fiber.StatusBadGateway, "Failed to fetch alerts")
	}

	zoneAlerts := h.deps.Correlator.Correlate(snapshot, nil, filters)
	if zoneAlerts == nil {
		zoneAlerts = []alerts.ZoneAlert{}
	}
	return zoneAlerts, nil
}

func parseFilters(c *fiber.Ctx) (*alerts.Filters, error) {
	filters := &alerts.Filters{
		ZoneIDs:  splitList(c.Query("zone")),
		PeakOnly: c.QueryBool("peakOnly", false),
	}
	if raw := c.Query("severityMin"); raw != "" {
		sev, ok := alerts.ParseSeverity(raw)
		if !ok {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid severityMin")
		}
		filters.SeverityMin = sev
	}
	return filters, nil
}

func parseHorizons(raw string) ([]int, error) {
	var horizons []int
	for _, part := range splitList(raw) {
		v, err := strconv.Atoi(part)
		if err != nil || v <= 0 || v > 24*60 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid horizons")
		}
		horizons = append(horizons, v)
	}
	return horizons, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
