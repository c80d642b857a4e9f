// Package recommend turns a ranked plan, forecasts and correlated alerts into
// prioritized suggestions for the traveller.
package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/forecast"
	"github.com/movilityai/tripplanner/internal/lib/routing"
	"github.com/movilityai/tripplanner/internal/lib/traffic"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

// Category groups recommendations by what they ask the traveller to change
type Category string

const (
	CategoryRoute Category = "route"
	CategoryTime  Category = "time"
	CategoryMode  Category = "mode"
	CategoryAlert Category = "alert"
)

// Priority orders recommendations
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities from low (1) to high (3)
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Recommendation is a single actionable suggestion
type Recommendation struct {
	ID                    string   `json:"id"`
	Category              Category `json:"category"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Priority              Priority `json:"priority"`
	PotentialTimeSavedMin *int     `json:"potential_time_saved_min,omitempty"`
	PotentialCO2SavedKg   *float64 `json:"potential_co2_saved_kg,omitempty"`
	Actionable            bool     `json:"actionable"`
}

// Input is the slice of pipeline state the synthesizer reads
type Input struct {
	Selected      *routing.RouteOption
	Alternatives  []routing.RouteOption
	Alerts        []alerts.ZoneAlert
	Forecasts     []forecast.CongestionForecast
	DepartureTime time.Time
}

// Output holds the prioritized recommendations and free-text hints
type Output struct {
	Recommendations []Recommendation `json:"recommendations"`
	Suggestions     []string         `json:"optimization_suggestions"`
}

// DefaultMaxRecommendations caps the synthesized list
const DefaultMaxRecommendations = 10

const (
	switchThresholdMin = 5
	shortTripKm        = 1.5
	highCO2Kg          = 2.0
	highCost           = 5.0
	busyAlertCount     = 2
)

// Synthesize runs every generator, sorts by priority (stable within a tier)
// and caps the list at limit entries. A non-positive limit uses the default.
func Synthesize(in Input, limit int) Output {
	if limit <= 0 {
		limit = DefaultMaxRecommendations
	}

	var recs []Recommendation
	recs = append(recs, routeRecommendations(in)...)
	recs = append(recs, timeRecommendations(in)...)
	recs = append(recs, modeRecommendations(in)...)
	recs = append(recs, alertRecommendations(in)...)

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() > recs[j].Priority.Rank()
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	return Output{
		Recommendations: recs,
		Suggestions:     suggestions(in),
	}
}

func routeRecommendations(in Input) []Recommendation {
	if in.Selected == nil || len(in.Alternatives) == 0 {
		return nil
	}
	best := in.Alternatives[0]
	saved := in.Selected.DurationMinutes - best.DurationMinutes
	if saved <= switchThresholdMin {
		return nil
	}
	return []Recommendation{{
		ID:                    "rec-route-1",
		Category:              CategoryRoute,
		Title:                 "Ruta alternativa más rápida",
		Description:           fmt.Sprintf("Considera usar %s para ahorrar %d minutos", joinModes(best.TransportModes), saved),
		Priority:              PriorityHigh,
		PotentialTimeSavedMin: intPtr(saved),
		Actionable:            true,
	}}
}

// rush hours are 07-09 and 17-19 with the end hour included
func inRushHour(t time.Time) bool {
	h := t.Hour()
	return (h >= 7 && h <= 9) || (h >= 17 && h <= 19)
}

func timeRecommendations(in Input) []Recommendation {
	if !inRushHour(in.DepartureTime) {
		return nil
	}
	return []Recommendation{{
		ID:                    "rec-time-1",
		Category:              CategoryTime,
		Title:                 "Evita la hora pico",
		Description:           "Estás viajando en hora pico. Considera salir 30 minutos antes o después para ahorrar tiempo.",
		Priority:              PriorityMedium,
		PotentialTimeSavedMin: intPtr(15),
		Actionable:            true,
	}}
}

func modeRecommendations(in Input) []Recommendation {
	if in.Selected == nil {
		return nil
	}

	var recs []Recommendation
	if !in.Selected.HasMode(routing.ModeMetro) {
		recs = append(recs, Recommendation{
			ID:                    "rec-mode-1",
			Category:              CategoryMode,
			Title:                 "Usa el Metro",
			Description:           "El Metro es más rápido y confiable durante horas pico. Considera incluirlo en tu ruta.",
			Priority:              PriorityMedium,
			PotentialTimeSavedMin: intPtr(10),
			PotentialCO2SavedKg:   floatPtr(0.5),
			Actionable:            true,
		})
	}
	if in.Selected.DistanceKm < shortTripKm && !in.Selected.HasMode(routing.ModeWalk) {
		recs = append(recs, Recommendation{
			ID:                  "rec-mode-2",
			Category:            CategoryMode,
			Title:               "Camina",
			Description:         "La distancia es corta. Caminar es saludable y reduce tu huella de carbono.",
			Priority:            PriorityLow,
			PotentialCO2SavedKg: floatPtr(in.Selected.CO2Kg),
			Actionable:          true,
		})
	}
	return recs
}

// alertRecommendations emits one entry per high or critical alert that
// touches the route or sits in a critical-tier zone
func alertRecommendations(in Input) []Recommendation {
	var recs []Recommendation
	for _, za := range in.Alerts {
		if !za.Severity.AtLeast(alerts.SeverityHigh) {
			continue
		}
		if !za.AffectsRoute && za.Zone.Priority != zones.PriorityCritical {
			continue
		}

		priority := PriorityMedium
		if za.Severity == alerts.SeverityCritical {
			priority = PriorityHigh
		}
		title := "Alerta"
		if za.Zone.Name != "" {
			title = fmt.Sprintf("Alerta en %s", za.Zone.Name)
		}
		if za.Type != "" {
			title = fmt.Sprintf("%s: %s", title, za.Type)
		}
		recs = append(recs, Recommendation{
			ID:          "rec-alert-" + za.ID,
			Category:    CategoryAlert,
			Title:       title,
			Description: strings.TrimSpace(za.Description + " Considera una ruta alternativa."),
			Priority:    priority,
			Actionable:  true,
		})
	}
	return recs
}

func suggestions(in Input) []string {
	var out []string
	if in.Selected != nil {
		if in.Selected.CO2Kg > highCO2Kg {
			out = append(out, "Considera usar transporte público para reducir tu huella de carbono")
		}
		if in.Selected.Cost() > highCost {
			out = append(out, "Busca opciones más económicas como caminar o usar bicicleta")
		}
	}
	if len(in.Alerts) > busyAlertCount {
		out = append(out, "Hay múltiples alertas activas. Considera retrasar tu viaje si es posible")
	}

	seen := map[string]bool{}
	for _, f := range in.Forecasts {
		if f.PredictedLevel != traffic.Severe || seen[f.Zone] {
			continue
		}
		seen[f.Zone] = true
		out = append(out, fmt.Sprintf("Se espera congestión severa en %s en los próximos %d minutos", f.Zone, f.HorizonMinutes))
	}
	return out
}

func joinModes(modes []routing.Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, " + ")
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
