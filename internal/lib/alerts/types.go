package alerts

import (
	"context"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

// Severity is the ordinal impact of an alert: low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min. An empty min admits everything.
func (s Severity) AtLeast(min Severity) bool {
	return min == "" || s.Rank() >= min.Rank()
}

// ParseSeverity accepts English and Spanish severity names
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "critica", "crítica", "severe":
		return SeverityCritical, true
	case "high", "alta":
		return SeverityHigh, true
	case "medium", "media", "moderate":
		return SeverityMedium, true
	case "low", "baja", "light":
		return SeverityLow, true
	}
	return "", false
}

// AlertType classifies what kind of event an alert reports
type AlertType string

const (
	TypeAccident     AlertType = "accident"
	TypeConstruction AlertType = "construction"
	TypeEvent        AlertType = "event"
	TypeProtest      AlertType = "protest"
	TypeWeather      AlertType = "weather"
	TypeClosure      AlertType = "closure"
	TypeCongestion   AlertType = "congestion"
	TypeOther        AlertType = "other"
)

// Alert is an incident signal from an external producer. Alerts are read-only inputs.
type Alert struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description"`
	Type        AlertType  `json:"type,omitempty"`
	Severity    Severity   `json:"severity"`
	Location    *geo.Point `json:"location,omitempty"`
	ZoneTag     string     `json:"zone_tag,omitempty"` // registry zone id
	Source      string     `json:"source"`
	Timestamp   time.Time  `json:"timestamp"`
	IsActive    bool       `json:"is_active"`
}

// ZoneAlert is an alert attached to the zone it belongs to
type ZoneAlert struct {
	Alert
	Zone         zones.GeoZone `json:"zone"`
	IsPeakHour   bool          `json:"is_peak_hour"`
	AffectsRoute bool          `json:"affects_route"`
}

// Filters narrow correlation output. All set fields must match.
type Filters struct {
	ZoneIDs            []string `json:"zone_ids,omitempty"`
	SeverityMin        Severity `json:"severity_min,omitempty"`
	PeakOnly           bool     `json:"peak_only,omitempty"`
	RouteAffectingOnly bool     `json:"route_affecting_only,omitempty"`
}

// ZoneSummary aggregates correlated alerts for one zone
type ZoneSummary struct {
	ZoneID         string         `json:"zone_id"`
	ZoneName       string         `json:"zone_name"`
	Priority       zones.Priority `json:"priority"`
	Total          int            `json:"total"`
	HighOrCritical int            `json:"high_or_critical"`
	Critical       int            `json:"critical"`
	IsPeakHour     bool           `json:"is_peak_hour"`
}

// Classification is the inferred type and severity of free-text signals
type Classification struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Summary  string    `json:"summary,omitempty"`
}

// Classifier infers type and severity from raw incident text
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}
