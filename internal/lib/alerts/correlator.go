package alerts

import (
	"sort"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

// routeProximityKm is how close a route point must come to a zone center to count as affected
const routeProximityKm = 1.0

// Correlator attaches alerts to registry zones
type Correlator struct {
	registry *zones.Registry
	geo      geo.GeoUtils
	now      func() time.Time
}

// NewCorrelator creates a correlator over the given registry
func NewCorrelator(registry *zones.Registry) *Correlator {
	return &Correlator{registry: registry, geo: geo.NewGeoUtils(), now: time.Now}
}

// WithClock returns a copy of the correlator that evaluates peak windows at fixed times
func (c *Correlator) WithClock(now func() time.Time) *Correlator {
	return &Correlator{registry: c.registry, geo: c.geo, now: now}
}

// Correlate resolves each active alert to a zone, by explicit tag first and
// coordinate containment second, and drops alerts with no zone. Output is
// ordered by zone priority, then severity, then recency, all descending.
func (c *Correlator) Correlate(alerts []Alert, route []geo.Point, filters *Filters) []ZoneAlert {
	now := c.now()

	var zoneSet map[string]bool
	if filters != nil && len(filters.ZoneIDs) > 0 {
		zoneSet = make(map[string]bool, len(filters.ZoneIDs))
		for _, id := range filters.ZoneIDs {
			zoneSet[id] = true
		}
	}

	var out []ZoneAlert
	for _, a := range alerts {
		if !a.IsActive {
			continue
		}

		zone, ok := c.resolve(a)
		if !ok {
			continue
		}

		za := ZoneAlert{
			Alert:        a,
			Zone:         zone,
			IsPeakHour:   zone.InPeak(now),
			AffectsRoute: c.affectsRoute(zone, route),
		}

		if filters != nil {
			if zoneSet != nil && !zoneSet[zone.ID] {
				continue
			}
			if !a.Severity.AtLeast(filters.SeverityMin) {
				continue
			}
			if filters.PeakOnly && !za.IsPeakHour {
				continue
			}
			if filters.RouteAffectingOnly && !za.AffectsRoute {
				continue
			}
		}

		out = append(out, za)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := a.Zone.Priority.Rank(), b.Zone.Priority.Rank(); pa != pb {
			return pa > pb
		}
		if sa, sb := a.Severity.Rank(), b.Severity.Rank(); sa != sb {
			return sa > sb
		}
		return a.Timestamp.After(b.Timestamp)
	})

	return out
}

// HighPriorityAlerts keeps high and critical alerts that sit in a critical
// zone or touch the route.
func (c *Correlator) HighPriorityAlerts(alerts []Alert, route []geo.Point) []ZoneAlert {
	correlated := c.Correlate(alerts, route, &Filters{SeverityMin: SeverityHigh})

	out := correlated[:0]
	for _, za := range correlated {
		if za.Zone.Priority == zones.PriorityCritical || za.AffectsRoute {
			out = append(out, za)
		}
	}
	return out
}

// resolve finds the zone for an alert. An unknown tag falls through to coordinates.
func (c *Correlator) resolve(a Alert) (zones.GeoZone, bool) {
	if a.ZoneTag != "" {
		if z, ok := c.registry.ByID(a.ZoneTag); ok {
			return z, true
		}
	}
	if a.Location != nil {
		return c.registry.FindByPoint(a.Location.Latitude, a.Location.Longitude)
	}
	return zones.GeoZone{}, false
}

// affectsRoute reports whether a route point lies in the zone bounds or
// within routeProximityKm of its center
func (c *Correlator) affectsRoute(zone zones.GeoZone, route []geo.Point) bool {
	for _, p := range route {
		if zone.Bounds.Contains(p) {
			return true
		}
	}
	near, err := c.geo.FilterPointsByDistance(route, zone.Center, routeProximityKm*1000)
	return err == nil && len(near) > 0
}
