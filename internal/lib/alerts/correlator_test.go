package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

var t0 = time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC)

func clockAt(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2025, 3, 12, hour, minute, 0, 0, time.UTC) }
}

func point(lat, lng float64) *geo.Point {
	return &geo.Point{Latitude: lat, Longitude: lng}
}

func fixtureAlerts() []Alert {
	return []Alert{
		{ID: "a1", Description: "Trancón en la 33", Severity: SeverityMedium, ZoneTag: "avenida-33", Source: "twitter", Timestamp: t0, IsActive: true},
		{ID: "a2", Description: "Choque múltiple", Severity: SeverityCritical, Location: point(6.30, -75.56), Source: "waze", Timestamp: t0, IsActive: true},
		{ID: "a3", Description: "Fuera del área metropolitana", Severity: SeverityCritical, Location: point(6.40, -75.40), Source: "waze", Timestamp: t0, IsActive: true},
		{ID: "a4", Description: "Ya despejado", Severity: SeverityHigh, ZoneTag: "autopista-norte", Source: "twitter", Timestamp: t0, IsActive: false},
		{ID: "a5", Description: "Vehículo varado", Severity: SeverityHigh, ZoneTag: "carrera-70", Source: "twitter", Timestamp: t0, IsActive: true},
		{ID: "a6", Description: "Sin ubicación", Severity: SeverityCritical, Source: "twitter", Timestamp: t0, IsActive: true},
		{ID: "a7", Description: "Neblina", Severity: SeverityLow, ZoneTag: "unknown-zone", Location: point(6.15, -75.50), Source: "waze", Timestamp: t0, IsActive: true},
		{ID: "a8", Description: "Obras", Severity: SeverityHigh, ZoneTag: "autopista-norte", Source: "secretaria", Timestamp: t0.Add(5 * time.Minute), IsActive: true},
		{ID: "a9", Description: "Cierre total", Severity: SeverityCritical, ZoneTag: "autopista-sur", Source: "secretaria", Timestamp: t0.Add(10 * time.Minute), IsActive: true},
	}
}

func alertIDs(zs []ZoneAlert) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}

// Route sample point at the Avenida 33 zone center
var route = []geo.Point{{Latitude: 6.2442, Longitude: -75.5812}}

func TestCorrelate_ResolvesAndOrders(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))

	correlated := c.Correlate(fixtureAlerts(), nil, nil)
	assert.Equal(t, []string{"a9", "a2", "a8", "a1", "a5", "a7"}, alertIDs(correlated))

	byID := map[string]ZoneAlert{}
	for _, za := range correlated {
		byID[za.ID] = za
		assert.True(t, za.IsPeakHour, za.ID)
		assert.False(t, za.AffectsRoute, "no route supplied")
	}

	assert.Equal(t, "autopista-norte", byID["a2"].Zone.ID, "coordinates inside bounds attach to the zone")
	assert.Equal(t, "las-palmas", byID["a7"].Zone.ID, "unknown tag falls back to coordinates")
	assert.Equal(t, "avenida-33", byID["a1"].Zone.ID)
}

func TestCorrelate_DropsUnresolvable(t *testing.T) {
	c := NewCorrelator(zones.Default())
	ids := alertIDs(c.Correlate(fixtureAlerts(), nil, nil))

	assert.NotContains(t, ids, "a3", "outside every zone")
	assert.NotContains(t, ids, "a4", "inactive")
	assert.NotContains(t, ids, "a6", "no tag and no location")

	assert.Empty(t, c.Correlate(nil, nil, nil))
}

func TestCorrelate_RouteIntersection(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))
	correlated := c.Correlate(fixtureAlerts(), route, nil)

	var affected []string
	for _, za := range correlated {
		if za.AffectsRoute {
			affected = append(affected, za.ID)
		}
	}
	// Avenida 33 by proximity to its center, Carrera 70 by bounds containment
	assert.Equal(t, []string{"a1", "a5"}, affected)
}

func TestCorrelate_RouteProximity(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))
	calle33 := []Alert{{ID: "p1", Severity: SeverityLow, ZoneTag: "avenida-33", Timestamp: t0, IsActive: true}}

	// North of the bounds edge, about 0.9 km from the center
	near := []geo.Point{{Latitude: 6.2522, Longitude: -75.5812}}
	got := c.Correlate(calle33, near, nil)
	require.Len(t, got, 1)
	assert.True(t, got[0].AffectsRoute)

	// North of the bounds edge, about 2.9 km from the center
	far := []geo.Point{{Latitude: 6.2700, Longitude: -75.5812}}
	got = c.Correlate(calle33, far, nil)
	require.Len(t, got, 1)
	assert.False(t, got[0].AffectsRoute)
}

func TestCorrelate_Filters(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))

	got := c.Correlate(fixtureAlerts(), route, &Filters{ZoneIDs: []string{"avenida-33"}})
	assert.Equal(t, []string{"a1"}, alertIDs(got))

	got = c.Correlate(fixtureAlerts(), route, &Filters{SeverityMin: SeverityHigh})
	assert.Equal(t, []string{"a9", "a2", "a8", "a5"}, alertIDs(got))

	got = c.Correlate(fixtureAlerts(), route, &Filters{RouteAffectingOnly: true})
	assert.Equal(t, []string{"a1", "a5"}, alertIDs(got))

	got = c.Correlate(fixtureAlerts(), route, &Filters{SeverityMin: SeverityHigh, RouteAffectingOnly: true})
	assert.Equal(t, []string{"a5"}, alertIDs(got))

	got = c.Correlate(fixtureAlerts(), route, &Filters{PeakOnly: true})
	assert.Len(t, got, 6)

	offPeak := c.WithClock(clockAt(11, 0))
	assert.Empty(t, offPeak.Correlate(fixtureAlerts(), route, &Filters{PeakOnly: true}))
	for _, za := range offPeak.Correlate(fixtureAlerts(), route, nil) {
		assert.False(t, za.IsPeakHour)
	}
}

func TestHighPriorityAlerts(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))

	assert.Equal(t, []string{"a9", "a2", "a8", "a5"}, alertIDs(c.HighPriorityAlerts(fixtureAlerts(), route)))

	// Without a route, the high alert in a high-tier zone no longer qualifies
	assert.Equal(t, []string{"a9", "a2", "a8"}, alertIDs(c.HighPriorityAlerts(fixtureAlerts(), nil)))
}

func TestSummarizeByZone(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))
	summary := SummarizeByZone(c.Correlate(fixtureAlerts(), nil, nil))
	require.Len(t, summary, 5)

	ids := make([]string, len(summary))
	for i, s := range summary {
		ids[i] = s.ZoneID
	}
	assert.Equal(t, []string{"autopista-norte", "autopista-sur", "carrera-70", "avenida-33", "las-palmas"}, ids)

	norte := summary[0]
	assert.Equal(t, "Autopista Norte", norte.ZoneName)
	assert.Equal(t, zones.PriorityCritical, norte.Priority)
	assert.Equal(t, 2, norte.Total)
	assert.Equal(t, 2, norte.HighOrCritical)
	assert.Equal(t, 1, norte.Critical)
	assert.True(t, norte.IsPeakHour)

	assert.Equal(t, 1, summary[2].HighOrCritical)
	assert.Equal(t, 0, summary[3].HighOrCritical)
	assert.Empty(t, SummarizeByZone(nil))
}

func TestSummarizeByZone_HighCountsWithCritical(t *testing.T) {
	c := NewCorrelator(zones.Default()).WithClock(clockAt(7, 30))
	summary := SummarizeByZone(c.Correlate([]Alert{
		{ID: "h1", Severity: SeverityHigh, ZoneTag: "carrera-70", Timestamp: t0, IsActive: true},
		{ID: "h2", Severity: SeverityHigh, ZoneTag: "carrera-70", Timestamp: t0, IsActive: true},
		{ID: "h3", Severity: SeverityHigh, ZoneTag: "carrera-70", Timestamp: t0, IsActive: true},
		{ID: "c1", Severity: SeverityCritical, ZoneTag: "avenida-33", Timestamp: t0, IsActive: true},
	}, nil, nil))
	require.Len(t, summary, 2)

	// Avenida 33 correlates first on zone priority but has fewer high or critical alerts
	assert.Equal(t, "carrera-70", summary[0].ZoneID)
	assert.Equal(t, 3, summary[0].HighOrCritical)
	assert.Equal(t, 0, summary[0].Critical)
	assert.Equal(t, "avenida-33", summary[1].ZoneID)
	assert.Equal(t, 1, summary[1].Critical)
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.True(t, SeverityLow.AtLeast(""))

	sev, ok := ParseSeverity("Crítica")
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, sev)

	_, ok = ParseSeverity("catastrophic")
	assert.False(t, ok)
}
