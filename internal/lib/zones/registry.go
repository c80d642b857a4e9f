package zones

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// Registry is an immutable, ordered catalog of congestion zones.
// Registry order is the tie-break for every lookup.
type Registry struct {
	zones []GeoZone
	byID  map[string]int
}

// NewRegistry validates and copies the given zones
func NewRegistry(zones []GeoZone) (*Registry, error) {
	r := &Registry{
		zones: make([]GeoZone, 0, len(zones)),
		byID:  make(map[string]int, len(zones)),
	}

	for _, z := range zones {
		if z.ID == "" {
			return nil, errors.New("zone id is required")
		}
		if _, dup := r.byID[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", z.ID)
		}
		if z.Bounds.North < z.Bounds.South || z.Bounds.East < z.Bounds.West {
			return nil, fmt.Errorf("zone %q has inverted bounds", z.ID)
		}

		c := z.clone()
		for i, kw := range c.Keywords {
			c.Keywords[i] = strings.ToLower(kw)
		}
		r.byID[z.ID] = len(r.zones)
		r.zones = append(r.zones, c)
	}

	return r, nil
}

// Len returns the number of zones
func (r *Registry) Len() int {
	return len(r.zones)
}

// All returns a copy of every zone in registry order
func (r *Registry) All() []GeoZone {
	out := make([]GeoZone, len(r.zones))
	for i, z := range r.zones {
		out[i] = z.clone()
	}
	return out
}

// ByID looks a zone up by its identifier
func (r *Registry) ByID(id string) (GeoZone, bool) {
	i, ok := r.byID[id]
	if !ok {
		return GeoZone{}, false
	}
	return r.zones[i].clone(), true
}

// FindByPoint returns the first zone whose bounds contain the point
func (r *Registry) FindByPoint(lat, lng float64) (GeoZone, bool) {
	p := geo.Point{Latitude: lat, Longitude: lng}
	for _, z := range r.zones {
		if z.Bounds.Contains(p) {
			return z.clone(), true
		}
	}
	return GeoZone{}, false
}

// FindByText returns the first zone with a keyword occurring in text, case-insensitively.
// Overlapping keywords resolve to the earlier zone.
func (r *Registry) FindByText(text string) (GeoZone, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return GeoZone{}, false
	}

	for _, z := range r.zones {
		for _, kw := range z.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				return z.clone(), true
			}
		}
	}
	return GeoZone{}, false
}

// InPeakWindow returns every zone currently inside one of its peak windows
func (r *Registry) InPeakWindow(now time.Time) []GeoZone {
	var out []GeoZone
	for _, z := range r.zones {
		if z.InPeak(now) {
			out = append(out, z.clone())
		}
	}
	return out
}

// ByPriority returns the zones ordered critical first, registry order within a tier
func (r *Registry) ByPriority() []GeoZone {
	out := r.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// Near returns the zones whose center is within radiusKm of the point, in registry order
func (r *Registry) Near(lat, lng, radiusKm float64) []GeoZone {
	var out []GeoZone
	for _, z := range r.zones {
		if DistanceToCenterKm(lat, lng, z) <= radiusKm {
			out = append(out, z.clone())
		}
	}
	return out
}

// DistanceToCenterKm is the haversine distance from a point to the zone center
func DistanceToCenterKm(lat, lng float64, zone GeoZone) float64 {
	return geo.HaversineKm(geo.Point{Latitude: lat, Longitude: lng}, zone.Center)
}
