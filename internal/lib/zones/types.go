package zones

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// Priority is the congestion tier of a zone
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
)

// Rank orders tiers so that critical sorts first when ranked descending
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ZoneType describes the kind of corridor a zone covers
type ZoneType string

const (
	TypeHighway      ZoneType = "highway"
	TypeAvenue       ZoneType = "avenue"
	TypeIntersection ZoneType = "intersection"
	TypeDistrict     ZoneType = "district"
)

// GeoZone is a bounded area known to exhibit elevated congestion
type GeoZone struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Type                ZoneType     `json:"type"`
	Description         string       `json:"description,omitempty"`
	Center              geo.Point    `json:"center"`
	Bounds              geo.Bounds   `json:"bounds"`
	Keywords            []string     `json:"keywords"`
	PeakHours           []PeakWindow `json:"peak_hours"`
	AverageDelayMinutes int          `json:"average_delay_minutes"`
	Priority            Priority     `json:"priority"`
}

// InPeak reports whether the time-of-day of now falls in any peak window.
// The comparison uses the location carried by now.
func (z GeoZone) InPeak(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	for _, w := range z.PeakHours {
		if w.Contains(minute) {
			return true
		}
	}
	return false
}

// RadiusKm approximates the zone extent as the larger side of its bounds
func (z GeoZone) RadiusKm() float64 {
	const kmPerDegree = 111.0
	lat := z.Bounds.North - z.Bounds.South
	lng := z.Bounds.East - z.Bounds.West
	if lng > lat {
		return lng * kmPerDegree
	}
	return lat * kmPerDegree
}

func (z GeoZone) clone() GeoZone {
	out := z
	out.Keywords = append([]string(nil), z.Keywords...)
	out.PeakHours = append([]PeakWindow(nil), z.PeakHours...)
	return out
}

// PeakWindow is an inclusive time-of-day interval in minutes since midnight.
// A window whose start is after its end wraps past midnight.
type PeakWindow struct {
	Start int
	End   int
}

// ParsePeakWindow parses the "HH:MM-HH:MM" form
func ParsePeakWindow(s string) (PeakWindow, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return PeakWindow{}, fmt.Errorf("invalid peak window %q: expected HH:MM-HH:MM", s)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return PeakWindow{}, fmt.Errorf("invalid peak window %q: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return PeakWindow{}, fmt.Errorf("invalid peak window %q: %w", s, err)
	}

	return PeakWindow{Start: start, End: end}, nil
}

// MustPeakWindow is ParsePeakWindow for static catalogs
func MustPeakWindow(s string) PeakWindow {
	w, err := ParsePeakWindow(s)
	if err != nil {
		panic(err)
	}
	return w
}

// Contains reports whether minute-of-day m lies inside the window, bounds included
func (w PeakWindow) Contains(m int) bool {
	if w.Start <= w.End {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

func (w PeakWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// MarshalText encodes the window as "HH:MM-HH:MM"
func (w PeakWindow) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes the "HH:MM-HH:MM" form
func (w *PeakWindow) UnmarshalText(text []byte) error {
	parsed, err := ParsePeakWindow(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

func parseClock(s string) (int, error) {
	hm := strings.Split(strings.TrimSpace(s), ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
