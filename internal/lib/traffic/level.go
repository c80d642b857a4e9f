// Package traffic holds the congestion band shared by forecasting and routing.
package traffic

import "strings"

// Level is a four-step congestion band
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
	Severe Level = "severe"
)

// Intensity thresholds for LevelForIntensity
const (
	SevereThreshold = 0.85
	HighThreshold   = 0.65
	MediumThreshold = 0.4
)

// LevelForIntensity maps a normalized intensity in [0,1] to a band
func LevelForIntensity(v float64) Level {
	switch {
	case v >= SevereThreshold:
		return Severe
	case v >= HighThreshold:
		return High
	case v >= MediumThreshold:
		return Medium
	default:
		return Low
	}
}

// Rank orders levels from low (0) to severe (3). Unknown values rank as low.
func (l Level) Rank() int {
	switch l {
	case Severe:
		return 3
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// ParseLevel accepts a case-insensitive level name, defaulting to Low
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case Severe:
		return Severe
	case High:
		return High
	case Medium:
		return Medium
	default:
		return Low
	}
}
