package forecast

import (
	"context"
	"math"
	"time"
)

// SyntheticSource builds a deterministic series from rush-hour shape,
// weekday, per-zone, weather and holiday factors plus seeded noise.
type SyntheticSource struct{}

// Series implements SeriesSource
func (SyntheticSource) Series(_ context.Context, zone string, features Features, opts Options) ([]float64, error) {
	opts = opts.withDefaults()
	return syntheticSeries(zone, features, opts), nil
}

func syntheticSeries(zone string, features Features, opts Options) []float64 {
	interval := time.Duration(opts.IntervalMinutes) * time.Minute
	total := opts.TotalDays * 24 * 60 / opts.IntervalMinutes

	h := zoneHash(zone)
	zoneFactor := 1 + float64(h%30)/100
	rnd := newSeededRand(h)

	series := make([]float64, 0, total)
	for i := total; i >= 1; i-- {
		ts := opts.BaseTime.Add(-time.Duration(i) * interval)
		hour := ts.Hour()

		v := 0.2
		if isRushHour(hour) {
			v += 0.5
		} else if hour >= 11 && hour < 14 {
			v += 0.25
		}

		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			v *= 0.7
		} else {
			v += 0.05
		}

		v *= zoneFactor

		switch features.Weather {
		case WeatherRainy:
			v += 0.15
		case WeatherCloudy:
			v += 0.05
		}

		if features.IsHoliday {
			v *= 0.6
		}

		v += (rnd() - 0.5) * 0.1
		series = append(series, clamp(v, 0, 1))
	}

	return series
}

func isRushHour(hour int) bool {
	return (hour >= 6 && hour < 10) || (hour >= 16 && hour < 20)
}

// zoneHash is a 31-multiplier string hash over UTF-16 code units with
// 32-bit wraparound, returned as an absolute value.
func zoneHash(s string) int64 {
	var h int32
	for _, r := range s {
		if r > 0xFFFF {
			// surrogate pair
			r -= 0x10000
			h = h*31 + int32(0xD800+(r>>10))
			h = h*31 + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = h*31 + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// newSeededRand returns a linear congruential generator yielding values in [0,1)
func newSeededRand(seed int64) func() float64 {
	if seed == 0 {
		seed = 1
	}
	return func() float64 {
		seed = (seed*9301 + 49297) % 233280
		return float64(seed) / 233280
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
