package forecast

import (
	"context"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/traffic"
)

// Weather is the coarse condition fed into the synthetic series
type Weather string

const (
	WeatherClear  Weather = "clear"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
)

// Features are the conditions a forecast is made under
type Features struct {
	Weather   Weather `json:"weather"`
	IsHoliday bool    `json:"is_holiday"`
}

// Options control series shape and requested horizons
type Options struct {
	Horizons        []int     `json:"horizons"`
	IntervalMinutes int       `json:"interval_minutes"`
	TotalDays       int       `json:"total_days"`
	BaseTime        time.Time `json:"base_time"`
}

// DefaultOptions forecasts 30 and 60 minutes ahead on a 15 minute grid over 14 days of history
func DefaultOptions() Options {
	return Options{
		Horizons:        []int{30, 60},
		IntervalMinutes: 15,
		TotalDays:       14,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.Horizons) == 0 {
		o.Horizons = d.Horizons
	}
	if o.IntervalMinutes <= 0 {
		o.IntervalMinutes = d.IntervalMinutes
	}
	if o.TotalDays <= 0 {
		o.TotalDays = d.TotalDays
	}
	if o.BaseTime.IsZero() {
		o.BaseTime = time.Now()
	}
	return o
}

// Factor tags attached to forecasts
const (
	FactorSeasonal   = "seasonal_forecast"
	FactorPeakHour   = "peak_hour"
	FactorRainy      = "rainy_weather"
	FactorHoliday    = "holiday_adjustment"
	FactorIncreasing = "increasing_trend"
	FactorDecreasing = "decreasing_trend"
	FactorFallback   = "naive_fallback"
)

// CongestionForecast is the predicted congestion of a zone at one horizon
type CongestionForecast struct {
	Zone                string        `json:"zone"`
	HorizonMinutes      int           `json:"horizon_minutes"`
	PredictedLevel      traffic.Level `json:"predicted_level"`
	Confidence          float64       `json:"confidence"`
	ContributingFactors []string      `json:"contributing_factors"`
	ForAt               time.Time     `json:"for_at"`
	RawIntensity        float64       `json:"raw_intensity"`
}

// SeriesSource yields the historical intensity series for a zone: one value
// in [0,1] per interval slot over opts.TotalDays, oldest first.
type SeriesSource interface {
	Series(ctx context.Context, zone string, features Features, opts Options) ([]float64, error)
}

// Prediction is a strategy output: point forecasts and per-step error estimates
// for steps 1..len(Values). Errors may be nil when the strategy has no estimate.
type Prediction struct {
	Values []float64
	Errors []float64
}

// Strategy produces multi-step forecasts from a series with the given seasonal period
type Strategy interface {
	Name() string
	Predict(series []float64, period, steps int) (Prediction, error)
}
