// Package forecast predicts near-term zone congestion from an intensity series.
//
// The primary strategy is a seasonal autoregressive model with daily
// periodicity. Any failure of that model, including a panic, switches to the
// seasonal-naive strategy, so forecasting always produces a result.
package forecast

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"golang.org/x/sync/errgroup"

	"github.com/movilityai/tripplanner/internal/lib/traffic"
)

// Forecaster turns a zone series into multi-horizon congestion forecasts
type Forecaster struct {
	source   SeriesSource
	primary  Strategy
	fallback Strategy
}

// Option configures a Forecaster
type Option func(*Forecaster)

// WithSeriesSource replaces the synthetic series with another source
func WithSeriesSource(source SeriesSource) Option {
	return func(f *Forecaster) { f.source = source }
}

// WithStrategy replaces the primary model
func WithStrategy(s Strategy) Option {
	return func(f *Forecaster) { f.primary = s }
}

// NewForecaster creates a forecaster using the synthetic series and seasonal AR model by default
func NewForecaster(opts ...Option) *Forecaster {
	f := &Forecaster{
		source:   SyntheticSource{},
		primary:  SeasonalAR{Order: 2},
		fallback: SeasonalNaive{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forecast returns exactly one forecast per requested horizon, in horizon order
func (f *Forecaster) Forecast(ctx context.Context, zone string, features Features, opts Options) []CongestionForecast {
	ctx = logging.EnsureLogger(ctx)
	opts = opts.withDefaults()
	interval := opts.IntervalMinutes

	series := f.series(ctx, zone, features, opts)
	period := int(math.Round(1440 / float64(interval)))

	steps := 1
	for _, h := range opts.Horizons {
		if s := int(math.Ceil(float64(h) / float64(interval))); s > steps {
			steps = s
		}
	}

	pred, usedFallback := f.predict(ctx, zone, series, period, steps)

	lastObserved := series[len(series)-1]
	trend := recentTrend(series)
	std := stdDev(series)

	out := make([]CongestionForecast, 0, len(opts.Horizons))
	for _, h := range opts.Horizons {
		step := int(math.Ceil(float64(h)/float64(interval))) - 1
		if step < 0 {
			step = 0
		}

		value := lastObserved
		if step < len(pred.Values) {
			value = pred.Values[step]
		}
		if trend > 0 {
			value += 0.05
		}
		if features.IsHoliday {
			value *= 0.7
		}
		value = clamp(value, 0, 1)

		normalizedError := 0.2 * std
		if !usedFallback && step < len(pred.Errors) {
			normalizedError = pred.Errors[step] / (value + 0.1)
		}

		forAt := opts.BaseTime.Add(time.Duration(h) * time.Minute)

		factors := []string{FactorSeasonal}
		if isRushHour(forAt.Hour()) {
			factors = append(factors, FactorPeakHour)
		}
		if features.Weather == WeatherRainy {
			factors = append(factors, FactorRainy)
		}
		if features.IsHoliday {
			factors = append(factors, FactorHoliday)
		}
		switch {
		case value > lastObserved:
			factors = append(factors, FactorIncreasing)
		case value < lastObserved:
			factors = append(factors, FactorDecreasing)
		}
		if usedFallback {
			factors = append(factors, FactorFallback)
		}

		out = append(out, CongestionForecast{
			Zone:                zone,
			HorizonMinutes:      h,
			PredictedLevel:      traffic.LevelForIntensity(value),
			Confidence:          clamp(0.95-normalizedError, 0.6, 0.95),
			ContributingFactors: factors,
			ForAt:               forAt,
			RawIntensity:        value,
		})
	}

	return out
}

// ForecastMany forecasts each zone independently and concatenates results in zone order
func (f *Forecaster) ForecastMany(ctx context.Context, zones []string, features Features, opts Options) []CongestionForecast {
	ctx = logging.EnsureLogger(ctx)
	opts = opts.withDefaults()
	results := make([][]CongestionForecast, len(zones))

	g, gctx := errgroup.WithContext(ctx)
	for i, zone := range zones {
		g.Go(func() error {
			results[i] = f.Forecast(gctx, zone, features, opts)
			return nil
		})
	}
	_ = g.Wait()

	var out []CongestionForecast
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// series fetches from the configured source, degrading to the synthetic series
func (f *Forecaster) series(ctx context.Context, zone string, features Features, opts Options) []float64 {
	series, err := f.source.Series(ctx, zone, features, opts)
	if err == nil && len(series) > 0 {
		return series
	}
	if err == nil {
		err = ErrEmptySeries
	}
	logging.Warnw(ctx, "forecast: series source failed, using synthetic series",
		"zone", zone, "error", err)
	if synthetic := syntheticSeries(zone, features, opts); len(synthetic) > 0 {
		return synthetic
	}
	return []float64{0}
}

// predict runs the primary strategy and switches to the fallback on any failure
func (f *Forecaster) predict(ctx context.Context, zone string, series []float64, period, steps int) (pred Prediction, usedFallback bool) {
	pred, err := safePredict(ctx, f.primary, series, period, steps)
	if err == nil {
		return pred, false
	}

	logging.Warnw(ctx, "forecast: primary model failed, using fallback",
		"zone", zone, "model", f.primary.Name(), "fallback", f.fallback.Name(), "error", err)

	pred, err = safePredict(ctx, f.fallback, series, period, steps)
	if err != nil {
		// Both strategies failed; hold the last observation flat.
		logging.Errorw(ctx, "forecast: fallback model failed", "zone", zone, "error", err)
		return Prediction{}, true
	}
	return pred, true
}

func safePredict(ctx context.Context, s Strategy, series []float64, period, steps int) (pred Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackErr, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "forecast: recovered from panic in model",
				"model", s.Name(), "error", r, "error.stack_trace", stackErr.MinimalStack(3, 5))
			pred = Prediction{}
			err = fmt.Errorf("%s panicked: %v", s.Name(), r)
		}
	}()

	pred, err = s.Predict(series, period, steps)
	if err != nil {
		return Prediction{}, err
	}
	if len(pred.Values) < steps {
		return Prediction{}, fmt.Errorf("%s returned %d of %d steps", s.Name(), len(pred.Values), steps)
	}
	for i, v := range pred.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%s returned non-finite value at step %d", s.Name(), i+1)
		}
	}
	return pred, nil
}
