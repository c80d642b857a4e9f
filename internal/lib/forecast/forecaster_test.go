package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/lib/traffic"
)

// base is a Wednesday morning
var base = time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC)

type MockSeriesSource struct {
	mock.Mock
}

func (m *MockSeriesSource) Series(ctx context.Context, zone string, features Features, opts Options) ([]float64, error) {
	args := m.Called(ctx, zone, features, opts)
	series, _ := args.Get(0).([]float64)
	return series, args.Error(1)
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Predict([]float64, int, int) (Prediction, error) {
	return Prediction{}, errors.New("model did not converge")
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "panicking" }
func (panickingStrategy) Predict([]float64, int, int) (Prediction, error) {
	panic("index out of range")
}

type nanStrategy struct{}

func (nanStrategy) Name() string { return "nan" }
func (nanStrategy) Predict(_ []float64, _ int, steps int) (Prediction, error) {
	values := make([]float64, steps)
	for i := range values {
		values[i] = math.NaN()
	}
	return Prediction{Values: values}, nil
}

func optsAt(t time.Time) Options {
	o := DefaultOptions()
	o.BaseTime = t
	return o
}

func TestForecast_ReturnsOnePerHorizon(t *testing.T) {
	f := NewForecaster()
	opts := optsAt(base)
	opts.Horizons = []int{15, 30, 45, 60, 90, 120}

	results := f.Forecast(context.Background(), "Autopista Norte", Features{Weather: WeatherClear}, opts)
	require.Len(t, results, len(opts.Horizons))

	for i, r := range results {
		assert.Equal(t, "Autopista Norte", r.Zone)
		assert.Equal(t, opts.Horizons[i], r.HorizonMinutes)
		assert.Equal(t, base.Add(time.Duration(opts.Horizons[i])*time.Minute), r.ForAt)
		assert.GreaterOrEqual(t, r.RawIntensity, 0.0)
		assert.LessOrEqual(t, r.RawIntensity, 1.0)
		assert.Equal(t, traffic.LevelForIntensity(r.RawIntensity), r.PredictedLevel)
		assert.GreaterOrEqual(t, r.Confidence, 0.6)
		assert.LessOrEqual(t, r.Confidence, 0.95)
		require.NotEmpty(t, r.ContributingFactors)
		assert.Equal(t, FactorSeasonal, r.ContributingFactors[0])
		assert.NotContains(t, r.ContributingFactors, FactorFallback)
	}
}

func TestForecast_Factors(t *testing.T) {
	f := NewForecaster()

	rush := f.Forecast(context.Background(), "Regional", Features{Weather: WeatherRainy, IsHoliday: true}, optsAt(base))
	require.Len(t, rush, 2)
	assert.Contains(t, rush[0].ContributingFactors, FactorPeakHour)
	assert.Contains(t, rush[0].ContributingFactors, FactorRainy)
	assert.Contains(t, rush[0].ContributingFactors, FactorHoliday)

	midday := f.Forecast(context.Background(), "Regional", Features{Weather: WeatherClear}, optsAt(base.Add(4*time.Hour)))
	assert.NotContains(t, midday[0].ContributingFactors, FactorPeakHour)
	assert.NotContains(t, midday[0].ContributingFactors, FactorRainy)
	assert.NotContains(t, midday[0].ContributingFactors, FactorHoliday)
}

func TestForecast_IsDeterministic(t *testing.T) {
	f := NewForecaster()
	a := f.Forecast(context.Background(), "Avenida Oriental", Features{}, optsAt(base))
	b := f.Forecast(context.Background(), "Avenida Oriental", Features{}, optsAt(base))
	assert.Equal(t, a, b)
}

func TestForecast_FallbackOnModelFailure(t *testing.T) {
	f := NewForecaster(WithStrategy(failingStrategy{}))
	opts := optsAt(base)
	features := Features{Weather: WeatherCloudy}

	first := f.Forecast(context.Background(), "Carrera 70", features, opts)
	second := f.Forecast(context.Background(), "Carrera 70", features, opts)
	require.Len(t, first, 2)
	assert.Equal(t, first, second, "fallback output must be reproducible")

	series := syntheticSeries("Carrera 70", features, opts.withDefaults())
	naive, err := SeasonalNaive{}.Predict(series, 96, 4)
	require.NoError(t, err)

	expected := naive.Values[1] // 30 minutes ahead on a 15 minute grid
	if recentTrend(series) > 0 {
		expected += 0.05
	}
	expected = clamp(expected, 0, 1)

	assert.InDelta(t, expected, first[0].RawIntensity, 1e-12)
	assert.InDelta(t, clamp(0.95-0.2*stdDev(series), 0.6, 0.95), first[0].Confidence, 1e-12)
	assert.Contains(t, first[0].ContributingFactors, FactorSeasonal)
	assert.Contains(t, first[0].ContributingFactors, FactorFallback)
}

func TestForecast_FallbackOnPanicAndNonFiniteOutput(t *testing.T) {
	reference := NewForecaster(WithStrategy(failingStrategy{})).
		Forecast(context.Background(), "Las Palmas", Features{}, optsAt(base))

	for _, s := range []Strategy{panickingStrategy{}, nanStrategy{}} {
		results := NewForecaster(WithStrategy(s)).
			Forecast(context.Background(), "Las Palmas", Features{}, optsAt(base))
		assert.Equal(t, reference, results, s.Name())
	}
}

func TestForecast_SeriesSourceFailureUsesSynthetic(t *testing.T) {
	opts := optsAt(base)
	source := &MockSeriesSource{}
	source.On("Series", mock.Anything, "Autopista Sur", Features{}, mock.AnythingOfType("forecast.Options")).
		Return(nil, errors.New("telemetry unavailable"))

	results := NewForecaster(WithSeriesSource(source)).
		Forecast(context.Background(), "Autopista Sur", Features{}, opts)
	expected := NewForecaster().Forecast(context.Background(), "Autopista Sur", Features{}, opts)

	assert.Equal(t, expected, results)
	source.AssertExpectations(t)
}

func TestForecast_ExternalSeries(t *testing.T) {
	// Flat series: no trend, constant prediction
	flat := make([]float64, 96*3)
	for i := range flat {
		flat[i] = 0.7
	}

	source := &MockSeriesSource{}
	source.On("Series", mock.Anything, "Centro", mock.Anything, mock.Anything).Return(flat, nil)

	results := NewForecaster(WithSeriesSource(source), WithStrategy(SeasonalNaive{})).
		Forecast(context.Background(), "Centro", Features{}, optsAt(base))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.InDelta(t, 0.7, r.RawIntensity, 1e-12)
		assert.Equal(t, traffic.High, r.PredictedLevel)
		assert.InDelta(t, 0.95, r.Confidence, 1e-12, "zero error yields the confidence ceiling")
		assert.NotContains(t, r.ContributingFactors, FactorIncreasing)
		assert.NotContains(t, r.ContributingFactors, FactorDecreasing)
	}
}

func TestForecast_SmallHorizonsUseFirstStep(t *testing.T) {
	f := NewForecaster(WithStrategy(failingStrategy{}))
	opts := optsAt(base)
	opts.Horizons = []int{0, 5, 15}

	results := f.Forecast(context.Background(), "Poblado", Features{}, opts)
	require.Len(t, results, 3)
	assert.Equal(t, results[0].RawIntensity, results[1].RawIntensity)
	assert.Equal(t, results[1].RawIntensity, results[2].RawIntensity)
}

func TestForecastMany(t *testing.T) {
	f := NewForecaster()
	zones := []string{"Autopista Norte", "Avenida 33", "Vía Las Palmas"}

	results := f.ForecastMany(context.Background(), zones, Features{}, optsAt(base))
	require.Len(t, results, 6)

	for i, z := range zones {
		assert.Equal(t, z, results[2*i].Zone)
		assert.Equal(t, z, results[2*i+1].Zone)
		assert.Equal(t, f.Forecast(context.Background(), z, Features{}, optsAt(base)), results[2*i:2*i+2])
	}

	assert.Empty(t, f.ForecastMany(context.Background(), nil, Features{}, optsAt(base)))
}
