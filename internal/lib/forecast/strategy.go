package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientHistory is returned when the series is too short to fit the model
	ErrInsufficientHistory = errors.New("insufficient history for seasonal model")
	// ErrEmptySeries is returned when no observations are available
	ErrEmptySeries = errors.New("empty series")
)

// SeasonalAR fits x[t] = c + φ1·x[t-1] + … + φp·x[t-p] + Φ·x[t-period] by
// ordinary least squares and forecasts recursively.
type SeasonalAR struct {
	Order int
}

// Name implements Strategy
func (SeasonalAR) Name() string { return "seasonal_ar" }

// Predict implements Strategy
func (s SeasonalAR) Predict(series []float64, period, steps int) (Prediction, error) {
	p := s.Order
	if p <= 0 {
		p = 2
	}
	if period <= 0 {
		return Prediction{}, fmt.Errorf("invalid seasonal period %d", period)
	}

	lag := period
	if p > lag {
		lag = p
	}
	cols := p + 2
	rows := len(series) - lag
	if rows < 2*cols {
		return Prediction{}, ErrInsufficientHistory
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + lag
		x.Set(r, 0, 1)
		for i := 1; i <= p; i++ {
			x.Set(r, i, series[t-i])
		}
		x.Set(r, p+1, series[t-period])
		y.SetVec(r, series[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return Prediction{}, fmt.Errorf("failed to fit seasonal AR: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var sse float64
	for r := 0; r < rows; r++ {
		d := y.AtVec(r) - fitted.AtVec(r)
		sse += d * d
	}
	sigma := math.Sqrt(sse / float64(rows-cols))

	ext := make([]float64, len(series), len(series)+steps)
	copy(ext, series)

	pred := Prediction{
		Values: make([]float64, 0, steps),
		Errors: make([]float64, 0, steps),
	}
	for h := 1; h <= steps; h++ {
		t := len(ext)
		v := beta.AtVec(0)
		for i := 1; i <= p; i++ {
			v += beta.AtVec(i) * ext[t-i]
		}
		v += beta.AtVec(p+1) * ext[t-period]

		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("seasonal AR produced non-finite forecast at step %d", h)
		}

		ext = append(ext, v)
		pred.Values = append(pred.Values, v)
		pred.Errors = append(pred.Errors, sigma*math.Sqrt(float64(h)))
	}

	return pred, nil
}

// SeasonalNaive repeats the value observed exactly one period earlier
type SeasonalNaive struct{}

// Name implements Strategy
func (SeasonalNaive) Name() string { return "seasonal_naive" }

// Predict implements Strategy. The error estimate is 0.3 standard deviations of the series.
func (SeasonalNaive) Predict(series []float64, period, steps int) (Prediction, error) {
	n := len(series)
	if n == 0 {
		return Prediction{}, ErrEmptySeries
	}

	errEstimate := 0.3 * stdDev(series)
	pred := Prediction{
		Values: make([]float64, steps),
		Errors: make([]float64, steps),
	}
	for i := 0; i < steps; i++ {
		v := series[n-1]
		if period > 0 {
			if idx := n - period + (i % period); idx >= 0 {
				v = series[idx]
			}
		}
		pred.Values[i] = v
		pred.Errors[i] = errEstimate
	}

	return pred, nil
}

// stdDev is the sample standard deviation, zero for fewer than two points
func stdDev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	return stat.StdDev(series, nil)
}

// recentTrend compares the late and early halves of the last 24 observations
func recentTrend(series []float64) float64 {
	window := len(series)
	if window > 24 {
		window = 24
	}
	if window < 2 {
		return 0
	}

	recent := series[len(series)-window:]
	half := window / 2
	return stat.Mean(recent[half:], nil) - stat.Mean(recent[:half], nil)
}
