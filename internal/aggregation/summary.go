package aggregation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownCIMethod is returned by ParseCIMethod
var ErrUnknownCIMethod = errors.New("unknown confidence interval method")

// CIMethod selects how the 95% confidence interval is computed
type CIMethod string

const (
	// CINormal is mean ± 1.96·std.
	CINormal CIMethod = "normal"
	// CIPercentile is the empirical 2.5th and 97.5th percentiles, linearly
	// interpolated.
	CIPercentile CIMethod = "percentile"
)

const z95 = 1.96

func ParseCIMethod(s string) (CIMethod, error) {
	switch m := CIMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case CINormal, CIPercentile:
		return m, nil
	case "":
		return CINormal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCIMethod, s)
}

// Summary describes one metric across Monte Carlo iterations.
type Summary struct {
	N      int      `json:"n"`
	Mean   float64  `json:"mean"`
	Std    float64  `json:"std"`
	CILow  float64  `json:"ci_low"`
	CIHigh float64  `json:"ci_high"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Method CIMethod `json:"ci_method"`
}

// Summarize computes the sample statistics of values. Std uses the n-1
// denominator and is zero for fewer than two values. values is not modified.
func Summarize(values []float64, method CIMethod) Summary {
	if method == "" {
		method = CINormal
	}
	s := Summary{N: len(values), Method: method}
	if len(values) == 0 {
		return s
	}

	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	if len(values) == 1 {
		s.Mean = values[0]
	} else {
		s.Mean, s.Std = stat.MeanStdDev(values, nil)
	}

	switch method {
	case CIPercentile:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		s.CILow = stat.Quantile(0.025, stat.LinInterp, sorted, nil)
		s.CIHigh = stat.Quantile(0.975, stat.LinInterp, sorted, nil)
	default:
		s.CILow = s.Mean - z95*s.Std
		s.CIHigh = s.Mean + z95*s.Std
	}
	return s
}

// Width is the span of the confidence interval.
func (s Summary) Width() float64 { return s.CIHigh - s.CILow }

// CV is the coefficient of variation, or 0 when the mean is zero.
func (s Summary) CV() float64 {
	if s.Mean == 0 || math.IsNaN(s.Mean) {
		return 0
	}
	return s.Std / math.Abs(s.Mean)
}

func (s Summary) String() string {
	return fmt.Sprintf("%.4g ± %.4g (95%% CI %.4g–%.4g, n=%d)", s.Mean, s.Std, s.CILow, s.CIHigh, s.N)
}
