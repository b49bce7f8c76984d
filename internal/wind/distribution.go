package wind

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/smukkama/survey-sim/internal/portfolio"
	"github.com/smukkama/survey-sim/internal/rand"
)

// ErrInvalidDistribution is returned by ParseDistribution
var ErrInvalidDistribution = errors.New("invalid wind distribution")

// Distribution draws wind speeds in m/s
type Distribution interface {
	Sample(r *rand.Rand) float64
	String() string
}

type Constant float64

func (c Constant) Sample(*rand.Rand) float64 { return float64(c) }
func (c Constant) String() string            { return fmt.Sprintf("const:%g", float64(c)) }

type Uniform struct{ Min, Max float64 }

func (u Uniform) Sample(r *rand.Rand) float64 { return r.Uniform(u.Min, u.Max) }
func (u Uniform) String() string              { return fmt.Sprintf("uniform:%g:%g", u.Min, u.Max) }

type Normal struct{ Mean, StdDev float64 }

func (n Normal) Sample(r *rand.Rand) float64 { return n.Mean + n.StdDev*r.NormFloat64() }
func (n Normal) String() string              { return fmt.Sprintf("normal:%g:%g", n.Mean, n.StdDev) }

// Weibull is the usual fit for surface wind speed records.
type Weibull struct{ Shape, Scale float64 }

func (w Weibull) Sample(r *rand.Rand) float64 {
	return w.Scale * math.Pow(-math.Log(1-r.Float64()), 1/w.Shape)
}
func (w Weibull) String() string { return fmt.Sprintf("weibull:%g:%g", w.Shape, w.Scale) }

// Empirical resamples observed speeds, e.g. the hourly record of a typical
// meteorological year.
type Empirical []float64

func (e Empirical) Sample(r *rand.Rand) float64 { return rand.SampleSlice(r, e) }
func (e Empirical) String() string              { return fmt.Sprintf("empirical:%d", len(e)) }

// ParseDistribution parses "kind:arg:arg" specs: const:v, uniform:min:max,
// normal:mean:sd and weibull:shape:scale. "empirical" takes its values
// from the supplied record.
func ParseDistribution(spec string, record []float64) (Distribution, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	args := make([]float64, len(parts)-1)
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q: bad argument %q", ErrInvalidDistribution, spec, p)
		}
		args[i] = v
	}
	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%w: %q: expected %d arguments", ErrInvalidDistribution, spec, n)
		}
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "const", "constant":
		if err := want(1); err != nil {
			return nil, err
		}
		return Constant(args[0]), nil
	case "uniform":
		if err := want(2); err != nil {
			return nil, err
		}
		if args[0] > args[1] {
			return nil, fmt.Errorf("%w: %q: min above max", ErrInvalidDistribution, spec)
		}
		return Uniform{Min: args[0], Max: args[1]}, nil
	case "normal":
		if err := want(2); err != nil {
			return nil, err
		}
		if args[1] < 0 {
			return nil, fmt.Errorf("%w: %q: negative standard deviation", ErrInvalidDistribution, spec)
		}
		return Normal{Mean: args[0], StdDev: args[1]}, nil
	case "weibull":
		if err := want(2); err != nil {
			return nil, err
		}
		if args[0] <= 0 || args[1] <= 0 {
			return nil, fmt.Errorf("%w: %q: shape and scale must be positive", ErrInvalidDistribution, spec)
		}
		return Weibull{Shape: args[0], Scale: args[1]}, nil
	case "empirical", "tmy":
		if err := want(0); err != nil {
			return nil, err
		}
		if len(record) == 0 {
			return nil, fmt.Errorf("%w: %q: no wind record loaded", ErrInvalidDistribution, spec)
		}
		return Empirical(record), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDistribution, parts[0])
}

// LoadRecord reads wind speeds from a CSV file with a WindSpeed or
// wind_speed column, skipping blank and unparseable cells.
func LoadRecord(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wind record: %w", err)
	}
	defer f.Close()

	rows, err := portfolio.ReadColumn(f, "windspeed", "wind_speed", "wind speed", "wspd")
	if err != nil {
		return nil, fmt.Errorf("failed to read wind record: %w", err)
	}

	var speeds []float64
	for _, cell := range rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil || math.IsNaN(v) || v < 0 {
			continue
		}
		speeds = append(speeds, v)
	}
	if len(speeds) == 0 {
		return nil, fmt.Errorf("%w: %s has no wind speeds", ErrInvalidDistribution, path)
	}
	return speeds, nil
}
