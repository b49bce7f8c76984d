package wind

import (
	"errors"
	"fmt"
	"math"

	"github.com/smukkama/survey-sim/internal/rand"
)

// Mode says what happens to a draw outside the flyable range
type Mode string

const (
	// ModeRedraw re-samples until a flyable speed comes up or MaxDraws is
	// exhausted, which matches filtering the record to flyable hours.
	ModeRedraw Mode = "redraw"
	// ModeGround grounds the period on the first out-of-range draw.
	ModeGround Mode = "ground"
)

var ErrInvalidSampler = errors.New("invalid wind sampler")

// Sample is the wind assigned to one survey period
type Sample struct {
	Period  int     `json:"period"`
	SpeedMS float64 `json:"wind_speed_ms"`
	Flyable bool    `json:"flyable"`
	Draws   int     `json:"draws"`
}

// Sampler draws per-period wind from seasonal distributions and enforces
// the flyable range. Seasons are indexed by period modulo their count.
type Sampler struct {
	Seasons  []Distribution
	Min, Max float64
	Mode     Mode
	MaxDraws int
}

func (s Sampler) Validate() error {
	switch {
	case len(s.Seasons) == 0:
		return fmt.Errorf("%w: no seasonal distributions", ErrInvalidSampler)
	case math.IsNaN(s.Min) || math.IsNaN(s.Max) || s.Min < 0 || s.Min > s.Max:
		return fmt.Errorf("%w: flyable range [%v, %v]", ErrInvalidSampler, s.Min, s.Max)
	case s.Mode != ModeRedraw && s.Mode != ModeGround:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSampler, s.Mode)
	case s.Mode == ModeRedraw && s.MaxDraws < 1:
		return fmt.Errorf("%w: max draws must be at least 1", ErrInvalidSampler)
	}
	for i, d := range s.Seasons {
		if d == nil {
			return fmt.Errorf("%w: season %d has no distribution", ErrInvalidSampler, i)
		}
	}
	return nil
}

func (s Sampler) Flyable(speed float64) bool {
	return speed >= s.Min && speed <= s.Max
}

// Draw samples the wind for a period. A speed is only reported flyable if
// it lies within [Min, Max].
func (s Sampler) Draw(period int, r *rand.Rand) Sample {
	d := s.Seasons[period%len(s.Seasons)]
	maxDraws := s.MaxDraws
	if s.Mode == ModeGround || maxDraws < 1 {
		maxDraws = 1
	}

	var w Sample
	w.Period = period
	for w.Draws < maxDraws {
		w.SpeedMS = d.Sample(r)
		w.Draws++
		if s.Flyable(w.SpeedMS) {
			w.Flyable = true
			break
		}
	}
	return w
}

// FlyableFraction is the share of a wind record inside [min, max].
func FlyableFraction(speeds []float64, min, max float64) float64 {
	if len(speeds) == 0 {
		return 0
	}
	n := 0
	for _, v := range speeds {
		if v >= min && v <= max {
			n++
		}
	}
	return float64(n) / float64(len(speeds))
}
