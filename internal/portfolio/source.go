package portfolio

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/smukkama/survey-sim/internal/geo"
)

// ErrInvalidSource is returned for records that must not reach the engine
var ErrInvalidSource = errors.New("invalid source")

// Source is a single emission source (a well)
type Source struct {
	ID          string  `json:"id" msgpack:"id"`
	Latitude    float64 `json:"latitude" msgpack:"lat"`
	Longitude   float64 `json:"longitude" msgpack:"lon"`
	EmissionKgh float64 `json:"emission_kgh" msgpack:"e"`
}

func (s Source) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lon: s.Longitude}
}

// Validate checks a single record
func (s Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSource)
	}
	if !s.Point().Valid() {
		return fmt.Errorf("%w: %s: bad coordinate %s", ErrInvalidSource, s.ID, s.Point())
	}
	if math.IsNaN(s.EmissionKgh) || math.IsInf(s.EmissionKgh, 0) || s.EmissionKgh < 0 {
		return fmt.Errorf("%w: %s: bad emission rate %v", ErrInvalidSource, s.ID, s.EmissionKgh)
	}
	return nil
}

// Validate checks every record and rejects duplicate identifiers
func Validate(sources []Source) error {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidSource, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// SortCanonical orders sources by ID, then coordinates and emission.
func SortCanonical(sources []Source) {
	sort.Slice(sources, func(i, j int) bool {
		return Less(sources[i], sources[j])
	})
}

func Less(a, b Source) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Latitude != b.Latitude {
		return a.Latitude < b.Latitude
	}
	if a.Longitude != b.Longitude {
		return a.Longitude < b.Longitude
	}
	return a.EmissionKgh < b.EmissionKgh
}

// TotalEmission sums emission rates exactly and rounds once, so the result
// does not depend on the order of the sources.
func TotalEmission(sources []Source) float64 {
	var acc ExactSum
	for _, s := range sources {
		acc.Add(s.EmissionKgh)
	}
	return acc.Float64()
}

// ExactSum accumulates float64 values without rounding error.
type ExactSum struct {
	f *big.Float
}

// 2200 bits covers the full float64 exponent range with room for carries.
const exactPrec = 2200

func (s *ExactSum) Add(v float64) {
	if s.f == nil {
		s.f = new(big.Float).SetPrec(exactPrec)
	}
	s.f.Add(s.f, new(big.Float).SetFloat64(v))
}

func (s *ExactSum) Float64() float64 {
	if s.f == nil {
		return 0
	}
	v, _ := s.f.Float64()
	return v
}
