package rand

import (
	"math"

	"github.com/MichaelTJones/pcg"
)

// Rand is an explicit, seedable random source. Every stochastic draw in
// the simulation goes through a *Rand handed down by the caller; there is
// no package-level generator.
type Rand struct {
	r *pcg.PCG32

	// cached second normal deviate from the polar method
	haveNorm bool
	norm     float64
}

// New returns a generator on the given seed and stream. Distinct streams
// with the same seed produce independent sequences, which is how each
// Monte Carlo iteration gets its own generator without depending on
// execution order.
func New(seed int64, stream uint64) *Rand {
	r := &Rand{r: pcg.NewPCG32()}
	r.r.Seed(uint64(seed), stream)
	return r
}

func (r *Rand) Uint32() uint32 {
	return r.r.Random()
}

// Intn returns a uniform value in [0,n). It panics if n <= 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("rand: invalid argument to Intn")
	}
	return int(r.r.Bounded(uint32(n)))
}

// Float64 returns a uniform value in [0,1) with 53 bits of precision.
func (r *Rand) Float64() float64 {
	a := uint64(r.r.Random()) >> 5
	b := uint64(r.r.Random()) >> 6
	return (float64(a)*67108864 + float64(b)) / 9007199254740992
}

// Uniform returns a value in [lo,hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// NormFloat64 returns a standard normal deviate (Marsaglia polar method).
func (r *Rand) NormFloat64() float64 {
	if r.haveNorm {
		r.haveNorm = false
		return r.norm
	}
	for {
		u := 2*r.Float64() - 1
		v := 2*r.Float64() - 1
		s := u*u + v*v
		if s == 0 || s >= 1 {
			continue
		}
		f := math.Sqrt(-2 * math.Log(s) / s)
		r.norm, r.haveNorm = v*f, true
		return u * f
	}
}

// Bernoulli returns true with probability p.
func (r *Rand) Bernoulli(p float64) bool {
	return r.Float64() < p
}

// Shuffle permutes n elements in place via swap (Fisher-Yates).
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, r.Intn(i+1))
	}
}

// SampleSlice uniformly randomly samples an element of a non-empty slice.
func SampleSlice[T any](r *Rand, slice []T) T {
	return slice[r.Intn(len(slice))]
}
