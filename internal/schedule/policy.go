package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/rand"
)

// ErrUnknownPolicy is returned by ParsePolicy
var ErrUnknownPolicy = errors.New("unknown selection policy")

// Kind names a selection policy
type Kind string

const (
	KindRandom     Kind = "random"
	KindPriority   Kind = "priority"
	KindStratified Kind = "stratified"
	KindRotation   Kind = "rotation"
)

// Policy picks at most quota clusters from candidates. The returned slice is
// in preference order: the scheduler walks it and stops at the first cluster
// that would break the budget.
type Policy interface {
	Kind() Kind
	Select(candidates []*cluster.Cluster, quota int, r *rand.Rand) []*cluster.Cluster
}

// ParsePolicy maps a policy name to its implementation. strata only
// matters for the stratified policy; values below 1 mean quartiles.
func ParsePolicy(name string, strata int) (Policy, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindRandom:
		return Random{}, nil
	case KindPriority:
		return Priority{}, nil
	case KindStratified:
		if strata < 1 {
			strata = 4
		}
		return Stratified{Strata: strata}, nil
	case KindRotation:
		return Rotating{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Random draws uniformly without replacement.
type Random struct{}

func (Random) Kind() Kind { return KindRandom }

func (Random) Select(candidates []*cluster.Cluster, quota int, r *rand.Rand) []*cluster.Cluster {
	return shuffled(candidates, quota, r)
}

// Priority takes the highest aggregate emitters first.
type Priority struct{}

func (Priority) Kind() Kind { return KindPriority }

func (Priority) Select(candidates []*cluster.Cluster, quota int, _ *rand.Rand) []*cluster.Cluster {
	out := append([]*cluster.Cluster(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EmissionKgh != out[j].EmissionKgh {
			return out[i].EmissionKgh > out[j].EmissionKgh
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, quota)
}

// Stratified splits candidates into equal-count emission strata and draws
// from each in proportion to its size. Picks are interleaved across strata
// so a budget cut trims every stratum evenly.
type Stratified struct {
	Strata int
}

func (Stratified) Kind() Kind { return KindStratified }

func (s Stratified) Select(candidates []*cluster.Cluster, quota int, r *rand.Rand) []*cluster.Cluster {
	n := len(candidates)
	if n == 0 || quota <= 0 {
		return nil
	}
	if quota > n {
		quota = n
	}

	strata := Strata(candidates, s.Strata)
	take := apportion(strata, quota)

	picks := make([][]*cluster.Cluster, len(strata))
	for i, st := range strata {
		picks[i] = shuffled(st, take[i], r)
	}

	out := make([]*cluster.Cluster, 0, quota)
	for k := 0; len(out) < quota; k++ {
		for _, p := range picks {
			if k < len(p) {
				out = append(out, p[k])
			}
		}
	}
	return out
}

// Strata partitions clusters into k groups of near-equal count by
// ascending aggregate emission. Ties are broken by cluster ID.
func Strata(clusters []*cluster.Cluster, k int) [][]*cluster.Cluster {
	if k < 1 {
		k = 1
	}
	sorted := append([]*cluster.Cluster(nil), clusters...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EmissionKgh != sorted[j].EmissionKgh {
			return sorted[i].EmissionKgh < sorted[j].EmissionKgh
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	if k > n {
		k = n
	}
	strata := make([][]*cluster.Cluster, 0, k)
	for i := 0; i < k; i++ {
		lo, hi := i*n/k, (i+1)*n/k
		strata = append(strata, sorted[lo:hi])
	}
	return strata
}

// apportion splits quota across strata by largest remainder, lower strata
// first on ties.
func apportion(strata [][]*cluster.Cluster, quota int) []int {
	n := 0
	for _, s := range strata {
		n += len(s)
	}
	take := make([]int, len(strata))
	rem := make([]int, len(strata))
	left := quota
	for i, s := range strata {
		take[i] = quota * len(s) / n
		rem[i] = quota * len(s) % n
		left -= take[i]
	}
	idx := make([]int, len(strata))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rem[idx[a]] > rem[idx[b]] })
	for _, i := range idx {
		if left == 0 {
			break
		}
		if take[i] < len(strata[i]) {
			take[i]++
			left--
		}
	}
	return take
}

// Rotating draws at random among clusters not yet surveyed in the active
// rotation cycle. The scheduler owns the cycle and filters candidates
// before calling Select.
type Rotating struct{}

func (Rotating) Kind() Kind { return KindRotation }

func (Rotating) Select(candidates []*cluster.Cluster, quota int, r *rand.Rand) []*cluster.Cluster {
	return shuffled(candidates, quota, r)
}

// shuffled returns the first k of a random permutation of cs, leaving cs
// untouched.
func shuffled(cs []*cluster.Cluster, k int, r *rand.Rand) []*cluster.Cluster {
	if k <= 0 || len(cs) == 0 {
		return nil
	}
	out := append([]*cluster.Cluster(nil), cs...)
	if k > len(out) {
		k = len(out)
	}
	// partial Fisher-Yates
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:k]
}

func truncate(cs []*cluster.Cluster, k int) []*cluster.Cluster {
	if k <= 0 {
		return nil
	}
	if k < len(cs) {
		return cs[:k]
	}
	return cs
}
