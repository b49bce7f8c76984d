package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smukkama/survey-sim/internal/geo"
	"github.com/smukkama/survey-sim/internal/portfolio"
)

// ErrInvalidParams is returned for unusable clustering parameters
var ErrInvalidParams = errors.New("invalid clustering parameters")

// Params holds clustering algorithm parameters
type Params struct {
	EpsKm   float64 // neighbourhood radius (great-circle km)
	MinSize int     // minimum sources, self included, for a core point

	// Dwell, when set, gives the on-site survey duration of a cluster
	// with the given number of members.
	Dwell func(members int) time.Duration
}

func (p Params) Validate() error {
	if math.IsNaN(p.EpsKm) || p.EpsKm <= 0 {
		return fmt.Errorf("%w: eps distance must be positive, got %v", ErrInvalidParams, p.EpsKm)
	}
	if p.MinSize < 1 {
		return fmt.Errorf("%w: min cluster size must be at least 1, got %d", ErrInvalidParams, p.MinSize)
	}
	return nil
}

// Cluster is a flight-stop unit: a group of co-located sources surveyed in
// one visit. Clusters are not modified once built.
type Cluster struct {
	ID             int
	Members        []portfolio.Source // canonical order
	Centroid       geo.Point
	EmissionKgh    float64
	SurveyDuration time.Duration
}

func (c *Cluster) Size() int { return len(c.Members) }

func (c *Cluster) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// Result is the output of one clustering pass
type Result struct {
	Clusters []*Cluster
	Noise    []portfolio.Source
	Params   Params
}

// Stats summarises a clustering result. TotalEmission is summed exactly
// over every source, so it equals the portfolio total bit for bit, which
// ClusteredEmission+NoiseEmission need not.
type Stats struct {
	Clusters            int
	ClusteredWells      int
	NoiseWells          int
	MeanWellsPerCluster float64
	ClusteredEmission   float64
	NoiseEmission       float64
	TotalEmission       float64
	TotalDwell          time.Duration
}

func (r *Result) Stats() Stats {
	s := Stats{Clusters: len(r.Clusters), NoiseWells: len(r.Noise)}
	var clustered, noise, total portfolio.ExactSum
	for _, c := range r.Clusters {
		s.ClusteredWells += c.Size()
		s.TotalDwell += c.SurveyDuration
		for _, m := range c.Members {
			clustered.Add(m.EmissionKgh)
			total.Add(m.EmissionKgh)
		}
	}
	for _, m := range r.Noise {
		noise.Add(m.EmissionKgh)
		total.Add(m.EmissionKgh)
	}
	s.ClusteredEmission = clustered.Float64()
	s.NoiseEmission = noise.Float64()
	s.TotalEmission = total.Float64()
	if s.Clusters > 0 {
		s.MeanWellsPerCluster = float64(s.ClusteredWells) / float64(s.Clusters)
	}
	return s
}

const (
	unvisited = -2
	noise     = -1
)

// DBSCAN groups sources by density over great-circle distance. A source
// is a core point if at least MinSize sources (itself included) lie within
// EpsKm; clusters are the transitive closure of core points and their
// neighbours, and everything else is noise.
//
// Sources are put in canonical order first, so membership does not depend
// on the order of the input. Cluster IDs follow centroid order.
func DBSCAN(sources []portfolio.Source, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := portfolio.Validate(sources); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Result{Params: p}, nil
	}

	sorted := append([]portfolio.Source(nil), sources...)
	portfolio.SortCanonical(sorted)

	pts := make([]geo.Point, len(sorted))
	for i, s := range sorted {
		pts[i] = s.Point()
	}
	g := newGrid(pts, p.EpsKm)

	labels := make([]int, len(sorted))
	for i := range labels {
		labels[i] = unvisited
	}

	n := 0
	for i := range sorted {
		if labels[i] != unvisited {
			continue
		}
		nb := g.neighbors(i)
		if len(nb) < p.MinSize {
			labels[i] = noise
			continue
		}

		id := n
		n++
		labels[i] = id
		queue := nb
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == noise {
				// border point
				labels[j] = id
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = id
			if nbj := g.neighbors(j); len(nbj) >= p.MinSize {
				queue = append(queue, nbj...)
			}
		}
	}

	groups := make([][]portfolio.Source, n)
	var noiseSources []portfolio.Source
	for i, l := range labels {
		if l == noise {
			noiseSources = append(noiseSources, sorted[i])
		} else {
			groups[l] = append(groups[l], sorted[i])
		}
	}

	return build(groups, noiseSources, p), nil
}

// Membership is the identifier-only form of a clustering result.
type Membership struct {
	Clusters [][]string `msgpack:"c"`
	Noise    []string   `msgpack:"n"`
}

func (r *Result) Membership() Membership {
	m := Membership{Clusters: make([][]string, len(r.Clusters))}
	for i, c := range r.Clusters {
		m.Clusters[i] = c.MemberIDs()
	}
	for _, s := range r.Noise {
		m.Noise = append(m.Noise, s.ID)
	}
	return m
}

// Rebuild reconstructs a result from membership previously produced for
// the same sources and parameters. Every source must appear exactly once.
func Rebuild(sources []portfolio.Source, m Membership, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	byID := make(map[string]portfolio.Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	used := make(map[string]bool, len(sources))
	lookup := func(ids []string) ([]portfolio.Source, error) {
		out := make([]portfolio.Source, 0, len(ids))
		for _, id := range ids {
			s, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("membership references unknown source %q", id)
			}
			if used[id] {
				return nil, fmt.Errorf("membership lists source %q twice", id)
			}
			used[id] = true
			out = append(out, s)
		}
		portfolio.SortCanonical(out)
		return out, nil
	}

	groups := make([][]portfolio.Source, len(m.Clusters))
	for i, ids := range m.Clusters {
		if len(ids) < p.MinSize {
			return nil, fmt.Errorf("membership cluster %d has %d members, fewer than %d", i, len(ids), p.MinSize)
		}
		g, err := lookup(ids)
		if err != nil {
			return nil, err
		}
		groups[i] = g
	}
	noiseSources, err := lookup(m.Noise)
	if err != nil {
		return nil, err
	}
	if len(used) != len(byID) {
		return nil, fmt.Errorf("membership covers %d of %d sources", len(used), len(byID))
	}

	return build(groups, noiseSources, p), nil
}

func build(groups [][]portfolio.Source, noiseSources []portfolio.Source, p Params) *Result {
	clusters := make([]*Cluster, len(groups))
	for i, members := range groups {
		pts := make([]geo.Point, len(members))
		for j, m := range members {
			pts[j] = m.Point()
		}
		c := &Cluster{
			Members:     members,
			Centroid:    geo.Centroid(pts),
			EmissionKgh: portfolio.TotalEmission(members),
		}
		if p.Dwell != nil {
			c.SurveyDuration = p.Dwell(len(members))
		}
		clusters[i] = c
	}

	sort.Slice(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.Centroid.Lat != b.Centroid.Lat {
			return a.Centroid.Lat < b.Centroid.Lat
		}
		if a.Centroid.Lon != b.Centroid.Lon {
			return a.Centroid.Lon < b.Centroid.Lon
		}
		return portfolio.Less(a.Members[0], b.Members[0])
	})
	for i, c := range clusters {
		c.ID = i
	}

	return &Result{Clusters: clusters, Noise: noiseSources, Params: p}
}
