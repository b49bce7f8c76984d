package cluster

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/survey-sim/internal/geo"
	"github.com/smukkama/survey-sim/internal/portfolio"
	"github.com/smukkama/survey-sim/internal/rand"
)

// kmToLat converts a northward offset in km to degrees of latitude.
func kmToLat(km float64) float64 { return km / geo.EarthRadiusKm * 180 / math.Pi }

func pad(prefix string, lat, lon float64, n int, spacingKm float64, e float64) []portfolio.Source {
	var s []portfolio.Source
	for i := 0; i < n; i++ {
		s = append(s, portfolio.Source{
			ID:          fmt.Sprintf("%s-%02d", prefix, i),
			Latitude:    lat + kmToLat(float64(i)*spacingKm),
			Longitude:   lon,
			EmissionKgh: e,
		})
	}
	return s
}

func membershipSets(r *Result) []string {
	var sets []string
	for _, c := range r.Clusters {
		sets = append(sets, strings.Join(c.MemberIDs(), ","))
	}
	sort.Strings(sets)
	return sets
}

func TestDBSCANBasic(t *testing.T) {
	var sources []portfolio.Source
	sources = append(sources, pad("a", 41.0, -78.0, 4, 0.3, 1)...)
	sources = append(sources, pad("b", 41.5, -77.0, 3, 0.5, 2)...)
	sources = append(sources, portfolio.Source{ID: "lonely", Latitude: 40.0, Longitude: -76.0, EmissionKgh: 5})

	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2})
	require.NoError(t, err)
	require.Len(t, r.Clusters, 2)
	require.Len(t, r.Noise, 1)
	assert.Equal(t, "lonely", r.Noise[0].ID)

	// IDs follow centroid latitude
	assert.Equal(t, []string{"a-00", "a-01", "a-02", "a-03"}, r.Clusters[0].MemberIDs())
	assert.Equal(t, 0, r.Clusters[0].ID)
	assert.Equal(t, 1, r.Clusters[1].ID)
	assert.Equal(t, 4.0, r.Clusters[0].EmissionKgh)
	assert.Equal(t, 6.0, r.Clusters[1].EmissionKgh)

	st := r.Stats()
	assert.Equal(t, 2, st.Clusters)
	assert.Equal(t, 7, st.ClusteredWells)
	assert.Equal(t, 1, st.NoiseWells)
	assert.InDelta(t, 3.5, st.MeanWellsPerCluster, 1e-12)
}

func TestDBSCANAllNoise(t *testing.T) {
	sources := pad("x", 41.0, -78.0, 10, 5, 1)
	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2})
	require.NoError(t, err)
	assert.Empty(t, r.Clusters)
	assert.Len(t, r.Noise, 10)
}

func TestDBSCANEmpty(t *testing.T) {
	r, err := DBSCAN(nil, Params{EpsKm: 0.8, MinSize: 2})
	require.NoError(t, err)
	assert.Empty(t, r.Clusters)
	assert.Empty(t, r.Noise)
}

func TestDBSCANInvalidParams(t *testing.T) {
	_, err := DBSCAN(nil, Params{EpsKm: 0.8, MinSize: 0})
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = DBSCAN(nil, Params{EpsKm: -1, MinSize: 2})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = DBSCAN([]portfolio.Source{{ID: "a", Latitude: math.NaN()}}, Params{EpsKm: 1, MinSize: 1})
	assert.ErrorIs(t, err, portfolio.ErrInvalidSource)
}

func TestDBSCANDuplicateCoordinatesRespectMinSize(t *testing.T) {
	var sources []portfolio.Source
	for i := 0; i < 3; i++ {
		sources = append(sources, portfolio.Source{ID: fmt.Sprintf("d%d", i), Latitude: 41, Longitude: -78, EmissionKgh: 1})
	}

	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 4})
	require.NoError(t, err)
	assert.Empty(t, r.Clusters)
	assert.Len(t, r.Noise, 3)

	r, err = DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 3})
	require.NoError(t, err)
	require.Len(t, r.Clusters, 1)
	assert.Equal(t, 3, r.Clusters[0].Size())
}

func TestDBSCANMinSizeOne(t *testing.T) {
	sources := pad("x", 41.0, -78.0, 5, 5, 1)
	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 1})
	require.NoError(t, err)
	assert.Len(t, r.Clusters, 5)
	assert.Empty(t, r.Noise)
}

func TestDBSCANAntimeridian(t *testing.T) {
	sources := []portfolio.Source{
		{ID: "e", Latitude: 10, Longitude: 179.999},
		{ID: "w", Latitude: 10, Longitude: -179.999},
	}
	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2})
	require.NoError(t, err)
	require.Len(t, r.Clusters, 1)
	assert.Equal(t, []string{"e", "w"}, r.Clusters[0].MemberIDs())
}

func TestDBSCANDwell(t *testing.T) {
	sources := pad("a", 41.0, -78.0, 4, 0.3, 1)
	dwell := func(n int) time.Duration { return 2*time.Minute + time.Duration(n)*30*time.Second }
	r, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2, Dwell: dwell})
	require.NoError(t, err)
	require.Len(t, r.Clusters, 1)
	assert.Equal(t, 4*time.Minute, r.Clusters[0].SurveyDuration)
	assert.Equal(t, 4*time.Minute, r.Stats().TotalDwell)
}

func randomSources(r *rand.Rand, n int) []portfolio.Source {
	s := make([]portfolio.Source, n)
	for i := range s {
		s[i] = portfolio.Source{
			ID:          fmt.Sprintf("s%05d", i),
			Latitude:    41 + r.Uniform(0, 0.15),
			Longitude:   -78 + r.Uniform(0, 0.2),
			EmissionKgh: math.Exp(r.NormFloat64()),
		}
	}
	return s
}

func TestDBSCANPermutationInvariant(t *testing.T) {
	r := rand.New(1, 0)
	sources := randomSources(r, 600)
	p := Params{EpsKm: 0.8, MinSize: 3}

	base, err := DBSCAN(sources, p)
	require.NoError(t, err)
	require.NotEmpty(t, base.Clusters)

	for trial := 0; trial < 5; trial++ {
		shuffled := append([]portfolio.Source(nil), sources...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := DBSCAN(shuffled, p)
		require.NoError(t, err)
		assert.Equal(t, membershipSets(base), membershipSets(got))
		assert.Equal(t, base.Membership(), got.Membership())
	}
}

// bruteForce is textbook DBSCAN over all pairs, in canonical order.
func bruteForce(sources []portfolio.Source, p Params) []string {
	s := append([]portfolio.Source(nil), sources...)
	portfolio.SortCanonical(s)
	nbrs := func(i int) []int {
		var out []int
		for j := range s {
			if geo.HaversineKm(s[i].Point(), s[j].Point()) <= p.EpsKm {
				out = append(out, j)
			}
		}
		return out
	}
	labels := make([]int, len(s))
	for i := range labels {
		labels[i] = unvisited
	}
	n := 0
	for i := range s {
		if labels[i] != unvisited {
			continue
		}
		nb := nbrs(i)
		if len(nb) < p.MinSize {
			labels[i] = noise
			continue
		}
		labels[i] = n
		for k := 0; k < len(nb); k++ {
			j := nb[k]
			if labels[j] == noise {
				labels[j] = n
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = n
			if nbj := nbrs(j); len(nbj) >= p.MinSize {
				nb = append(nb, nbj...)
			}
		}
		n++
	}
	groups := make([][]string, n)
	for i, l := range labels {
		if l >= 0 {
			groups[l] = append(groups[l], s[i].ID)
		}
	}
	var sets []string
	for _, g := range groups {
		sets = append(sets, strings.Join(g, ","))
	}
	sort.Strings(sets)
	return sets
}

func TestDBSCANMatchesBruteForce(t *testing.T) {
	r := rand.New(2, 0)
	sources := randomSources(r, 400)
	for _, p := range []Params{{EpsKm: 0.5, MinSize: 2}, {EpsKm: 1.2, MinSize: 4}, {EpsKm: 3, MinSize: 6}} {
		got, err := DBSCAN(sources, p)
		require.NoError(t, err)
		assert.Equal(t, bruteForce(sources, p), membershipSets(got), "eps=%v min=%d", p.EpsKm, p.MinSize)
	}
}

func TestDBSCANConservation(t *testing.T) {
	r := rand.New(3, 0)
	sources := randomSources(r, 1000)
	total := portfolio.TotalEmission(sources)

	for _, p := range []Params{{EpsKm: 0.1, MinSize: 2}, {EpsKm: 0.8, MinSize: 2}, {EpsKm: 2, MinSize: 5}, {EpsKm: 50, MinSize: 1}} {
		res, err := DBSCAN(sources, p)
		require.NoError(t, err)

		seen := make(map[string]bool)
		var all []portfolio.Source
		for _, c := range res.Clusters {
			assert.GreaterOrEqual(t, c.Size(), p.MinSize)
			assert.Equal(t, portfolio.TotalEmission(c.Members), c.EmissionKgh)
			for _, m := range c.Members {
				require.False(t, seen[m.ID], "%s in two clusters", m.ID)
				seen[m.ID] = true
			}
			all = append(all, c.Members...)
		}
		all = append(all, res.Noise...)
		assert.Len(t, all, len(sources))
		assert.Equal(t, total, portfolio.TotalEmission(all))

		st := res.Stats()
		assert.Equal(t, total, st.TotalEmission)
		assert.InEpsilon(t, total, st.ClusteredEmission+st.NoiseEmission, 1e-12)
	}
}

func TestStatsTotalEmissionExact(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		r := rand.New(seed, 7)
		sources := randomSources(r, 200)
		res, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2})
		require.NoError(t, err)
		assert.Equal(t, portfolio.TotalEmission(sources), res.Stats().TotalEmission, "seed %d", seed)
	}
}

func TestRebuild(t *testing.T) {
	r := rand.New(4, 0)
	sources := randomSources(r, 300)
	p := Params{EpsKm: 0.8, MinSize: 2}

	res, err := DBSCAN(sources, p)
	require.NoError(t, err)

	again, err := Rebuild(sources, res.Membership(), p)
	require.NoError(t, err)
	require.Len(t, again.Clusters, len(res.Clusters))
	for i := range res.Clusters {
		assert.Equal(t, res.Clusters[i].ID, again.Clusters[i].ID)
		assert.Equal(t, res.Clusters[i].MemberIDs(), again.Clusters[i].MemberIDs())
		assert.Equal(t, res.Clusters[i].Centroid, again.Clusters[i].Centroid)
	}

	m := res.Membership()
	m.Noise = append(m.Noise, "bogus")
	_, err = Rebuild(sources, m, p)
	assert.Error(t, err)

	_, err = Rebuild(sources[1:], res.Membership(), p)
	assert.Error(t, err)
}

// portfolioScenario mirrors the shape of a state-wide marginal well
// inventory: wells on pads of one to a dozen, pads scattered over a
// few hundred km, with a long-tailed emission distribution scaled to
// the requested total.
func portfolioScenario(r *rand.Rand, wells int, totalKgh float64) []portfolio.Source {
	sources := make([]portfolio.Source, 0, wells)
	for len(sources) < wells {
		lat := 39.8 + r.Uniform(0, 2.4)
		lon := -80.4 + r.Uniform(0, 5)
		n := 1 + r.Intn(12)
		for k := 0; k < n && len(sources) < wells; k++ {
			sources = append(sources, portfolio.Source{
				ID:          fmt.Sprintf("w%06d", len(sources)),
				Latitude:    lat + kmToLat(r.Uniform(-0.4, 0.4)),
				Longitude:   lon + kmToLat(r.Uniform(-0.4, 0.4)),
				EmissionKgh: math.Exp(r.NormFloat64() * 1.2),
			})
		}
	}
	scale := totalKgh / portfolio.TotalEmission(sources)
	for i := range sources {
		sources[i].EmissionKgh *= scale
	}
	return sources
}

func TestDBSCANPortfolioScale(t *testing.T) {
	if testing.Short() {
		t.Skip("large portfolio")
	}
	r := rand.New(64624, 0)
	sources := portfolioScenario(r, 64624, 55389)
	require.Len(t, sources, 64624)
	assert.InEpsilon(t, 55389, portfolio.TotalEmission(sources), 1e-9)

	res, err := DBSCAN(sources, Params{EpsKm: 0.8, MinSize: 2})
	require.NoError(t, err)

	st := res.Stats()
	assert.Greater(t, st.Clusters, 0)
	assert.Greater(t, st.NoiseWells, 0)
	assert.Equal(t, 64624, st.ClusteredWells+st.NoiseWells)

	var all []portfolio.Source
	for _, c := range res.Clusters {
		all = append(all, c.Members...)
	}
	all = append(all, res.Noise...)
	assert.Equal(t, portfolio.TotalEmission(sources), portfolio.TotalEmission(all))
}
