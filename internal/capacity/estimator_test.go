package capacity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/geo"
	"github.com/smukkama/survey-sim/internal/portfolio"
)

func mkCluster(id int, lat, lon float64, members int) *cluster.Cluster {
	c := &cluster.Cluster{ID: id, Centroid: geo.Point{Lat: lat, Lon: lon}}
	for i := 0; i < members; i++ {
		c.Members = append(c.Members, portfolio.Source{ID: fmt.Sprintf("%d-%d", id, i), Latitude: lat, Longitude: lon, EmissionKgh: 1})
	}
	return c
}

func TestDwell(t *testing.T) {
	e := Default()
	assert.Equal(t, 2*time.Minute, e.Dwell(0))
	assert.Equal(t, 4*time.Minute, e.Dwell(4))
}

func TestSurveyTime(t *testing.T) {
	e := Default()
	a := mkCluster(0, 41, -78, 2)
	b := mkCluster(1, 41.1, -78, 4)

	assert.Equal(t, time.Duration(0), e.SurveyTime(nil))
	assert.Equal(t, e.Dwell(2), e.SurveyTime([]*cluster.Cluster{a}))

	legKm := geo.HaversineKm(a.Centroid, b.Centroid)
	want := e.Dwell(2) + e.Dwell(4) + time.Duration(legKm/70*float64(time.Hour))
	assert.Equal(t, want, e.SurveyTime([]*cluster.Cluster{a, b}))
}

func TestSurveyTimeMonotone(t *testing.T) {
	e := Default()
	clusters := []*cluster.Cluster{
		mkCluster(0, 41, -78, 2),
		mkCluster(1, 41.3, -77.5, 3),
		mkCluster(2, 40.8, -78.2, 5),
		mkCluster(3, 41.05, -77.9, 2),
	}
	prev := time.Duration(-1)
	for n := 0; n <= len(clusters); n++ {
		got := e.SurveyTime(clusters[:n])
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Greater(t, got, prev)
		prev = got
	}

	// more members, more time
	small := e.SurveyTime([]*cluster.Cluster{mkCluster(0, 41, -78, 2)})
	large := e.SurveyTime([]*cluster.Cluster{mkCluster(0, 41, -78, 9)})
	assert.Greater(t, large, small)
}

func TestOrderDeterministic(t *testing.T) {
	e := Default()
	a := mkCluster(0, 41.2, -78, 2)
	b := mkCluster(1, 40.9, -77, 2)
	c := mkCluster(2, 41.2, -79, 2)

	got := e.Order([]*cluster.Cluster{a, b, c})
	assert.Equal(t, []int{1, 2, 0}, []int{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, e.SurveyTime(got), e.SurveyTime(e.Order([]*cluster.Cluster{c, a, b})))
}

func TestFlightTimeTakesShorterOrder(t *testing.T) {
	e := Default()
	a := mkCluster(0, 41, -78, 2)
	b := mkCluster(1, 41, -77, 2)
	c := mkCluster(2, 41, -78.01, 2)

	zigzag := []*cluster.Cluster{a, b, c}
	assert.Equal(t, e.SurveyTime(e.Order(zigzag)), e.FlightTime(zigzag))
	assert.Less(t, e.FlightTime(zigzag), e.SurveyTime(zigzag))

	// already in centroid order
	straight := []*cluster.Cluster{c, a, b}
	assert.Equal(t, e.SurveyTime(straight), e.FlightTime(straight))
	assert.Zero(t, e.FlightTime(nil))
}

func TestDaysBudgetRoundTrip(t *testing.T) {
	e := Default()
	assert.InDelta(t, 1.0, e.Days(time.Duration(8*2.7*float64(time.Hour))), 1e-9)
	assert.InDelta(t, 48.75, e.Days(e.Budget(48.75)), 1e-9)
}

func TestRoute(t *testing.T) {
	e := Default()
	a := mkCluster(0, 41, -78, 2)
	b := mkCluster(1, 41.1, -78, 4)

	var r Route
	assert.Equal(t, e.Dwell(2), r.Cost(e, a))
	r.Add(e, a)
	assert.Equal(t, e.Dwell(4)+e.Travel(a.Centroid, b.Centroid), r.Cost(e, b))
	r.Add(e, b)
	assert.Equal(t, 2, r.Clusters)
	assert.Equal(t, 6, r.Wells)
	assert.Equal(t, e.SurveyTime([]*cluster.Cluster{a, b}), r.Total)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	e := Default()
	e.TravelSpeedKmh = -5
	assert.ErrorIs(t, e.Validate(), ErrInvalidEstimator)

	e = Default()
	e.DwellBase = -time.Second
	assert.ErrorIs(t, e.Validate(), ErrInvalidEstimator)
}
