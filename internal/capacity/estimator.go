package capacity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/geo"
)

// ErrInvalidEstimator is returned by Validate
var ErrInvalidEstimator = errors.New("invalid capacity estimator")

// Estimator converts clusters into flight time: a fixed setup dwell per
// cluster, a per-member scan increment, and straight-line transit between
// cluster centroids.
type Estimator struct {
	DwellBase         time.Duration
	DwellPerMember    time.Duration
	TravelSpeedKmh    float64
	FlightHoursPerDay float64
	Aircraft          float64
}

func Default() Estimator {
	return Estimator{
		DwellBase:         2 * time.Minute,
		DwellPerMember:    30 * time.Second,
		TravelSpeedKmh:    70,
		FlightHoursPerDay: 8,
		Aircraft:          2.7,
	}
}

func (e Estimator) Validate() error {
	switch {
	case e.DwellBase < 0 || e.DwellPerMember < 0:
		return fmt.Errorf("%w: dwell times must not be negative", ErrInvalidEstimator)
	case !(e.TravelSpeedKmh > 0) || math.IsInf(e.TravelSpeedKmh, 0):
		return fmt.Errorf("%w: travel speed must be positive, got %v", ErrInvalidEstimator, e.TravelSpeedKmh)
	case !(e.FlightHoursPerDay > 0) || e.FlightHoursPerDay > 24:
		return fmt.Errorf("%w: flight hours per day must be in (0,24], got %v", ErrInvalidEstimator, e.FlightHoursPerDay)
	case !(e.Aircraft > 0):
		return fmt.Errorf("%w: aircraft count must be positive, got %v", ErrInvalidEstimator, e.Aircraft)
	}
	return nil
}

// Dwell is the on-site time for a cluster with the given member count.
func (e Estimator) Dwell(members int) time.Duration {
	if members < 0 {
		members = 0
	}
	return e.DwellBase + time.Duration(members)*e.DwellPerMember
}

// Travel is the transit time between two points.
func (e Estimator) Travel(a, b geo.Point) time.Duration {
	hours := geo.HaversineKm(a, b) / e.TravelSpeedKmh
	return time.Duration(hours * float64(time.Hour))
}

// SurveyTime is the total dwell plus transit for visiting the clusters in
// the given order.
func (e Estimator) SurveyTime(clusters []*cluster.Cluster) time.Duration {
	var r Route
	for _, c := range clusters {
		r.Add(e, c)
	}
	return r.Total
}

// Order returns the clusters sorted south to north, then west to east,
// the deterministic visiting order used when none is imposed.
func (e Estimator) Order(clusters []*cluster.Cluster) []*cluster.Cluster {
	out := append([]*cluster.Cluster(nil), clusters...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Centroid, out[j].Centroid
		if a.Lat != b.Lat {
			return a.Lat < b.Lat
		}
		if a.Lon != b.Lon {
			return a.Lon < b.Lon
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FlightTime is the survey time of the shorter of two visiting orders:
// the given one and centroid order. It never exceeds SurveyTime.
func (e Estimator) FlightTime(clusters []*cluster.Cluster) time.Duration {
	given := e.SurveyTime(clusters)
	if sorted := e.SurveyTime(e.Order(clusters)); sorted < given {
		return sorted
	}
	return given
}

// Days converts flight time into fleet flight-days.
func (e Estimator) Days(d time.Duration) float64 {
	return d.Hours() / (e.FlightHoursPerDay * e.Aircraft)
}

// Budget converts fleet flight-days into flight time.
func (e Estimator) Budget(days float64) time.Duration {
	return time.Duration(days * e.FlightHoursPerDay * e.Aircraft * float64(time.Hour))
}

// Route accumulates flight time as clusters are appended to a visit
// sequence.
type Route struct {
	Total    time.Duration
	Clusters int
	Wells    int
	last     geo.Point
}

// Cost is the time appending c would add.
func (r *Route) Cost(e Estimator, c *cluster.Cluster) time.Duration {
	d := e.Dwell(c.Size())
	if r.Clusters > 0 {
		d += e.Travel(r.last, c.Centroid)
	}
	return d
}

func (r *Route) Add(e Estimator, c *cluster.Cluster) {
	r.Total += r.Cost(e, c)
	r.Clusters++
	r.Wells += c.Size()
	r.last = c.Centroid
}
