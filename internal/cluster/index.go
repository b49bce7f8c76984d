package cluster

import (
	"math"

	"github.com/smukkama/survey-sim/internal/geo"
)

type cellKey [2]int

// grid buckets points into latitude/longitude cells sized so that any two
// points within epsKm of each other fall in the same or adjacent cells.
//
// Latitude: d >= R*|dphi|, so a row height of eps/R suffices.
// Longitude: hav(d/R) >= cos(phi1)cos(phi2)sin^2(dlambda/2), so with cmin the
// smallest cosine of latitude in the data, sin(dlambda/2) <= sin(eps/2R)/cmin.
type grid struct {
	rowDeg, colDeg float64
	cols           int
	cells          map[cellKey][]int
	pts            []geo.Point
	epsKm          float64
}

// slack for floating point at cell boundaries
const cellSlack = 1 + 1e-9

func newGrid(pts []geo.Point, epsKm float64) *grid {
	g := &grid{
		cells: make(map[cellKey][]int),
		pts:   pts,
		epsKm: epsKm,
	}

	epsRad := epsKm / geo.EarthRadiusKm
	g.rowDeg = epsRad * 180 / math.Pi * cellSlack

	maxAbsLat := 0.0
	for _, p := range pts {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(p.Lat))
	}
	cmin := math.Cos(maxAbsLat / 180 * math.Pi)

	g.cols = 1
	if ratio := math.Sin(epsRad/2) / cmin; cmin > 0 && ratio < 1 {
		lonDeg := 2 * math.Asin(ratio) * 180 / math.Pi * cellSlack
		if n := int(360 / lonDeg); n > 1 {
			g.cols = n
		}
	}
	g.colDeg = 360 / float64(g.cols)

	for i, p := range pts {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) key(p geo.Point) cellKey {
	row := int(math.Floor((p.Lat + 90) / g.rowDeg))
	col := int(math.Floor((p.Lon+180)/g.colDeg)) % g.cols
	return cellKey{row, col}
}

// neighbors returns the indices of all points within epsKm of point i,
// including i itself, in increasing index order within each cell.
func (g *grid) neighbors(i int) []int {
	p := g.pts[i]
	k := g.key(p)

	cols := [3]int{k[1], (k[1] + g.cols - 1) % g.cols, (k[1] + 1) % g.cols}
	ncols := 3
	if g.cols < 3 {
		ncols = g.cols
	}

	var nb []int
	for dr := -1; dr <= 1; dr++ {
		for c := 0; c < ncols; c++ {
			for _, j := range g.cells[cellKey{k[0] + dr, cols[c]}] {
				if geo.HaversineKm(p, g.pts[j]) <= g.epsKm {
					nb = append(nb, j)
				}
			}
		}
	}
	return nb
}
