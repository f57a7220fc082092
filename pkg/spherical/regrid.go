// Package spherical resamples scattered angular samples onto a regular
// (phi, theta) grid and smooths such grids.
package spherical

import (
	"math"

	"atlasqc/internal/models"
)

// Stats describes how a grid was produced
type Stats struct {
	// Samples is the number of input samples
	Samples int
	// Unique is the number of distinct (theta, phi) positions
	Unique int
	// Triangles in the interpolation mesh
	Triangles int
	// NearestFilled counts cells outside the sample hull, filled from the nearest sample
	NearestFilled int
}

// barycentricTol admits grid nodes lying on a triangle edge
const barycentricTol = 1e-9

// sliverTol is the smallest |det| / longest edge² of a rasterized triangle
const sliverTol = 1e-9

// Regrid interpolates samples onto a grid with the given step in degrees.
// Cells inside the triangulated sample hull are linearly interpolated; the
// rest take the value of the nearest sample. Without samples the grid is all
// zero.
func Regrid(samples []models.AngularSample, resolution float64) (*models.AngularGrid, Stats) {
	grid := models.NewAngularGrid(resolution)
	stats := Stats{Samples: len(samples)}
	if len(samples) == 0 {
		return grid, stats
	}

	pts := dedupe(samples)
	stats.Unique = len(pts)

	for i := range grid.Values {
		grid.Values[i] = math.NaN()
	}

	tris := triangulate(pts)
	stats.Triangles = len(tris)
	for _, t := range tris {
		rasterize(grid, pts[t.A], pts[t.B], pts[t.C])
	}

	var nn *nearestIndex
	for i := 0; i < grid.NPhi; i++ {
		for j := 0; j < grid.NTheta; j++ {
			idx := grid.Index(i, j)
			if !math.IsNaN(grid.Values[idx]) {
				continue
			}
			if nn == nil {
				nn = newNearestIndex(pts)
			}
			grid.Values[idx] = nn.value(grid.Theta(j), grid.Phi(i))
			stats.NearestFilled++
		}
	}
	return grid, stats
}

// angleQuantum is the angular distance below which samples are merged
const angleQuantum = 1e-9

// dedupe merges samples at the same angles (up to angleQuantum) by averaging
// their values. Voxels on one ray from the centroid collapse this way.
func dedupe(samples []models.AngularSample) []point2 {
	type key struct{ theta, phi int64 }
	index := make(map[key]int, len(samples))
	pts := make([]point2, 0, len(samples))
	counts := make([]int, 0, len(samples))
	for _, s := range samples {
		k := key{int64(math.Round(s.Theta / angleQuantum)), int64(math.Round(s.Phi / angleQuantum))}
		if i, ok := index[k]; ok {
			pts[i].Value += s.Value
			counts[i]++
			continue
		}
		index[k] = len(pts)
		pts = append(pts, point2{X: s.Theta, Y: s.Phi, Value: s.Value})
		counts = append(counts, 1)
	}
	for i := range pts {
		pts[i].Value /= float64(counts[i])
	}
	return pts
}

// rasterize writes the linear interpolant of triangle (a, b, c) into every
// unset grid node it covers
func rasterize(grid *models.AngularGrid, a, b, c point2) {
	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	edge := math.Max(math.Hypot(b.X-a.X, b.Y-a.Y), math.Max(math.Hypot(c.X-b.X, c.Y-b.Y), math.Hypot(a.X-c.X, a.Y-c.Y)))
	// slivers from collinear runs carry no area; their neighbours cover the shared edges
	if math.Abs(det) <= sliverTol*edge*edge {
		return
	}
	step := grid.Step()

	minTheta := math.Min(a.X, math.Min(b.X, c.X))
	maxTheta := math.Max(a.X, math.Max(b.X, c.X))
	minPhi := math.Min(a.Y, math.Min(b.Y, c.Y))
	maxPhi := math.Max(a.Y, math.Max(b.Y, c.Y))

	j0 := max(0, int(math.Floor((minTheta+math.Pi/2)/step)))
	j1 := min(grid.NTheta-1, int(math.Ceil((maxTheta+math.Pi/2)/step)))
	i0 := max(0, int(math.Floor((minPhi+math.Pi)/step)))
	i1 := min(grid.NPhi-1, int(math.Ceil((maxPhi+math.Pi)/step)))

	for i := i0; i <= i1; i++ {
		phi := grid.Phi(i)
		for j := j0; j <= j1; j++ {
			idx := grid.Index(i, j)
			if !math.IsNaN(grid.Values[idx]) {
				continue
			}
			theta := grid.Theta(j)
			l1 := ((b.Y-c.Y)*(theta-c.X) + (c.X-b.X)*(phi-c.Y)) / det
			l2 := ((c.Y-a.Y)*(theta-c.X) + (a.X-c.X)*(phi-c.Y)) / det
			l3 := 1 - l1 - l2
			if l1 < -barycentricTol || l2 < -barycentricTol || l3 < -barycentricTol {
				continue
			}
			grid.Values[idx] = l1*a.Value + l2*b.Value + l3*c.Value
		}
	}
}
