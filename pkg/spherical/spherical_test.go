package spherical

import (
	"math"
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/models"
	"atlasqc/internal/phantom"
	"atlasqc/pkg/surface"
)

func linearField(theta, phi float64) float64 {
	return 2*theta + 3*phi + 1
}

// latticeSamples covers the closed angular domain with a regular lattice
func latticeSamples(stepDeg float64, field func(theta, phi float64) float64) []models.AngularSample {
	step := stepDeg * math.Pi / 180
	nTheta := int(math.Round(180/stepDeg)) + 1
	nPhi := int(math.Round(360/stepDeg)) + 1
	var out []models.AngularSample
	for i := 0; i < nPhi; i++ {
		phi := -math.Pi + float64(i)*step
		for j := 0; j < nTheta; j++ {
			theta := -math.Pi/2 + float64(j)*step
			out = append(out, models.AngularSample{Theta: theta, Phi: phi, Value: field(theta, phi)})
		}
	}
	return out
}

func TestRegridDenseRoundTrip(t *testing.T) {
	samples := latticeSamples(5, linearField)
	grid, stats := Regrid(samples, 10)

	require.Equal(t, 36, grid.NPhi)
	require.Equal(t, 18, grid.NTheta)
	assert.Equal(t, 0, stats.NearestFilled, "dense input must not need the nearest-neighbour pass")
	assert.Equal(t, len(samples), stats.Unique)
	assert.Greater(t, stats.Triangles, 0)

	for i := 0; i < grid.NPhi; i++ {
		for j := 0; j < grid.NTheta; j++ {
			want := linearField(grid.Theta(j), grid.Phi(i))
			assert.InDelta(t, want, grid.At(i, j), 1e-9, "cell (%d,%d)", i, j)
		}
	}
}

func TestRegridSparseHasNoUndefinedCells(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var samples []models.AngularSample
	for k := 0; k < 300; k++ {
		// equatorial band only: the poles need the nearest-neighbour pass
		theta := (rng.Float64() - 0.5) * math.Pi / 3
		phi := (rng.Float64()*2 - 1) * math.Pi
		samples = append(samples, models.AngularSample{Theta: theta, Phi: phi, Value: rng.Float64()})
	}

	grid, stats := Regrid(samples, 6)
	assert.Greater(t, stats.NearestFilled, 0)
	for _, v := range grid.Values {
		require.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestRegridNoSamples(t *testing.T) {
	grid, stats := Regrid(nil, 6)
	assert.Equal(t, 0, stats.Samples)
	for _, v := range grid.Values {
		assert.Equal(t, 0.0, v)
	}
}

func TestRegridCollinearFallsBackToNearest(t *testing.T) {
	samples := []models.AngularSample{
		{Theta: 0, Phi: -1, Value: 1},
		{Theta: 0, Phi: 0, Value: 2},
		{Theta: 0, Phi: 1, Value: 3},
	}
	grid, stats := Regrid(samples, 30)
	assert.Equal(t, 0, stats.Triangles)
	assert.Equal(t, len(grid.Values), stats.NearestFilled)
}

func TestRegridMergesDuplicateAngles(t *testing.T) {
	samples := []models.AngularSample{
		{Theta: 0.1, Phi: 0.1, Value: 1},
		{Theta: 0.1, Phi: 0.1, Value: 3},
		{Theta: 0.2, Phi: 0.2, Value: 5},
	}
	pts := dedupe(samples)
	require.Len(t, pts, 2)
	assert.Equal(t, 2.0, pts[0].Value)
}

// convexHull returns the hull of pts in counter-clockwise order (monotone chain)
func convexHull(pts []point2) []point2 {
	sorted := append([]point2(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	var hull []point2
	for pass := 0; pass < 2; pass++ {
		start := len(hull)
		for _, p := range sorted {
			for len(hull) >= start+2 && orient(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
				hull = hull[:len(hull)-1]
			}
			hull = append(hull, p)
		}
		hull = hull[:len(hull)-1]
		slices.Reverse(sorted)
	}
	return hull
}

func polygonArea(poly []point2) float64 {
	var area float64
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		area += a.X*b.Y - b.X*a.Y
	}
	return area / 2
}

// strictlyInside reports whether p lies inside the counter-clockwise hull by
// more than margin from every edge
func strictlyInside(hull []point2, p point2, margin float64) bool {
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		if orient(a, b, p) <= margin*length {
			return false
		}
	}
	return true
}

func circumcircle(a, b, c point2) (cx, cy, r2 float64) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	cx = (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d
	cy = (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d
	return cx, cy, (a.X-cx)*(a.X-cx) + (a.Y-cy)*(a.Y-cy)
}

func TestTriangulateIsDelaunay(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := make([]point2, 80)
	for i := range pts {
		pts[i] = point2{X: rng.Float64(), Y: rng.Float64()}
	}
	tris := triangulate(pts)
	require.NotEmpty(t, tris)

	for _, tr := range tris {
		assert.Greater(t, orient(pts[tr.A], pts[tr.B], pts[tr.C]), 0.0, "triangles are counter-clockwise")
		cx, cy, r2 := circumcircle(pts[tr.A], pts[tr.B], pts[tr.C])
		for k, p := range pts {
			if k == tr.A || k == tr.B || k == tr.C {
				continue
			}
			dx, dy := p.X-cx, p.Y-cy
			assert.GreaterOrEqual(t, dx*dx+dy*dy, r2*(1-1e-9), "point %d inside circumcircle", k)
		}
	}
}

func TestTriangulateCoversConvexHull(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		pts := []point2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
		for len(pts) < 504 {
			pts = append(pts, point2{X: rng.Float64(), Y: rng.Float64()})
		}

		var area float64
		for _, tr := range triangulate(pts) {
			area += orient(pts[tr.A], pts[tr.B], pts[tr.C]) / 2
		}
		hull := convexHull(pts)
		require.InDelta(t, 1.0, polygonArea(hull), 1e-12)
		assert.InDelta(t, polygonArea(hull), area, 1e-9, "seed %d", seed)
	}
}

// assertLinearInsideHull regrids samples of linearField and checks that
// every cell strictly inside the sample hull is linearly interpolated, so
// only cells outside the hull may come from the nearest-neighbour pass
func assertLinearInsideHull(t *testing.T, samples []models.AngularSample, resolution float64) {
	t.Helper()
	for i := range samples {
		samples[i].Value = linearField(samples[i].Theta, samples[i].Phi)
	}
	grid, stats := Regrid(samples, resolution)
	hull := convexHull(dedupe(samples))

	inside := 0
	for i := 0; i < grid.NPhi; i++ {
		for j := 0; j < grid.NTheta; j++ {
			cell := point2{X: grid.Theta(j), Y: grid.Phi(i)}
			if !strictlyInside(hull, cell, 1e-9) {
				continue
			}
			inside++
			want := linearField(cell.X, cell.Y)
			assert.InDelta(t, want, grid.At(i, j), 1e-6, "cell (%d,%d) inside the hull", i, j)
		}
	}
	require.Greater(t, inside, 0)
	assert.LessOrEqual(t, stats.NearestFilled, len(grid.Values)-inside)
}

func TestRegridScatteredUsesNearestOnlyOutsideHull(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var samples []models.AngularSample
	for k := 0; k < 2000; k++ {
		samples = append(samples, models.AngularSample{
			Theta: (rng.Float64() - 0.5) * 0.95 * math.Pi,
			Phi:   (rng.Float64()*2 - 1) * 0.95 * math.Pi,
		})
	}
	assertLinearInsideHull(t, samples, 3)
}

func TestRegridSphereSurfaceUsesNearestOnlyOutsideHull(t *testing.T) {
	for _, tc := range []struct {
		radius     float64
		resolution float64
	}{
		{20, 1},
		{20, 3},
	} {
		size := int(2*tc.radius) + 6
		mid := float64(size-1) / 2
		sphere := phantom.Sphere{Size: size, Center: r3.Vec{X: mid, Y: mid, Z: mid}, Radius: tc.radius}.Volume()
		proj, err := surface.Project(sphere, sphere)
		require.NoError(t, err)
		require.NotZero(t, proj.Len())
		assertLinearInsideHull(t, proj.Samples(), tc.resolution)
	}
}

func TestTriangulateSquare(t *testing.T) {
	pts := []point2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	assert.Len(t, triangulate(pts), 2)
}

func TestSmoothPreservesConstantAndMass(t *testing.T) {
	grid := models.NewAngularGrid(10)
	for i := range grid.Values {
		grid.Values[i] = 2.5
	}
	s := Smooth(grid, 1.5)
	for _, v := range s.Values {
		assert.InDelta(t, 2.5, v, 1e-12)
	}

	spike := models.NewAngularGrid(10)
	spike.Set(0, 0, 1)
	s = Smooth(spike, 1)
	assert.InDelta(t, 1.0, floats.Sum(s.Values), 1e-12)
	assert.Less(t, s.At(0, 0), 1.0)
	// wrap-around neighbours receive weight
	assert.Greater(t, s.At(spike.NPhi-1, 0), 0.0)
	assert.Greater(t, s.At(0, spike.NTheta-1), 0.0)
	assert.Equal(t, 1.0, spike.At(0, 0), "input untouched")
}

func TestSmoothZeroSigma(t *testing.T) {
	grid := models.NewAngularGrid(30)
	grid.Set(1, 1, 4)
	s := Smooth(grid, 0)
	assert.Equal(t, grid.Values, s.Values)
}
