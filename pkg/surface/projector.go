// Package surface projects a scalar field sampled on the surface of a binary
// object onto spherical angles around the object's centroid.
package surface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/models"
	"atlasqc/pkg/morphology"
)

// Projection holds one entry per surface voxel. Slices have equal length.
type Projection struct {
	Theta  []float64
	Phi    []float64
	Values []float64

	// Centroid of the surface voxels in physical coordinates
	Centroid r3.Vec
}

// Samples returns the projection as angular samples
func (p *Projection) Samples() []models.AngularSample {
	out := make([]models.AngularSample, len(p.Values))
	for i := range out {
		out[i] = models.AngularSample{Theta: p.Theta[i], Phi: p.Phi[i], Value: p.Values[i]}
	}
	return out
}

// Len returns the number of samples
func (p *Projection) Len() int {
	return len(p.Values)
}

// Project samples reference (a distance field) on the contour of test and
// converts each contour voxel to spherical angles about the contour centroid.
// The pole is the slowest storage axis (z): theta = pi/2 - acos(dz/rho) and
// phi = -atan2(dx, -dy). A voxel coinciding with the centroid is skipped.
func Project(reference, test *models.Volume) (*Projection, error) {
	if !reference.SameGeometry(test) {
		return nil, fmt.Errorf("reference %dx%dx%d and test %dx%dx%d volumes differ in geometry",
			reference.Width, reference.Height, reference.Depth, test.Width, test.Height, test.Depth)
	}

	indices := morphology.ContourIndices(test)
	proj := &Projection{}
	if len(indices) == 0 {
		return proj, nil
	}

	points := make([]r3.Vec, len(indices))
	var sum r3.Vec
	for i, idx := range indices {
		points[i] = test.IndexToPhysical(test.Coords(idx))
		sum = r3.Add(sum, points[i])
	}
	proj.Centroid = r3.Scale(1/float64(len(points)), sum)

	proj.Theta = make([]float64, 0, len(points))
	proj.Phi = make([]float64, 0, len(points))
	proj.Values = make([]float64, 0, len(points))
	for i, p := range points {
		d := r3.Sub(p, proj.Centroid)
		rho := r3.Norm(d)
		if rho == 0 {
			continue
		}
		proj.Theta = append(proj.Theta, math.Pi/2-math.Acos(clamp(d.Z/rho, -1, 1)))
		proj.Phi = append(proj.Phi, -math.Atan2(d.X, -d.Y))
		proj.Values = append(proj.Values, reference.Data[indices[i]])
	}
	return proj, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
