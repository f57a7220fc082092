// Package phantom generates synthetic label volumes for exercising the
// quality-control pipeline without patient data.
package phantom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/models"
)

// Bulge enlarges a sphere inside a cone around Direction
type Bulge struct {
	Direction r3.Vec
	// HalfAngle of the cone in radians
	HalfAngle float64
	// Scale applied to the radius inside the cone
	Scale float64
}

// Sphere describes a binary sphere in a cubic volume. Center and Radius are
// in voxel units.
type Sphere struct {
	Size      int
	Center    r3.Vec
	Radius    float64
	VoxelSize r3.Vec
	Bulge     *Bulge
}

// Volume rasterises the sphere into a binary volume (1 inside, 0 outside)
func (s Sphere) Volume() *models.Volume {
	spacing := s.VoxelSize
	if spacing == (r3.Vec{}) {
		spacing = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	vol := models.NewVolume(s.Size, s.Size, s.Size, spacing, r3.Vec{})

	var dir r3.Vec
	cosHalf := 1.0
	if s.Bulge != nil {
		dir = r3.Unit(s.Bulge.Direction)
		cosHalf = math.Cos(s.Bulge.HalfAngle)
	}

	for z := 0; z < s.Size; z++ {
		for y := 0; y < s.Size; y++ {
			for x := 0; x < s.Size; x++ {
				d := r3.Sub(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}, s.Center)
				rho := r3.Norm(d)
				radius := s.Radius
				if s.Bulge != nil && rho > 0 && r3.Dot(d, dir)/rho >= cosHalf {
					radius *= s.Bulge.Scale
				}
				if rho <= radius {
					vol.Set(x, y, z, 1)
				}
			}
		}
	}
	return vol
}

// AtlasSet builds n identical sphere atlases for structure. When bulge is
// non-nil the atlas at index bulgeIndex receives it.
func AtlasSet(structure string, n int, base Sphere, bulge *Bulge, bulgeIndex int) (*models.AtlasSet, error) {
	normal := base.Volume()
	set := &models.AtlasSet{}
	for i := 0; i < n; i++ {
		vol := normal
		if bulge != nil && i == bulgeIndex {
			b := base
			b.Bulge = bulge
			vol = b.Volume()
		}
		atlas := &models.Atlas{
			ID:     fmt.Sprintf("atlas%02d", i),
			Labels: map[string]*models.Volume{structure: vol},
		}
		if err := set.Add(atlas); err != nil {
			return nil, err
		}
	}
	return set, nil
}
