package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume represents a 3D scalar image (probability map, binary label or
// distance field) on a regular grid
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order
	// (index = z*Width*Height + y*Width + x)
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize r3.Vec

	// Origin is the physical position of voxel (0,0,0) in mm
	Origin r3.Vec
}

// NewVolume allocates a zero-filled volume
func NewVolume(width, height, depth int, voxelSize, origin r3.Vec) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: voxelSize,
		Origin:    origin,
	}
}

// NewVolumeLike allocates a zero-filled volume with the geometry of ref
func NewVolumeLike(ref *Volume) *Volume {
	return NewVolume(ref.Width, ref.Height, ref.Depth, ref.VoxelSize, ref.Origin)
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Index returns the flat index of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Coords is the inverse of Index
func (v *Volume) Coords(idx int) (x, y, z int) {
	plane := v.Width * v.Height
	z = idx / plane
	rem := idx % plane
	y = rem / v.Width
	x = rem % v.Width
	return x, y, z
}

// InBounds reports whether (x, y, z) lies inside the volume
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set assigns the value of voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Validate checks that the data length and spacing are consistent
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume dimensions %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume data has %d values, expected %d", len(v.Data), v.Len())
	}
	if v.VoxelSize.X <= 0 || v.VoxelSize.Y <= 0 || v.VoxelSize.Z <= 0 {
		return fmt.Errorf("invalid voxel size %v", v.VoxelSize)
	}
	return nil
}

// SameGeometry reports whether o shares dimensions, spacing and origin with v
func (v *Volume) SameGeometry(o *Volume) bool {
	if v.Width != o.Width || v.Height != o.Height || v.Depth != o.Depth {
		return false
	}
	const tol = 1e-6
	return r3.Norm(r3.Sub(v.VoxelSize, o.VoxelSize)) < tol &&
		r3.Norm(r3.Sub(v.Origin, o.Origin)) < tol
}

// Max returns the largest voxel value, or 0 for an empty volume
func (v *Volume) Max() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	return floats.Max(v.Data)
}

// CountNonZero returns the number of voxels with a non-zero value
func (v *Volume) CountNonZero() int {
	n := 0
	for _, val := range v.Data {
		if val != 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = make([]float64, len(v.Data))
	copy(c.Data, v.Data)
	return &c
}

// IndexToPhysical maps voxel (x, y, z) to a physical point in mm
func (v *Volume) IndexToPhysical(x, y, z int) r3.Vec {
	return r3.Vec{
		X: v.Origin.X + float64(x)*v.VoxelSize.X,
		Y: v.Origin.Y + float64(y)*v.VoxelSize.Y,
		Z: v.Origin.Z + float64(z)*v.VoxelSize.Z,
	}
}

// PhysicalToIndex maps a physical point to the nearest voxel. ok is false
// when the point falls outside the volume.
func (v *Volume) PhysicalToIndex(p r3.Vec) (x, y, z int, ok bool) {
	x = int(math.Round((p.X - v.Origin.X) / v.VoxelSize.X))
	y = int(math.Round((p.Y - v.Origin.Y) / v.VoxelSize.Y))
	z = int(math.Round((p.Z - v.Origin.Z) / v.VoxelSize.Z))
	return x, y, z, v.InBounds(x, y, z)
}
