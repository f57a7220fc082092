// Package distance computes exact Euclidean distance fields to the surface of
// a binary object, honouring anisotropic voxel spacing.
package distance

import (
	"math"

	"atlasqc/internal/models"
	"atlasqc/pkg/morphology"
)

// Signed returns the distance from every voxel to the contour of the binary
// object: negative inside, positive outside and zero on the contour itself.
// An object without foreground yields an all-zero field.
func Signed(object *models.Volume) *models.Volume {
	out := models.NewVolumeLike(object)
	contour := morphology.Contour(object)
	if contour.CountNonZero() == 0 {
		return out
	}

	features := make([]bool, len(contour.Data))
	for i, v := range contour.Data {
		features[i] = v != 0
	}
	sq := SquaredEDT(features, object)

	for i, d2 := range sq {
		d := math.Sqrt(d2)
		if object.Data[i] != 0 {
			d = -d
		}
		out.Data[i] = d
	}
	return out
}

// Absolute returns |Signed(object)|
func Absolute(object *models.Volume) *models.Volume {
	out := Signed(object)
	for i, v := range out.Data {
		out.Data[i] = math.Abs(v)
	}
	return out
}

// SquaredEDT computes the squared physical distance from every voxel to the
// nearest feature voxel, using the geometry of ref. Voxels are +Inf when no
// feature exists.
func SquaredEDT(features []bool, ref *models.Volume) []float64 {
	w, h, d := ref.Width, ref.Height, ref.Depth
	g := make([]float64, len(features))
	for i, f := range features {
		if f {
			g[i] = 0
		} else {
			g[i] = math.Inf(1)
		}
	}

	// one separable pass per axis: x lines, then y, then z
	transformAxis(g, w, h*d, 1, func(line int) int {
		return line * w
	}, ref.VoxelSize.X)
	transformAxis(g, h, w*d, w, func(line int) int {
		z, x := line/w, line%w
		return z*w*h + x
	}, ref.VoxelSize.Y)
	transformAxis(g, d, w*h, w*h, func(line int) int {
		return line
	}, ref.VoxelSize.Z)
	return g
}

// transformAxis runs the 1D lower-envelope transform over nLines lines of
// length n. start maps a line number to its first flat index; stride is the
// flat distance between neighbouring samples on the line.
func transformAxis(g []float64, n, nLines, stride int, start func(int) int, spacing float64) {
	f := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)
	for line := 0; line < nLines; line++ {
		base := start(line)
		for i := 0; i < n; i++ {
			f[i] = g[base+i*stride]
		}
		lowerEnvelope(f, spacing, out, v, z)
		for i := 0; i < n; i++ {
			g[base+i*stride] = out[i]
		}
	}
}

// lowerEnvelope computes out[q] = min_p (f[p] + ((q-p)*spacing)^2)
// (Felzenszwalb & Huttenlocher). Infinite samples are not parabola sites.
func lowerEnvelope(f []float64, spacing float64, out []float64, v []int, z []float64) {
	n := len(f)
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		qs := float64(q) * spacing
		var s float64
		for k >= 0 {
			ps := float64(v[k]) * spacing
			s = ((f[q] + qs*qs) - (f[v[k]] + ps*ps)) / (2 * (qs - ps))
			if s > z[k] {
				break
			}
			k--
		}
		k++
		v[k] = q
		if k == 0 {
			z[0] = math.Inf(-1)
		} else {
			z[k] = s
		}
		z[k+1] = math.Inf(1)
	}

	if k < 0 {
		for q := range out {
			out[q] = math.Inf(1)
		}
		return
	}

	k = 0
	for q := 0; q < n; q++ {
		qs := float64(q) * spacing
		for z[k+1] < qs {
			k++
		}
		ps := float64(v[k]) * spacing
		out[q] = (qs-ps)*(qs-ps) + f[v[k]]
	}
}
