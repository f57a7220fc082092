package spherical

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"atlasqc/internal/models"
)

// Smooth applies a separable Gaussian filter with periodic boundaries on
// both axes. The kernel is truncated at four standard deviations. A
// non-positive sigma returns an unmodified copy.
func Smooth(grid *models.AngularGrid, sigma float64) *models.AngularGrid {
	out := grid.Clone()
	if sigma <= 0 {
		return out
	}
	kernel := gaussianKernel(sigma)

	tmp := make([]float64, len(out.Values))
	// along phi (rows)
	convolveWrap(out.Values, tmp, out.NPhi, out.NTheta, out.NTheta, 1, kernel)
	// along theta (columns)
	convolveWrap(tmp, out.Values, out.NTheta, out.NPhi, 1, out.NTheta, kernel)
	return out
}

// gaussianKernel returns normalised weights for offsets -r..r
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		x := float64(k)
		kernel[k+radius] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// convolveWrap filters n-sample lines of src into dst. Samples along a line
// are stride apart; consecutive lines start lineStride apart.
func convolveWrap(src, dst []float64, n, nLines, stride, lineStride int, kernel []float64) {
	radius := len(kernel) / 2
	for line := 0; line < nLines; line++ {
		base := line * lineStride
		for i := 0; i < n; i++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * src[base+wrap(i+k, n)*stride]
			}
			dst[base+i*stride] = acc
		}
	}
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
