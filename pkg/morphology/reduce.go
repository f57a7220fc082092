// Package morphology reduces probabilistic or noisy label volumes to a single
// solid connected component and extracts its surface contour.
package morphology

import (
	"atlasqc/internal/models"
)

// faceNeighbors are the 6-connected offsets (dx, dy, dz)
var faceNeighbors = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// ReduceProbability normalises vol by its maximum, binarises it at threshold,
// fills enclosed holes and keeps only the largest 6-connected component.
// A volume without foreground is returned as an empty binary volume.
func ReduceProbability(vol *models.Volume, threshold float64) *models.Volume {
	binary := Binarize(vol, threshold)
	if binary.CountNonZero() == 0 {
		return binary
	}
	return LargestComponent(FillHoles(binary))
}

// Binarize returns a 0/1 volume marking voxels whose max-normalised value is
// at least threshold
func Binarize(vol *models.Volume, threshold float64) *models.Volume {
	out := models.NewVolumeLike(vol)
	maxVal := vol.Max()
	if maxVal <= 0 {
		return out
	}
	for i, v := range vol.Data {
		if v/maxVal >= threshold {
			out.Data[i] = 1
		}
	}
	return out
}

// FillHoles sets every background voxel that is not 6-connected to the
// volume border to foreground
func FillHoles(binary *models.Volume) *models.Volume {
	out := binary.Clone()
	w, h, d := binary.Width, binary.Height, binary.Depth
	outside := make([]bool, len(binary.Data))
	queue := make([]int, 0, 2*(w*h+w*d+h*d))

	seed := func(x, y, z int) {
		idx := binary.Index(x, y, z)
		if binary.Data[idx] == 0 && !outside[idx] {
			outside[idx] = true
			queue = append(queue, idx)
		}
	}
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if x == 0 || y == 0 || z == 0 || x == w-1 || y == h-1 || z == d-1 {
					seed(x, y, z)
				}
			}
		}
	}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		x, y, z := binary.Coords(idx)
		for _, n := range faceNeighbors {
			nx, ny, nz := x+n[0], y+n[1], z+n[2]
			if !binary.InBounds(nx, ny, nz) {
				continue
			}
			seed(nx, ny, nz)
		}
	}

	for i, v := range binary.Data {
		if v == 0 && !outside[i] {
			out.Data[i] = 1
		}
	}
	return out
}

// LabelComponents assigns a label (1..n) to every 6-connected foreground
// component. It returns the label per voxel (0 for background) and the voxel
// count of each label, indexed by label-1.
func LabelComponents(binary *models.Volume) ([]int, []int) {
	labels := make([]int, len(binary.Data))
	var sizes []int
	var queue []int

	for start, v := range binary.Data {
		if v == 0 || labels[start] != 0 {
			continue
		}
		label := len(sizes) + 1
		size := 0
		labels[start] = label
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++
			x, y, z := binary.Coords(idx)
			for _, n := range faceNeighbors {
				nx, ny, nz := x+n[0], y+n[1], z+n[2]
				if !binary.InBounds(nx, ny, nz) {
					continue
				}
				nIdx := binary.Index(nx, ny, nz)
				if binary.Data[nIdx] != 0 && labels[nIdx] == 0 {
					labels[nIdx] = label
					queue = append(queue, nIdx)
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// LargestComponent keeps the component with the most voxels. Ties go to the
// component found first in storage order.
func LargestComponent(binary *models.Volume) *models.Volume {
	labels, sizes := LabelComponents(binary)
	out := models.NewVolumeLike(binary)
	if len(sizes) == 0 {
		return out
	}
	best := 0
	for i, s := range sizes {
		if s > sizes[best] {
			best = i
		}
	}
	for i, l := range labels {
		if l == best+1 {
			out.Data[i] = 1
		}
	}
	return out
}
