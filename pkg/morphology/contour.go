package morphology

import (
	"atlasqc/internal/models"
)

// Contour marks foreground voxels that touch background through a face.
// Voxels on the volume border count as touching background.
func Contour(binary *models.Volume) *models.Volume {
	out := models.NewVolumeLike(binary)
	for idx, v := range binary.Data {
		if v == 0 {
			continue
		}
		x, y, z := binary.Coords(idx)
		for _, n := range faceNeighbors {
			nx, ny, nz := x+n[0], y+n[1], z+n[2]
			if !binary.InBounds(nx, ny, nz) || binary.At(nx, ny, nz) == 0 {
				out.Data[idx] = 1
				break
			}
		}
	}
	return out
}

// ContourIndices returns the flat indices of the contour voxels in storage
// order
func ContourIndices(binary *models.Volume) []int {
	contour := Contour(binary)
	var out []int
	for idx, v := range contour.Data {
		if v != 0 {
			out = append(out, idx)
		}
	}
	return out
}
