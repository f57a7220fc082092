// Package visualization renders label volumes, angular grids and Q-value
// charts for inspecting an atlas removal run.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"atlasqc/internal/models"
)

// Viewer extracts 2D slices from a label volume
type Viewer struct {
	volume *models.Volume

	// scale maps voxel values to [0, 1]
	scale float64
}

// NewViewer creates a viewer for vol. Volumes with values above 1 are
// displayed normalised by their maximum.
func NewViewer(vol *models.Volume) *Viewer {
	scale := 1.0
	if m := vol.Max(); m > 1 {
		scale = m
	}
	return &Viewer{volume: vol, scale: scale}
}

// axisLength returns the number of slices along axis
func (v *Viewer) axisLength(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.volume.Width, nil
	case "y", "Y":
		return v.volume.Height, nil
	case "z", "Z":
		return v.volume.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice perpendicular to axis. An x slice spans
// (z, y), a y slice (x, z) and a z slice (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	n, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	vol := v.volume
	var img *image.Gray16
	switch strings.ToLower(axis) {
	case "x":
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}
	case "y":
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}
	}
	return img, nil
}

func (v *Viewer) gray(value float64) color.Gray16 {
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value/v.scale*65535)))}
}

// MidSlice extracts the central slice along axis
func (v *Viewer) MidSlice(axis string) (*image.Gray16, error) {
	n, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	return v.ExtractSlice(axis, n/2)
}

// SaveSlice saves an image as PNG, or as JPEG when filename ends in .jpg or .jpeg
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.axisLength(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
