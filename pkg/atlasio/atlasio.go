// Package atlasio reads and writes atlas label volumes stored as stacks of
// numbered 2D slices.
//
// An atlas set on disk looks like
//
//	root/
//	  geometry.yaml          optional voxel size and origin for every atlas
//	  <atlasID>/
//	    <structure>/
//	      geometry.yaml      optional override for this volume
//	      slice_0000.png
//	      slice_0001.png
//	      ...
//
// Slices are ordered by the number in their file name. The grey level of a
// pixel divided by 65535 is the label value of the voxel.
package atlasio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoding
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"atlasqc/internal/models"
)

// GeometryFile is the name of the geometry sidecar
const GeometryFile = "geometry.yaml"

// ErrNoSlices is returned for a directory without slice images
var ErrNoSlices = errors.New("no slice images found")

// Vec3 is the YAML form of a 3D vector
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Geometry places a slice stack in physical space
type Geometry struct {
	// VoxelSize is the spacing along x, y and z; z is the inter-slice gap
	VoxelSize Vec3 `yaml:"voxelSize"`
	Origin    Vec3 `yaml:"origin"`
}

// DefaultGeometry is unit spacing at the origin
func DefaultGeometry() Geometry {
	return Geometry{VoxelSize: Vec3{X: 1, Y: 1, Z: 1}}
}

func (g Geometry) voxelSize() r3.Vec {
	return r3.Vec{X: g.VoxelSize.X, Y: g.VoxelSize.Y, Z: g.VoxelSize.Z}
}

func (g Geometry) origin() r3.Vec {
	return r3.Vec{X: g.Origin.X, Y: g.Origin.Y, Z: g.Origin.Z}
}

// ReadGeometry reads a geometry sidecar. ok is false when the file does not exist.
func ReadGeometry(path string, fallback Geometry) (g Geometry, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, false, nil
	}
	if err != nil {
		return fallback, false, fmt.Errorf("error reading geometry: %w", err)
	}
	g = fallback
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fallback, false, fmt.Errorf("error parsing geometry %s: %w", path, err)
	}
	if g.VoxelSize.X <= 0 || g.VoxelSize.Y <= 0 || g.VoxelSize.Z <= 0 {
		return fallback, false, fmt.Errorf("geometry %s: voxel size must be positive", path)
	}
	return g, true, nil
}

// WriteGeometry writes a geometry sidecar
func WriteGeometry(path string, g Geometry) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("error marshaling geometry: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadVolume reads the slice stack in dir. Geometry comes from dir's sidecar
// when present, unit spacing otherwise.
func LoadVolume(dir string) (*models.Volume, error) {
	return loadVolume(dir, DefaultGeometry())
}

func loadVolume(dir string, fallback Geometry) (*models.Volume, error) {
	files, err := sliceFiles(dir)
	if err != nil {
		return nil, err
	}
	geom, _, err := ReadGeometry(filepath.Join(dir, GeometryFile), fallback)
	if err != nil {
		return nil, err
	}

	var vol *models.Volume
	for z, name := range files {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		b := img.Bounds()
		if vol == nil {
			// all slices must share the first slice's dimensions
			vol = models.NewVolume(b.Dx(), b.Dy(), len(files), geom.voxelSize(), geom.origin())
		} else if b.Dx() != vol.Width || b.Dy() != vol.Height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", name, b.Dx(), b.Dy(), vol.Width, vol.Height)
		}
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				vol.Set(x, y, z, float64(g.Y)/65535.0)
			}
		}
	}
	return vol, nil
}

// SaveVolume writes vol as 16-bit PNG slices plus a geometry sidecar. Values
// are clamped to [0, 1]; volumes whose maximum exceeds 1 are normalised by it.
func SaveVolume(dir string, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating volume directory: %w", err)
	}

	scale := 1.0
	if m := vol.Max(); m > 1 {
		scale = m
	}
	for z := 0; z < vol.Depth; z++ {
		img := image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				v := math.Max(0, math.Min(1, vol.At(x, y, z)/scale))
				img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * 65535))})
			}
		}
		if err := savePNG(filepath.Join(dir, fmt.Sprintf("slice_%04d.png", z)), img); err != nil {
			return err
		}
	}

	geom := Geometry{
		VoxelSize: Vec3{X: vol.VoxelSize.X, Y: vol.VoxelSize.Y, Z: vol.VoxelSize.Z},
		Origin:    Vec3{X: vol.Origin.X, Y: vol.Origin.Y, Z: vol.Origin.Z},
	}
	return WriteGeometry(filepath.Join(dir, GeometryFile), geom)
}

// LoadAtlasSet loads every atlas directory under root. Each atlas must hold
// all requested structures; with no structures, every subdirectory of an
// atlas is loaded as a label. Atlases are loaded in parallel and returned in
// directory-name order.
func LoadAtlasSet(root string, structures []string) (*models.AtlasSet, error) {
	rootGeom, _, err := ReadGeometry(filepath.Join(root, GeometryFile), DefaultGeometry())
	if err != nil {
		return nil, err
	}

	ids, err := subdirs(root)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no atlas directories found in %s", root)
	}

	atlases := make([]*models.Atlas, len(ids))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, id := range ids {
		g.Go(func() error {
			a, err := loadAtlas(filepath.Join(root, id), id, structures, rootGeom)
			if err != nil {
				return fmt.Errorf("atlas %s: %w", id, err)
			}
			atlases[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fmt.Printf("Loaded %d atlases from %s\n", len(atlases), root)
	return models.NewAtlasSet(atlases...)
}

// SaveAtlasSet writes every label of every atlas under root
func SaveAtlasSet(root string, set *models.AtlasSet) error {
	for _, id := range set.IDs() {
		a, _ := set.Get(id)
		for structure, vol := range a.Labels {
			if err := SaveVolume(filepath.Join(root, id, structure), vol); err != nil {
				return fmt.Errorf("atlas %s, structure %s: %w", id, structure, err)
			}
		}
	}
	return nil
}

func loadAtlas(dir, id string, structures []string, fallback Geometry) (*models.Atlas, error) {
	geom, _, err := ReadGeometry(filepath.Join(dir, GeometryFile), fallback)
	if err != nil {
		return nil, err
	}
	if len(structures) == 0 {
		if structures, err = subdirs(dir); err != nil {
			return nil, err
		}
	}

	a := &models.Atlas{ID: id, Labels: make(map[string]*models.Volume, len(structures))}
	for _, s := range structures {
		vol, err := loadVolume(filepath.Join(dir, s), geom)
		if err != nil {
			return nil, fmt.Errorf("structure %s: %w", s, err)
		}
		a.Labels[s] = vol
	}
	return a, nil
}

// sliceFiles lists the PNG and JPEG files in dir in slice order
func sliceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// extractNumber returns the last run of digits in a file name, or -1
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	end := -1
	for i := len(base) - 1; i >= 0; i-- {
		c := base[i]
		if c >= '0' && c <= '9' {
			if end < 0 {
				end = i + 1
			}
			continue
		}
		if end >= 0 {
			n, _ := strconv.Atoi(base[i+1 : end])
			return n
		}
	}
	if end >= 0 {
		n, _ := strconv.Atoi(base[:end])
		return n
	}
	return -1
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

func savePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
