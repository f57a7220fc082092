package models

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// TestVolumeIndexRoundTrip verifies that Index and Coords are inverse
func TestVolumeIndexRoundTrip(t *testing.T) {
	v := NewVolume(4, 3, 2, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	for idx := 0; idx < v.Len(); idx++ {
		x, y, z := v.Coords(idx)
		if got := v.Index(x, y, z); got != idx {
			t.Errorf("Index(Coords(%d)) = %d", idx, got)
		}
	}
}

// TestPhysicalTransforms checks index <-> physical mapping with anisotropic spacing
func TestPhysicalTransforms(t *testing.T) {
	v := NewVolume(10, 10, 10, r3.Vec{X: 0.5, Y: 1, Z: 2.5}, r3.Vec{X: -10, Y: 5, Z: 0})

	p := v.IndexToPhysical(2, 3, 4)
	want := r3.Vec{X: -9, Y: 8, Z: 10}
	if r3.Norm(r3.Sub(p, want)) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, p)
	}

	x, y, z, ok := v.PhysicalToIndex(r3.Vec{X: -8.9, Y: 8.2, Z: 10.4})
	if !ok || x != 2 || y != 3 || z != 4 {
		t.Errorf("Expected (2,3,4,true), got (%d,%d,%d,%v)", x, y, z, ok)
	}

	if _, _, _, ok := v.PhysicalToIndex(r3.Vec{X: 100}); ok {
		t.Error("Expected out-of-bounds point to report ok=false")
	}
}

// TestVolumeValidate covers the consistency checks
func TestVolumeValidate(t *testing.T) {
	tests := []struct {
		name    string
		vol     *Volume
		wantErr bool
	}{
		{"valid", NewVolume(2, 2, 2, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}), false},
		{"short data", &Volume{Data: make([]float64, 3), Width: 2, Height: 2, Depth: 1, VoxelSize: r3.Vec{X: 1, Y: 1, Z: 1}}, true},
		{"zero spacing", NewVolume(2, 2, 2, r3.Vec{X: 1, Y: 0, Z: 1}, r3.Vec{}), true},
		{"zero dimension", &Volume{Width: 0, Height: 2, Depth: 2, VoxelSize: r3.Vec{X: 1, Y: 1, Z: 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vol.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCloneIsDeep verifies that a clone does not alias the source data
func TestCloneIsDeep(t *testing.T) {
	v := NewVolume(2, 2, 2, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	c := v.Clone()
	c.Set(1, 1, 1, 5)
	if v.At(1, 1, 1) != 0 {
		t.Error("Clone shares data with the source volume")
	}
	if !v.SameGeometry(c) {
		t.Error("Clone changed geometry")
	}
}

// TestAtlasSetOrderAndFilter checks that the pool keeps insertion order
func TestAtlasSetOrderAndFilter(t *testing.T) {
	mk := func(id string) *Atlas {
		return &Atlas{ID: id, Labels: map[string]*Volume{
			"heart": NewVolume(2, 2, 2, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}),
		}}
	}
	set, err := NewAtlasSet(mk("c"), mk("a"), mk("b"))
	if err != nil {
		t.Fatalf("NewAtlasSet failed: %v", err)
	}

	ids := set.IDs()
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("Unexpected order %v", ids)
	}

	filtered := set.Without("a")
	if filtered.Len() != 2 || set.Len() != 3 {
		t.Errorf("Without must not mutate the source: got %d and %d", filtered.Len(), set.Len())
	}
	if _, ok := filtered.Get("a"); ok {
		t.Error("Removed atlas still present")
	}

	if err := set.Add(mk("c")); err == nil {
		t.Error("Expected duplicate id to be rejected")
	}

	if _, err := set.Labels("lung"); err == nil {
		t.Error("Expected missing structure to be an error")
	}
}

// TestAngularGridLayout checks lattice size and coordinates
func TestAngularGridLayout(t *testing.T) {
	tests := []struct {
		res          float64
		nPhi, nTheta int
	}{
		{1, 360, 180},
		{3, 120, 60},
		{6, 60, 30},
		{7, 52, 26},
	}
	for _, tt := range tests {
		g := NewAngularGrid(tt.res)
		if g.NPhi != tt.nPhi || g.NTheta != tt.nTheta {
			t.Errorf("res %v: expected %dx%d, got %dx%d", tt.res, tt.nPhi, tt.nTheta, g.NPhi, g.NTheta)
		}
		if len(g.Values) != g.NPhi*g.NTheta {
			t.Errorf("res %v: values length %d", tt.res, len(g.Values))
		}
		if math.Abs(g.Theta(0)+math.Pi/2) > 1e-12 || math.Abs(g.Phi(0)+math.Pi) > 1e-12 {
			t.Errorf("res %v: lattice does not start at (-pi, -pi/2)", tt.res)
		}
		if g.Theta(g.NTheta-1) >= math.Pi/2 || g.Phi(g.NPhi-1) >= math.Pi {
			t.Errorf("res %v: lattice exceeds upper bound", tt.res)
		}
	}
}
