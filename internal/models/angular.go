package models

import (
	"math"
)

// AngularSample is one surface point expressed in spherical angles relative
// to the structure centroid. Theta is the elevation in [-pi/2, pi/2] and Phi
// the azimuth in [-pi, pi].
type AngularSample struct {
	Theta float64
	Phi   float64
	Value float64
}

// AngularGrid holds values on a regular (phi, theta) lattice. Rows are phi,
// columns are theta: Values[i*NTheta+j] sits at Phi(i), Theta(j).
type AngularGrid struct {
	// Resolution is the lattice step in degrees
	Resolution float64

	NPhi   int
	NTheta int

	Values []float64
}

// NewAngularGrid allocates a zero grid covering theta in [-pi/2, pi/2) and
// phi in [-pi, pi) at the given step in degrees
func NewAngularGrid(resolution float64) *AngularGrid {
	step := resolution * math.Pi / 180
	nTheta := int(math.Ceil(math.Pi/step - 1e-9))
	nPhi := int(math.Ceil(2*math.Pi/step - 1e-9))
	return &AngularGrid{
		Resolution: resolution,
		NPhi:       nPhi,
		NTheta:     nTheta,
		Values:     make([]float64, nPhi*nTheta),
	}
}

// Step returns the lattice step in radians
func (g *AngularGrid) Step() float64 {
	return g.Resolution * math.Pi / 180
}

// Theta returns the elevation of column j
func (g *AngularGrid) Theta(j int) float64 {
	return -math.Pi/2 + float64(j)*g.Step()
}

// Phi returns the azimuth of row i
func (g *AngularGrid) Phi(i int) float64 {
	return -math.Pi + float64(i)*g.Step()
}

// Index returns the flat index of cell (i, j)
func (g *AngularGrid) Index(i, j int) int {
	return i*g.NTheta + j
}

// At returns the value of cell (i, j)
func (g *AngularGrid) At(i, j int) float64 {
	return g.Values[g.Index(i, j)]
}

// Set assigns the value of cell (i, j)
func (g *AngularGrid) Set(i, j int, value float64) {
	g.Values[g.Index(i, j)] = value
}

// Clone returns a deep copy of the grid
func (g *AngularGrid) Clone() *AngularGrid {
	c := *g
	c.Values = make([]float64, len(g.Values))
	copy(c.Values, g.Values)
	return &c
}
