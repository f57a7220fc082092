package spherical

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// angularPoint is a sample in the (theta, phi) plane
type angularPoint struct {
	Theta, Phi float64
	Value      float64
}

// Compare implements the kdtree.Comparable interface
func (p angularPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(angularPoint)
	switch d {
	case 0:
		return p.Theta - q.Theta
	case 1:
		return p.Phi - q.Phi
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p angularPoint) Dims() int { return 2 }

// Distance returns the squared planar distance between two points
func (p angularPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(angularPoint)
	dt := p.Theta - q.Theta
	dp := p.Phi - q.Phi
	return dt*dt + dp*dp
}

// angularPoints satisfies kdtree.Interface
type angularPoints []angularPoint

func (p angularPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p angularPoints) Len() int                              { return len(p) }
func (p angularPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p angularPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{angularPoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{angularPoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for angularPoints
type pointPlane struct {
	angularPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.angularPoints[i].Theta < p.angularPoints[j].Theta
	case 1:
		return p.angularPoints[i].Phi < p.angularPoints[j].Phi
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{angularPoints: p.angularPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.angularPoints[i], p.angularPoints[j] = p.angularPoints[j], p.angularPoints[i]
}

// nearestIndex answers nearest-sample queries in the (theta, phi) plane
type nearestIndex struct {
	tree *kdtree.Tree
}

func newNearestIndex(pts []point2) *nearestIndex {
	ap := make(angularPoints, len(pts))
	for i, p := range pts {
		ap[i] = angularPoint{Theta: p.X, Phi: p.Y, Value: p.Value}
	}
	return &nearestIndex{tree: kdtree.New(ap, false)}
}

// value returns the sample value closest to (theta, phi)
func (n *nearestIndex) value(theta, phi float64) float64 {
	got, _ := n.tree.Nearest(angularPoint{Theta: theta, Phi: phi})
	return got.(angularPoint).Value
}
