package spherical

import (
	"github.com/fogleman/delaunay"
)

// point2 is a planar site (x = theta, y = phi) carrying a sample value
type point2 struct {
	X, Y  float64
	Value float64
}

// triangle indexes three vertices in counter-clockwise order
type triangle struct {
	A, B, C int
}

// triangulate builds a Delaunay triangulation of pts covering their convex
// hull. The returned triangles reference pts by index. Fewer than three or
// collinear points give no triangles.
func triangulate(pts []point2) []triangle {
	if len(pts) < 3 {
		return nil
	}

	sites := make([]delaunay.Point, len(pts))
	for i, p := range pts {
		sites[i] = delaunay.Point{X: p.X, Y: p.Y}
	}
	mesh, err := delaunay.Triangulate(sites)
	if err != nil {
		return nil
	}

	out := make([]triangle, 0, len(mesh.Triangles)/3)
	for k := 0; k+2 < len(mesh.Triangles); k += 3 {
		a, b, c := mesh.Triangles[k], mesh.Triangles[k+1], mesh.Triangles[k+2]
		if orient(pts[a], pts[b], pts[c]) < 0 {
			b, c = c, b
		}
		out = append(out, triangle{A: a, B: b, C: c})
	}
	return out
}

// orient is twice the signed area of (a, b, c); positive when counter-clockwise
func orient(a, b, c point2) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
