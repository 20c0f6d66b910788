// Package geometry holds the coordinate types shared by the touch pipeline and
// the projective transform that maps camera space onto screen space.
package geometry

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// Space tags the coordinate system a Point belongs to.
type Space int

const (
	// CameraSpace points come from blob centroids in the camera frame.
	CameraSpace Space = iota
	// ScreenSpace points are display pixels, obtained through a Homography.
	ScreenSpace
)

// String returns a readable name for the space.
func (s Space) String() string {
	switch s {
	case CameraSpace:
		return "camera"
	case ScreenSpace:
		return "screen"
	default:
		return "unknown"
	}
}

// Point is a 2D coordinate with its origin tag.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Space Space   `json:"-"`
}

// Camera returns a camera-space point.
func Camera(x, y float64) Point {
	return Point{X: x, Y: y, Space: CameraSpace}
}

// Screen returns a screen-space point.
func Screen(x, y float64) Point {
	return Point{X: x, Y: y, Space: ScreenSpace}
}

// Vec returns the point as an r2 vector.
func (p Point) Vec() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// Distance returns the Euclidean distance between two points, ignoring their tags.
func (p Point) Distance(q Point) float64 {
	return p.Vec().Sub(q.Vec()).Norm()
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Image rounds the point to the nearest pixel.
func (p Point) Image() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
