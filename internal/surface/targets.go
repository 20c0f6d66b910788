package surface

import (
	"image"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Targets are the four screen-space calibration anchors in collection order:
// top-left, top-right, bottom-left, bottom-right.
type Targets [4]geometry.Point

var targetNames = [4]string{"top-left", "top-right", "bottom-left", "bottom-right"}

// NewTargets insets the four anchors by margin pixels from the corners of a
// display of the given size.
func NewTargets(display image.Point, margin float64) Targets {
	w, h := float64(display.X), float64(display.Y)
	return Targets{
		geometry.Screen(margin, margin),
		geometry.Screen(w-margin, margin),
		geometry.Screen(margin, h-margin),
		geometry.Screen(w-margin, h-margin),
	}
}

// Points returns the anchors as a slice.
func (t Targets) Points() []geometry.Point {
	out := make([]geometry.Point, len(t))
	copy(out, t[:])
	return out
}

// Name returns a readable label for anchor i.
func (t Targets) Name(i int) string {
	if i < 0 || i >= len(targetNames) {
		return "none"
	}
	return targetNames[i]
}
