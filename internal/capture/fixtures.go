package capture

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// BlankFrame returns a black 3-channel frame of the given size: an empty table.
func BlankFrame(size image.Point) *gocv.Mat {
	m := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &m
}

// TouchFrame returns a blank frame with a white filled square of side n
// centred on each of the given points. For odd n the centroid of each square
// is exactly its centre.
func TouchFrame(size image.Point, n int, centres ...image.Point) *gocv.Mat {
	m := BlankFrame(size)
	white := color.RGBA{255, 255, 255, 255}
	for _, c := range centres {
		r := image.Rect(c.X-n/2, c.Y-n/2, c.X-n/2+n, c.Y-n/2+n).Intersect(image.Rect(0, 0, size.X, size.Y))
		if r.Empty() {
			continue
		}
		gocv.Rectangle(m, r, white, -1)
	}
	return m
}

// Sequence builds a replay for MockCamera: learn blank frames of an empty
// table, then one frame per touch set, each followed by a blank frame.
func Sequence(size image.Point, learn, n int, touches ...[]image.Point) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, learn+2*len(touches))
	for i := 0; i < learn; i++ {
		frames = append(frames, BlankFrame(size))
	}
	for _, centres := range touches {
		frames = append(frames, TouchFrame(size, n, centres...), BlankFrame(size))
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
