package surface

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Drawing buffers camera-space touches and paints them in screen space on the
// next render. The canvas is not cleared between passes, so strokes build up.
type Drawing struct {
	session    *Session
	homography geometry.Homography
	pending    Pending
	clear      sync.Once
}

func newDrawing(s *Session, h geometry.Homography) *Drawing {
	return &Drawing{session: s, homography: h}
}

func (d *Drawing) sealed() {}

// State returns StateDrawing.
func (d *Drawing) State() State {
	return StateDrawing
}

// Homography returns the transform used to place touches.
func (d *Drawing) Homography() geometry.Homography {
	return d.homography
}

// Pending returns the number of touches awaiting a render.
func (d *Drawing) Pending() int {
	return d.pending.Len()
}

// AcceptTouch queues every point for the next render.
func (d *Drawing) AcceptTouch(points []geometry.Point) error {
	d.pending.Append(points...)
	return nil
}

// DrawToImage drains the queue and paints a marker at each transformed point.
// The first pass wipes whatever calibration left on the canvas.
func (d *Drawing) DrawToImage(img *gocv.Mat) {
	style := d.session.config.Style
	d.clear.Do(func() {
		img.SetTo(scalar(style.Background))
	})

	points := d.pending.Drain()
	if len(points) == 0 {
		return
	}

	drawn := make([]geometry.Point, 0, len(points))
	for _, p := range points {
		sp := d.homography.Apply(p)
		if !sp.Finite() {
			continue
		}
		gocv.Circle(img, sp.Image(), style.Radius, style.Draw, -1)
		drawn = append(drawn, sp)
	}

	if len(drawn) > 0 {
		d.session.drawn(drawn)
	}
}
