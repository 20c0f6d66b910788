// Package display pushes rendered canvases to whatever shows them: a full
// screen window on a second monitor, an MJPEG stream, or both.
package display

import (
	"image"

	"github.com/kbinani/screenshot"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Surface receives every rendered canvas. Show must not retain img.
type Surface interface {
	Show(img gocv.Mat) error
	Close() error
}

type tee []Surface

// Tee returns a Surface that shows each canvas on all of surfaces.
func Tee(surfaces ...Surface) Surface {
	return tee(surfaces)
}

func (t tee) Show(img gocv.Mat) error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Show(img))
	}
	return err
}

func (t tee) Close() error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// Secondary returns the bounds of the second active display. ok is false when
// only one display is connected.
func Secondary() (bounds image.Rectangle, ok bool) {
	if screenshot.NumActiveDisplays() < 2 {
		return image.Rectangle{}, false
	}
	return screenshot.GetDisplayBounds(1), true
}

// Primary returns the bounds of the main display, or an empty rectangle when
// no display is active.
func Primary() image.Rectangle {
	if screenshot.NumActiveDisplays() < 1 {
		return image.Rectangle{}
	}
	return screenshot.GetDisplayBounds(0)
}
