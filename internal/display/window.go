package display

import (
	"fmt"
	"image"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Window shows canvases in a borderless full screen OpenCV window placed on
// the given display bounds. The native window is created on the first Show,
// so it lives on the goroutine that renders.
type Window struct {
	title  string
	bounds image.Rectangle
	win    *gocv.Window
}

// NewWindow prepares a window covering bounds.
func NewWindow(title string, bounds image.Rectangle) *Window {
	return &Window{title: title, bounds: bounds}
}

// Bounds returns the display area the window covers.
func (w *Window) Bounds() image.Rectangle {
	return w.bounds
}

// Show draws img and pumps the window's event loop. Errors placing the
// window are reported together with the first draw.
func (w *Window) Show(img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("window %q: empty canvas", w.title)
	}

	var err error
	if w.win == nil {
		w.win = gocv.NewWindow(w.title)
		err = multierr.Combine(
			w.win.MoveWindow(w.bounds.Min.X, w.bounds.Min.Y),
			w.win.ResizeWindow(w.bounds.Dx(), w.bounds.Dy()),
			w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen),
		)
	}
	err = multierr.Append(err, w.win.IMShow(img))
	w.win.WaitKey(1)
	if err != nil {
		return fmt.Errorf("window %q: %w", w.title, err)
	}
	return nil
}

// Close destroys the native window if one was created.
func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}
