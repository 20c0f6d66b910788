package app

import (
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/capture"
	"github.com/ayusman/touchtable/internal/geometry"
)

// readRetryDelay paces retries after a transient camera read failure.
const readRetryDelay = 10 * time.Millisecond

// masker is implemented by detectors that keep their last foreground mask.
type masker interface {
	Mask(dst *gocv.Mat)
}

// runCapture pulls frames until stopped, the source ends, or a frame fails
// in a way that cannot be recovered.
//
// Loop logic:
// 1. Read a frame
// 2. Until the background is ready, only learn from it
// 3. Afterwards difference it, detect blobs and forward touches
func (a *App) runCapture(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, capture.ErrEndOfStream):
				a.logger.Info("frame source exhausted")
				return
			case errors.Is(err, capture.ErrCameraNotOpen):
				a.fail(err)
				return
			}
			a.logger.Warnw("reading frame", "error", err)
			a.clock.Sleep(readRetryDelay)
			continue
		}

		err = a.processFrame(*frame)
		frame.Close()
		if err != nil {
			a.fail(err)
			return
		}
	}
}

// processFrame runs one frame through the pipeline. Any returned error is fatal.
func (a *App) processFrame(frame gocv.Mat) error {
	a.frames.Add(1)

	if !a.background.Ready() {
		if err := a.background.Observe(frame); err != nil {
			return err
		}
		if a.background.Ready() {
			a.logger.Infow("background learned", "frames", a.background.Frames(), "change", a.background.LastChange())
		}
		return nil
	}

	if err := a.background.Difference(frame, &a.diff); err != nil {
		return err
	}

	points, err := a.detector.Detect(a.diff)
	if err != nil {
		return err
	}
	a.showPreview()

	if len(points) == 0 {
		return nil
	}
	a.touches.Add(uint64(len(points)))

	a.mu.Lock()
	listeners := append([]func([]geometry.Point){}, a.onTouch...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(points)
	}

	return a.session.TouchEvent(points)
}

func (a *App) showPreview() {
	if a.preview == nil {
		return
	}
	m, ok := a.detector.(masker)
	if !ok {
		return
	}
	m.Mask(&a.mask)
	if a.mask.Empty() {
		return
	}
	if err := a.preview.Show(a.mask); err != nil {
		a.logger.Debugw("preview", "error", err)
	}
}

// runRender paints the active mode at Render.FPS. It never waits on capture:
// a tick with no new touches simply repaints.
func (a *App) runRender(stop <-chan struct{}) {
	ticker := a.clock.Ticker(time.Second / time.Duration(a.settings.Render.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.renderFrame()
		}
	}
}

func (a *App) renderFrame() {
	a.session.Render(&a.canvas)
	if a.surface == nil {
		return
	}
	if err := a.surface.Show(a.canvas); err != nil {
		a.logger.Warnw("showing canvas", "error", err)
	}
}
