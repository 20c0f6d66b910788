package capture

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrFrameSize is returned when a frame does not have the session's fixed size.
var ErrFrameSize = errors.New("frame size mismatch")

// CheckSize verifies that frame has exactly the given width and height.
func CheckSize(frame gocv.Mat, size image.Point) error {
	if frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrFrameSize)
	}
	if frame.Cols() != size.X || frame.Rows() != size.Y {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, frame.Cols(), frame.Rows(), size.X, size.Y)
	}
	return nil
}

// Grayscale flattens a color frame into a single 8-bit channel. Frames that
// are already single-channel are copied.
func Grayscale(frame gocv.Mat, dst *gocv.Mat) {
	switch frame.Channels() {
	case 1:
		frame.CopyTo(dst)
	case 4:
		gocv.CvtColor(frame, dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, dst, gocv.ColorBGRToGray)
	}
}
