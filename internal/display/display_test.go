package display

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

type fakeSurface struct {
	shows  int
	closed bool
	err    error
}

func (f *fakeSurface) Show(img gocv.Mat) error {
	f.shows++
	return f.err
}

func (f *fakeSurface) Close() error {
	f.closed = true
	return f.err
}

func TestTee(t *testing.T) {
	errA := errors.New("window gone")
	errB := errors.New("encoder failed")
	a := &fakeSurface{err: errA}
	b := &fakeSurface{}
	c := &fakeSurface{err: errB}

	surface := Tee(a, b, c)

	img := gocv.NewMat()
	defer img.Close()

	err := surface.Show(img)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Show() error = %v, want both failures", err)
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("Show() aggregated %d errors, want 2", got)
	}
	for i, f := range []*fakeSurface{a, b, c} {
		if f.shows != 1 {
			t.Errorf("surface %d shown %d times, want 1", i, f.shows)
		}
	}

	surface.Close()
	for i, f := range []*fakeSurface{a, b, c} {
		if !f.closed {
			t.Errorf("surface %d not closed", i)
		}
	}
}

func TestTee_Empty(t *testing.T) {
	img := gocv.NewMat()
	defer img.Close()

	if err := Tee().Show(img); err != nil {
		t.Errorf("Show() error = %v", err)
	}
}

func TestStream_RejectsEmptyCanvas(t *testing.T) {
	s := NewStream(0)

	img := gocv.NewMat()
	defer img.Close()

	if err := s.Show(img); err == nil {
		t.Error("Show() should fail on an empty canvas")
	}
	if _, seq := s.Latest(); seq != 0 {
		t.Errorf("seq = %d, want 0", seq)
	}
}

func TestStream_EncodesJPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := NewStream(90)
	defer s.Close()

	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(255, 0, 0, 0))

	for i := 1; i <= 2; i++ {
		if err := s.Show(img); err != nil {
			t.Fatalf("Show() error = %v", err)
		}
		data, seq := s.Latest()
		if seq != uint64(i) {
			t.Errorf("seq = %d, want %d", seq, i)
		}
		if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
			t.Errorf("frame %d is not a JPEG", i)
		}
	}
}

func TestNewWindow(t *testing.T) {
	bounds := image.Rect(1920, 0, 3840, 1080)
	w := NewWindow("canvas", bounds)

	if w.Bounds() != bounds {
		t.Errorf("Bounds() = %v, want %v", w.Bounds(), bounds)
	}
	// Never shown, so nothing to destroy
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWindow_RejectsEmptyCanvas(t *testing.T) {
	w := NewWindow("canvas", image.Rect(0, 0, 640, 480))
	defer w.Close()

	img := gocv.NewMat()
	defer img.Close()

	if err := w.Show(img); err == nil {
		t.Error("Show() should fail on an empty canvas")
	}
	if w.win != nil {
		t.Error("an empty canvas should not open a native window")
	}
}
