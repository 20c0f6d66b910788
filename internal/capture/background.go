package capture

import (
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNotReady is returned when the background is used before it has been learned.
var ErrNotReady = errors.New("background model is not ready")

// Readiness decides when enough frames have been observed.
type Readiness struct {
	// MinFrames is the number of frames always observed before readiness.
	MinFrames int
	// MaxFrames forces readiness even if the mean never converges.
	MaxFrames int
	// ConvergenceEpsilon is the largest mean absolute change of the running
	// mean, on a 0..1 scale, accepted as converged. Zero disables the check.
	ConvergenceEpsilon float64
}

// BackgroundModel learns a grayscale reference image of the empty surface by
// averaging the first frames it observes. Once ready, the reference is frozen.
type BackgroundModel struct {
	size      image.Point
	readiness Readiness

	mu         sync.Mutex
	sum        gocv.Mat // CV_32F accumulator
	mean       gocv.Mat // CV_32F running mean
	reference  gocv.Mat // CV_8U, valid once ready
	frames     int
	lastChange float64
	ready      bool
}

// NewBackgroundModel creates a model for frames of the given size.
func NewBackgroundModel(size image.Point, readiness Readiness) *BackgroundModel {
	if readiness.MinFrames <= 0 {
		readiness.MinFrames = 1
	}
	if readiness.MaxFrames < readiness.MinFrames {
		readiness.MaxFrames = readiness.MinFrames
	}
	return &BackgroundModel{
		size:      size,
		readiness: readiness,
		sum:       gocv.NewMat(),
		mean:      gocv.NewMat(),
		reference: gocv.NewMat(),
	}
}

// Observe accumulates one frame into the background. It is a no-op once the
// model is ready. A frame of the wrong size returns ErrFrameSize.
//
// Algorithm:
// 1. Convert frame to grayscale, then to float32
// 2. Add to the running sum and recompute the mean
// 3. Measure how far the mean moved since the previous frame
// 4. Freeze the mean as the reference once the readiness policy is met
func (b *BackgroundModel) Observe(frame gocv.Mat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}
	if err := CheckSize(frame, b.size); err != nil {
		return err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	Grayscale(frame, &gray)

	sample := gocv.NewMat()
	defer sample.Close()
	gray.ConvertTo(&sample, gocv.MatTypeCV32F)

	if b.frames == 0 {
		sample.CopyTo(&b.sum)
	} else {
		gocv.Add(b.sum, sample, &b.sum)
	}
	b.frames++

	mean := b.sum.Clone()
	mean.DivideFloat(float32(b.frames))

	if b.frames > 1 {
		delta := gocv.NewMat()
		gocv.AbsDiff(mean, b.mean, &delta)
		b.lastChange = delta.Mean().Val1 / 255
		delta.Close()
	}

	b.mean.Close()
	b.mean = mean

	if b.converged() {
		b.mean.ConvertTo(&b.reference, gocv.MatTypeCV8U)
		b.ready = true
		b.sum.Close()
		b.sum = gocv.NewMat()
	}

	return nil
}

// converged applies the readiness policy. Callers hold b.mu.
func (b *BackgroundModel) converged() bool {
	r := b.readiness
	switch {
	case b.frames >= r.MaxFrames:
		return true
	case b.frames < r.MinFrames:
		return false
	case r.ConvergenceEpsilon <= 0:
		return true
	default:
		return b.frames > 1 && b.lastChange < r.ConvergenceEpsilon
	}
}

// Ready reports whether the background has been learned.
func (b *BackgroundModel) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Frames returns the number of frames observed so far.
func (b *BackgroundModel) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// LastChange returns the most recent mean movement on a 0..1 scale.
func (b *BackgroundModel) LastChange() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChange
}

// Background returns a copy of the learned reference. The caller owns the
// returned Mat and must close it.
func (b *BackgroundModel) Background() (gocv.Mat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return gocv.NewMat(), ErrNotReady
	}
	return b.reference.Clone(), nil
}

// Difference writes the absolute difference between the grayscale frame and
// the learned background into dst.
func (b *BackgroundModel) Difference(frame gocv.Mat, dst *gocv.Mat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return ErrNotReady
	}
	if err := CheckSize(frame, b.size); err != nil {
		return err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	Grayscale(frame, &gray)

	gocv.AbsDiff(gray, b.reference, dst)
	return nil
}

// Close releases resources used by the model.
func (b *BackgroundModel) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sum.Close()
	b.mean.Close()
	b.reference.Close()
}
