package capture

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func grayFrame(rows, cols int, value uint8) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(float64(value), 0, 0, 0))
	return m
}

func TestBackgroundModel_ReadyAfterMinFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(64, 48), Readiness{MinFrames: 3, MaxFrames: 10})
	defer bg.Close()

	frame := grayFrame(48, 64, 40)
	defer frame.Close()

	for i := 1; i <= 3; i++ {
		if bg.Ready() {
			t.Fatalf("ready after %d frames, want 3", i-1)
		}
		if err := bg.Observe(frame); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}

	if !bg.Ready() {
		t.Fatal("model should be ready after MinFrames")
	}
	if got := bg.Frames(); got != 3 {
		t.Errorf("Frames() = %d, want 3", got)
	}

	// Further frames are ignored once frozen
	if err := bg.Observe(frame); err != nil {
		t.Fatalf("Observe() after ready error = %v", err)
	}
	if got := bg.Frames(); got != 3 {
		t.Errorf("Frames() after ready = %d, want 3", got)
	}
}

func TestBackgroundModel_AveragesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(8, 8), Readiness{MinFrames: 2})
	defer bg.Close()

	dark := grayFrame(8, 8, 20)
	defer dark.Close()
	light := grayFrame(8, 8, 60)
	defer light.Close()

	bg.Observe(dark)
	bg.Observe(light)

	ref, err := bg.Background()
	if err != nil {
		t.Fatalf("Background() error = %v", err)
	}
	defer ref.Close()

	if got := ref.GetUCharAt(4, 4); got != 40 {
		t.Errorf("reference pixel = %d, want 40", got)
	}
}

func TestBackgroundModel_ColorFramesAreFlattened(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(16, 12), Readiness{MinFrames: 1})
	defer bg.Close()

	frame := gocv.NewMatWithSize(12, 16, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(100, 100, 100, 0))

	if err := bg.Observe(frame); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	ref, err := bg.Background()
	if err != nil {
		t.Fatalf("Background() error = %v", err)
	}
	defer ref.Close()

	if ref.Channels() != 1 {
		t.Errorf("reference channels = %d, want 1", ref.Channels())
	}
	if got := ref.GetUCharAt(0, 0); got != 100 {
		t.Errorf("reference pixel = %d, want 100", got)
	}
}

func TestBackgroundModel_Convergence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(8, 8), Readiness{MinFrames: 2, MaxFrames: 50, ConvergenceEpsilon: 0.01})
	defer bg.Close()

	black := grayFrame(8, 8, 0)
	defer black.Close()
	white := grayFrame(8, 8, 255)
	defer white.Close()

	// Alternating frames keep the mean moving by more than 1%
	bg.Observe(black)
	bg.Observe(white)
	if bg.Ready() {
		t.Fatalf("should not converge while mean moves by %.3f", bg.LastChange())
	}

	// A long run of identical frames settles the mean
	for i := 0; i < 48 && !bg.Ready(); i++ {
		bg.Observe(white)
	}
	if !bg.Ready() {
		t.Fatal("model should converge on a static scene")
	}
	if bg.Frames() >= 50 {
		t.Errorf("converged only at MaxFrames (%d frames)", bg.Frames())
	}
}

func TestBackgroundModel_MaxFramesForcesReadiness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(8, 8), Readiness{MinFrames: 1, MaxFrames: 4, ConvergenceEpsilon: 1e-9})
	defer bg.Close()

	black := grayFrame(8, 8, 0)
	defer black.Close()
	white := grayFrame(8, 8, 255)
	defer white.Close()

	for i := 0; i < 4; i++ {
		if i%2 == 0 {
			bg.Observe(black)
		} else {
			bg.Observe(white)
		}
	}

	if !bg.Ready() {
		t.Error("model should be ready at MaxFrames")
	}
}

func TestBackgroundModel_WrongSize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(640, 480), Readiness{MinFrames: 1})
	defer bg.Close()

	frame := grayFrame(10, 10, 0)
	defer frame.Close()

	if err := bg.Observe(frame); !errors.Is(err, ErrFrameSize) {
		t.Errorf("Observe() error = %v, want ErrFrameSize", err)
	}
	if bg.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", bg.Frames())
	}
}

func TestBackgroundModel_NotReady(t *testing.T) {
	bg := NewBackgroundModel(image.Pt(8, 8), Readiness{MinFrames: 5})
	defer bg.Close()

	if _, err := bg.Background(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Background() error = %v, want ErrNotReady", err)
	}

	dst := gocv.NewMat()
	defer dst.Close()
	frame := gocv.NewMat()
	defer frame.Close()

	if err := bg.Difference(frame, &dst); !errors.Is(err, ErrNotReady) {
		t.Errorf("Difference() error = %v, want ErrNotReady", err)
	}
}

func TestBackgroundModel_Difference(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	bg := NewBackgroundModel(image.Pt(8, 8), Readiness{MinFrames: 1})
	defer bg.Close()

	empty := grayFrame(8, 8, 100)
	defer empty.Close()
	bg.Observe(empty)

	touched := grayFrame(8, 8, 100)
	defer touched.Close()
	touched.SetUCharAt(2, 3, 220)
	touched.SetUCharAt(5, 5, 10)

	diff := gocv.NewMat()
	defer diff.Close()
	if err := bg.Difference(touched, &diff); err != nil {
		t.Fatalf("Difference() error = %v", err)
	}

	tests := []struct {
		row, col int
		want     uint8
	}{
		{2, 3, 120},
		{5, 5, 90},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := diff.GetUCharAt(tt.row, tt.col); got != tt.want {
			t.Errorf("diff(%d,%d) = %d, want %d", tt.row, tt.col, got, tt.want)
		}
	}
}
