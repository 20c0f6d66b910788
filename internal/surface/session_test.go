package surface

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/config"
	"github.com/ayusman/touchtable/internal/geometry"
)

// cornerTouches are camera-space touches near the anchors of a 1280x720
// display seen by a 640x480 camera, in anchor order.
var cornerTouches = []geometry.Point{
	geometry.Camera(60, 50),
	geometry.Camera(580, 45),
	geometry.Camera(55, 430),
	geometry.Camera(585, 440),
}

func testConfig() Config {
	return Config{
		Targets:  NewTargets(image.Pt(1280, 720), 30),
		Debounce: 81,
		Style:    DefaultStyle(),
	}
}

func touch(t *testing.T, s *Session, p geometry.Point) {
	t.Helper()
	if err := s.TouchEvent([]geometry.Point{p}); err != nil {
		t.Fatalf("TouchEvent(%v) error = %v", p, err)
	}
}

func TestNewTargets(t *testing.T) {
	got := NewTargets(image.Pt(1280, 720), 30)
	want := Targets{
		geometry.Screen(30, 30),
		geometry.Screen(1250, 30),
		geometry.Screen(30, 690),
		geometry.Screen(1250, 690),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewTargets() mismatch (-want +got):\n%s", diff)
	}

	if got.Name(0) != "top-left" || got.Name(3) != "bottom-right" || got.Name(4) != "none" {
		t.Errorf("unexpected target names: %q %q %q", got.Name(0), got.Name(3), got.Name(4))
	}
}

func TestConfigFrom(t *testing.T) {
	settings := config.Default()
	if err := settings.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg := ConfigFrom(settings)
	if cfg.Debounce != 81 {
		t.Errorf("Debounce = %g, want 81", cfg.Debounce)
	}
	if cfg.Targets[3] != geometry.Screen(1250, 690) {
		t.Errorf("bottom-right target = %v", cfg.Targets[3])
	}
	if cfg.Style != DefaultStyle() {
		t.Errorf("Style = %+v, want %+v", cfg.Style, DefaultStyle())
	}
}

func TestSession_StartsCalibrating(t *testing.T) {
	s := NewSession(testConfig(), zaptest.NewLogger(t).Sugar())

	if s.State() != StateCalibrating {
		t.Errorf("State() = %v, want calibrating", s.State())
	}
	if _, ok := s.Homography(); ok {
		t.Error("Homography() should not exist while calibrating")
	}
	if _, ok := s.Mode().(*Calibrating); !ok {
		t.Errorf("Mode() = %T, want *Calibrating", s.Mode())
	}
}

func TestSession_CalibrationTransitionsToDrawing(t *testing.T) {
	cfg := testConfig()
	s := NewSession(cfg, zaptest.NewLogger(t).Sugar())

	var transitions []Calibration
	s.OnTransition(func(c Calibration) { transitions = append(transitions, c) })

	for i, p := range cornerTouches {
		if s.State() != StateCalibrating {
			t.Fatalf("left calibration after %d touches", i)
		}
		touch(t, s, p)
	}

	if s.State() != StateDrawing {
		t.Fatalf("State() = %v, want drawing", s.State())
	}
	if len(transitions) != 1 {
		t.Fatalf("transition listener ran %d times, want 1", len(transitions))
	}

	h, ok := s.Homography()
	if !ok {
		t.Fatal("Homography() missing after calibration")
	}
	if transitions[0].Homography != h {
		t.Error("listener received a different homography than the session holds")
	}

	approx := cmpopts.EquateApprox(0, 1e-6)
	for i, p := range cornerTouches {
		got := h.Apply(p)
		want := cfg.Targets[i]
		if !cmp.Equal(want.X, got.X, approx) || !cmp.Equal(want.Y, got.Y, approx) {
			t.Errorf("anchor %s: H(%v) = (%g, %g), want (%g, %g)", cfg.Targets.Name(i), p, got.X, got.Y, want.X, want.Y)
		}
		if got.Space != geometry.ScreenSpace {
			t.Errorf("anchor %d mapped into %v space", i, got.Space)
		}
	}

	// Further touches go to the drawing buffer, not calibration
	touch(t, s, geometry.Camera(300, 200))
	if st := s.Status(); st.Pending != 1 || st.Collected != 4 {
		t.Errorf("Status() = %+v, want 1 pending and 4 collected", st)
	}
}

func TestCalibrating_Debounce(t *testing.T) {
	s := NewSession(testConfig(), zaptest.NewLogger(t).Sugar())
	cal := s.Mode().(*Calibrating)

	touch(t, s, geometry.Camera(60, 50))
	before, _ := cal.Target()

	tests := []struct {
		name string
		p    geometry.Point
	}{
		{name: "same spot", p: geometry.Camera(60, 50)},
		{name: "drifted finger", p: geometry.Camera(100, 80)},
		{name: "exactly debounce distance", p: geometry.Camera(60+81, 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			touch(t, s, tt.p)

			if got := cal.Collected(); got != 1 {
				t.Errorf("Collected() = %d, want 1", got)
			}
			after, _ := cal.Target()
			if after != before {
				t.Errorf("Target() = %v, want unchanged %v", after, before)
			}
		})
	}

	touch(t, s, geometry.Camera(60+82, 50))
	if got := cal.Collected(); got != 2 {
		t.Errorf("Collected() after separated touch = %d, want 2", got)
	}
}

func TestCalibrating_OnlyFirstPointCounts(t *testing.T) {
	s := NewSession(testConfig(), zaptest.NewLogger(t).Sugar())
	cal := s.Mode().(*Calibrating)

	if err := s.TouchEvent(nil); err != nil {
		t.Fatalf("TouchEvent(nil) error = %v", err)
	}
	if cal.Collected() != 0 {
		t.Errorf("empty observation was collected")
	}

	if err := s.TouchEvent(cornerTouches); err != nil {
		t.Fatalf("TouchEvent() error = %v", err)
	}
	if got := cal.Collected(); got != 1 {
		t.Errorf("Collected() = %d, want 1", got)
	}
	if got, _ := cal.Target(); got != s.Targets()[1] {
		t.Errorf("Target() = %v, want top-right anchor", got)
	}
}

func TestCalibrating_RejectedFitRestarts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCondition = 1e-3
	s := NewSession(cfg, zaptest.NewLogger(t).Sugar())

	var transitions int
	s.OnTransition(func(Calibration) { transitions++ })

	for _, p := range cornerTouches {
		touch(t, s, p)
	}

	if s.State() != StateCalibrating {
		t.Fatalf("State() = %v, want calibrating after rejection", s.State())
	}
	cal := s.Mode().(*Calibrating)
	if got := cal.Collected(); got != 0 {
		t.Errorf("Collected() = %d, want 0 after rejection", got)
	}
	if transitions != 0 {
		t.Errorf("transition listener ran %d times", transitions)
	}

	// The finger still resting on the last anchor does not restart collection
	touch(t, s, cornerTouches[3])
	if got := cal.Collected(); got != 0 {
		t.Errorf("lingering touch collected, Collected() = %d", got)
	}
	touch(t, s, cornerTouches[0])
	if got := cal.Collected(); got != 1 {
		t.Errorf("Collected() = %d, want 1", got)
	}
}

func TestCalibrating_DegenerateTouchesFail(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = -1
	s := NewSession(cfg, zaptest.NewLogger(t).Sugar())

	p := geometry.Camera(320, 240)
	var err error
	for i := 0; i < 4; i++ {
		err = s.TouchEvent([]geometry.Point{p})
	}

	if !errors.Is(err, geometry.ErrDegenerate) {
		t.Errorf("TouchEvent() error = %v, want ErrDegenerate", err)
	}
	if s.State() != StateCalibrating {
		t.Errorf("State() = %v, want calibrating", s.State())
	}
}

func TestDrawing_DrainsExactlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := NewDrawingSession(testConfig(), geometry.Identity(), zaptest.NewLogger(t).Sugar())

	var drawn [][]geometry.Point
	s.OnDraw(func(pts []geometry.Point) { drawn = append(drawn, pts) })

	canvas := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	touch(t, s, geometry.Camera(10, 10))
	touch(t, s, geometry.Camera(20, 20))
	s.Render(&canvas)

	touch(t, s, geometry.Camera(30, 30))
	s.Render(&canvas)
	s.Render(&canvas)

	want := [][]geometry.Point{
		{geometry.Screen(10, 10), geometry.Screen(20, 20)},
		{geometry.Screen(30, 30)},
	}
	if diff := cmp.Diff(want, drawn); diff != "" {
		t.Errorf("drawn points mismatch (-want +got):\n%s", diff)
	}
	if got := s.Status().Pending; got != 0 {
		t.Errorf("Pending = %d after render, want 0", got)
	}
}

func TestDrawing_RenderPaintsMarkers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	h, err := geometry.NewHomography([]float64{2, 0, 0, 0, 2, 0, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	s := NewDrawingSession(testConfig(), h, zaptest.NewLogger(t).Sugar())

	canvas := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	touch(t, s, geometry.Camera(100, 50))
	s.Render(&canvas)

	// Blue marker at (200, 100), white elsewhere (BGR layout)
	if b, g, r := pixel(canvas, 200, 100); b != 255 || g != 0 || r != 0 {
		t.Errorf("marker pixel = (%d,%d,%d), want blue", b, g, r)
	}
	if b, g, r := pixel(canvas, 600, 600); b != 255 || g != 255 || r != 255 {
		t.Errorf("background pixel = (%d,%d,%d), want white", b, g, r)
	}

	// The next pass keeps earlier strokes
	s.Render(&canvas)
	if b, _, _ := pixel(canvas, 200, 100); b != 255 {
		t.Error("stroke was cleared by an empty render")
	}
}

func TestCalibrating_RenderShowsOneTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := NewSession(testConfig(), zaptest.NewLogger(t).Sugar())
	targets := s.Targets()

	canvas := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	isRed := func(p geometry.Point) bool {
		b, g, r := pixel(canvas, int(p.X), int(p.Y))
		return b == 0 && g == 0 && r == 255
	}

	s.Render(&canvas)
	if !isRed(targets[0]) || isRed(targets[1]) {
		t.Error("first render should mark only the top-left anchor")
	}

	touch(t, s, cornerTouches[0])
	s.Render(&canvas)
	if isRed(targets[0]) || !isRed(targets[1]) {
		t.Error("after one touch only the top-right anchor should be marked")
	}

	// A debounced touch leaves the marker where it was
	touch(t, s, geometry.Camera(cornerTouches[0].X+5, cornerTouches[0].Y))
	s.Render(&canvas)
	if !isRed(targets[1]) || isRed(targets[2]) {
		t.Error("debounced touch moved the marker")
	}
}

func TestPending(t *testing.T) {
	var p Pending
	p.Append()
	p.Append(geometry.Camera(1, 2), geometry.Camera(3, 4))
	p.Append(geometry.Camera(5, 6))

	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
	if got := p.Drain(); len(got) != 3 {
		t.Errorf("Drain() returned %d points, want 3", len(got))
	}
	if got := p.Drain(); len(got) != 0 {
		t.Errorf("second Drain() returned %d points, want 0", len(got))
	}
}

func TestPending_ConcurrentAppendDrain(t *testing.T) {
	const writers, perWriter = 8, 500

	var p Pending
	seen := make(map[geometry.Point]int, writers*perWriter)
	collect := func() {
		for _, pt := range p.Drain() {
			seen[pt]++
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				p.Append(geometry.Camera(float64(w), float64(i)))
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for draining := true; draining; {
		select {
		case <-done:
			draining = false
		default:
			collect()
		}
	}
	collect()

	if len(seen) != writers*perWriter {
		t.Errorf("drained %d distinct points, want %d", len(seen), writers*perWriter)
	}
	for pt, n := range seen {
		if n != 1 {
			t.Errorf("point %v drained %d times, want 1", pt, n)
		}
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d after the final Drain, want 0", p.Len())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateCalibrating, "calibrating"},
		{StateDrawing, "drawing"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func pixel(m gocv.Mat, x, y int) (b, g, r uint8) {
	return m.GetUCharAt(y, x*3), m.GetUCharAt(y, x*3+1), m.GetUCharAt(y, x*3+2)
}
