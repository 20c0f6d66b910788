// Package surface holds the touch table's mode state machine. A Session starts
// in Calibrating, collects four touches against known screen anchors, and
// swaps itself to Drawing once a camera-to-screen homography is known.
package surface

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/config"
	"github.com/ayusman/touchtable/internal/geometry"
)

// State names the active mode.
type State int

const (
	StateCalibrating State = iota
	StateDrawing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibrating"
	case StateDrawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode is implemented by *Calibrating and *Drawing only.
type Mode interface {
	// AcceptTouch handles the camera-space touches found in one frame.
	AcceptTouch(points []geometry.Point) error
	// DrawToImage paints the mode's output onto the canvas.
	DrawToImage(img *gocv.Mat)
	// State reports which mode this is.
	State() State

	sealed()
}

// Style holds marker appearance.
type Style struct {
	Radius     int
	Target     color.RGBA
	Draw       color.RGBA
	Background color.RGBA
}

// DefaultStyle is a red target and blue ink on white, radius 10.
func DefaultStyle() Style {
	return Style{
		Radius:     10,
		Target:     color.RGBA{R: 255, A: 255},
		Draw:       color.RGBA{B: 255, A: 255},
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Config configures a Session.
type Config struct {
	Targets Targets
	// Debounce is the minimum camera-space distance between two
	// consecutive calibration touches.
	Debounce float64
	// MaxResidual rejects a calibration whose RMS reprojection error in
	// screen pixels exceeds it. Zero disables the check.
	MaxResidual float64
	// MaxCondition rejects a calibration whose design matrix condition
	// number exceeds it. Zero disables the check.
	MaxCondition float64
	Style        Style
}

// ConfigFrom builds a session Config from validated settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Targets:      NewTargets(image.Pt(c.Render.DisplayWidth, c.Render.DisplayHeight), c.Calibration.Margin),
		Debounce:     c.Calibration.DebounceDistance,
		MaxResidual:  c.Calibration.MaxResidual,
		MaxCondition: c.Calibration.MaxCondition,
		Style: Style{
			Radius:     c.Render.MarkerRadius,
			Target:     config.MustColor(c.Render.TargetColor),
			Draw:       config.MustColor(c.Render.DrawColor),
			Background: config.MustColor(c.Render.BackgroundColor),
		},
	}
}

// Calibration is the outcome of a successful calibration.
type Calibration struct {
	Targets    Targets             `json:"targets"`
	Observed   []geometry.Point    `json:"observed"`
	Homography geometry.Homography `json:"homography"`
	Fit        geometry.Fit        `json:"fit"`
}

// Status is a snapshot of the session for status displays.
type Status struct {
	State     State `json:"state"`
	Collected int   `json:"collected"`
	Targets   int   `json:"targets"`
	Pending   int   `json:"pending"`
}

// installed pairs the live mode with its homography so both are swapped together.
type installed struct {
	mode       Mode
	homography geometry.Homography
	calibrated bool
}

// Session owns the active mode and the homography.
type Session struct {
	config Config
	logger *zap.SugaredLogger

	current atomic.Pointer[installed]

	mu           sync.RWMutex
	onTransition []func(Calibration)
	onDraw       []func([]geometry.Point)
}

// NewSession creates a session in Calibrating mode.
func NewSession(cfg Config, logger *zap.SugaredLogger) *Session {
	s := newSession(cfg, logger)
	s.current.Store(&installed{mode: newCalibrating(s)})
	return s
}

// NewDrawingSession creates a session that starts in Drawing with a preset
// homography, skipping calibration.
func NewDrawingSession(cfg Config, h geometry.Homography, logger *zap.SugaredLogger) *Session {
	s := newSession(cfg, logger)
	s.current.Store(&installed{mode: newDrawing(s, h), homography: h, calibrated: true})
	return s
}

func newSession(cfg Config, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Style.Radius <= 0 {
		cfg.Style = DefaultStyle()
	}
	return &Session{config: cfg, logger: logger}
}

// TouchEvent forwards camera-space touches to the active mode. An error means
// calibration could not produce a transform.
func (s *Session) TouchEvent(points []geometry.Point) error {
	return s.Mode().AcceptTouch(points)
}

// Render asks the active mode to paint onto img.
func (s *Session) Render(img *gocv.Mat) {
	s.Mode().DrawToImage(img)
}

// Mode returns the installed mode.
func (s *Session) Mode() Mode {
	return s.current.Load().mode
}

// State returns the installed mode's state.
func (s *Session) State() State {
	return s.Mode().State()
}

// Homography returns the camera-to-screen transform. ok is false until the
// session is drawing.
func (s *Session) Homography() (h geometry.Homography, ok bool) {
	cur := s.current.Load()
	return cur.homography, cur.calibrated
}

// Targets returns the calibration anchors.
func (s *Session) Targets() Targets {
	return s.config.Targets
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := Status{Targets: len(s.config.Targets)}
	switch m := s.Mode().(type) {
	case *Calibrating:
		st.State = StateCalibrating
		st.Collected = m.Collected()
	case *Drawing:
		st.State = StateDrawing
		st.Collected = len(s.config.Targets)
		st.Pending = m.Pending()
	}
	return st
}

// OnTransition registers fn to run after calibration installs Drawing.
func (s *Session) OnTransition(fn func(Calibration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = append(s.onTransition, fn)
}

// OnDraw registers fn to receive the screen-space points painted by each
// render pass. fn runs on the render goroutine and must not block.
func (s *Session) OnDraw(fn func([]geometry.Point)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDraw = append(s.onDraw, fn)
}

// install swaps in the Drawing mode and its homography in one store.
func (s *Session) install(cal Calibration) {
	s.current.Store(&installed{
		mode:       newDrawing(s, cal.Homography),
		homography: cal.Homography,
		calibrated: true,
	})

	s.mu.RLock()
	listeners := append([]func(Calibration){}, s.onTransition...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(cal)
	}
}

func (s *Session) drawn(points []geometry.Point) {
	s.mu.RLock()
	listeners := append([]func([]geometry.Point){}, s.onDraw...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(points)
	}
}

// scalar converts an RGBA color to a BGR scalar for Mat fills.
func scalar(c color.RGBA) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
