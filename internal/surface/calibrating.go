package surface

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Calibrating collects one touch per anchor, in anchor order, then estimates
// the camera-to-screen homography and installs Drawing on the session.
type Calibrating struct {
	session *Session

	mu      sync.Mutex
	touches []geometry.Point
	// last survives a rejected calibration so a finger still resting on the
	// final anchor is not taken as the first touch of the retry.
	last    geometry.Point
	hasLast bool
}

func newCalibrating(s *Session) *Calibrating {
	return &Calibrating{session: s}
}

func (c *Calibrating) sealed() {}

// State returns StateCalibrating.
func (c *Calibrating) State() State {
	return StateCalibrating
}

// Collected returns how many anchors have a touch.
func (c *Calibrating) Collected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.touches)
}

// Target returns the anchor currently awaiting a touch. ok is false once all
// four are collected.
func (c *Calibrating) Target() (geometry.Point, bool) {
	c.mu.Lock()
	n := len(c.touches)
	c.mu.Unlock()

	targets := c.session.config.Targets
	if n >= len(targets) {
		return geometry.Point{}, false
	}
	return targets[n], true
}

// AcceptTouch considers only the first point. It is recorded when it lies
// farther than the debounce distance from the previously recorded touch.
// The fourth recorded touch triggers calibration.
func (c *Calibrating) AcceptTouch(points []geometry.Point) error {
	if len(points) == 0 {
		return nil
	}
	p := points[0]
	targets := c.session.config.Targets
	logger := c.session.logger

	c.mu.Lock()
	if len(c.touches) >= len(targets) {
		c.mu.Unlock()
		return nil
	}
	if c.hasLast && p.Distance(c.last) <= c.session.config.Debounce {
		c.mu.Unlock()
		return nil
	}
	c.touches = append(c.touches, p)
	c.last, c.hasLast = p, true
	n := len(c.touches)
	observed := append([]geometry.Point(nil), c.touches...)
	c.mu.Unlock()

	logger.Infow("calibration touch", "target", targets.Name(n-1), "x", p.X, "y", p.Y, "collected", n)
	if n < len(targets) {
		return nil
	}
	return c.calibrate(observed)
}

func (c *Calibrating) calibrate(observed []geometry.Point) error {
	cfg := c.session.config
	logger := c.session.logger

	h, fit, err := geometry.EstimateHomography(observed, cfg.Targets.Points())
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	if reason := reject(cfg, fit); reason != "" {
		logger.Warnw("calibration rejected, collecting again", "reason", reason, "residual", fit.Residual, "condition", fit.Condition)
		c.mu.Lock()
		c.touches = nil
		c.mu.Unlock()
		return nil
	}

	logger.Infow("calibrated", "residual", fit.Residual, "condition", fit.Condition)
	c.session.install(Calibration{
		Targets:    cfg.Targets,
		Observed:   observed,
		Homography: h,
		Fit:        fit,
	})
	return nil
}

func reject(cfg Config, fit geometry.Fit) string {
	if cfg.MaxResidual > 0 && fit.Residual > cfg.MaxResidual {
		return fmt.Sprintf("residual %.3f exceeds %.3f", fit.Residual, cfg.MaxResidual)
	}
	if cfg.MaxCondition > 0 && fit.Condition > cfg.MaxCondition {
		return fmt.Sprintf("condition %.3g exceeds %.3g", fit.Condition, cfg.MaxCondition)
	}
	return ""
}

// DrawToImage clears the canvas and marks the anchor awaiting a touch.
func (c *Calibrating) DrawToImage(img *gocv.Mat) {
	style := c.session.config.Style
	img.SetTo(scalar(style.Background))

	target, ok := c.Target()
	if !ok {
		return
	}
	gocv.Circle(img, target.Image(), style.Radius, style.Target, -1)
}
