// Package app wires the touch table together: a capture loop that learns the
// background and feeds detected touches to the surface session, and a render
// loop that paints the active mode and pushes it to the display.
package app

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/capture"
	"github.com/ayusman/touchtable/internal/config"
	"github.com/ayusman/touchtable/internal/detector"
	"github.com/ayusman/touchtable/internal/display"
	"github.com/ayusman/touchtable/internal/geometry"
	"github.com/ayusman/touchtable/internal/store"
	"github.com/ayusman/touchtable/internal/surface"
)

// ErrNoCamera is returned by New when no frame source is configured.
var ErrNoCamera = errors.New("no camera configured")

// Config holds the collaborators of an App. Only Settings and Camera are
// required.
type Config struct {
	Settings *config.Config
	Camera   capture.Camera

	// Detector defaults to a BlobDetector built from Settings.Detection.
	Detector detector.Detector
	// Session defaults to a new calibrating session.
	Session *surface.Session
	// Surface receives every rendered canvas.
	Surface display.Surface
	// Preview receives the foreground mask of every operating frame.
	Preview display.Surface
	// Store enables the session journal.
	Store *store.Store

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// App runs the capture and render loops.
type App struct {
	settings   *config.Config
	camera     capture.Camera
	background *capture.BackgroundModel
	detector   detector.Detector
	session    *surface.Session
	surface    display.Surface
	preview    display.Surface
	clock      clock.Clock
	logger     *zap.SugaredLogger
	journal    *journal

	// owned by the capture goroutine
	diff gocv.Mat
	mask gocv.Mat
	// owned by the render goroutine
	canvas gocv.Mat

	frames  atomic.Uint64
	touches atomic.Uint64

	mu        sync.Mutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	journalWG sync.WaitGroup
	done      chan struct{}
	errOnce   sync.Once
	err       error
	onTouch   []func([]geometry.Point)
	stopOnce  sync.Once
}

// New creates an App. Nothing runs until Start.
func New(cfg Config) (*App, error) {
	if cfg.Camera == nil {
		return nil, ErrNoCamera
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	det := cfg.Detector
	if det == nil {
		det = detector.NewBlobDetector(detector.Config{
			Threshold:    settings.Detection.Threshold,
			SmallestArea: settings.Detection.SmallestArea,
			BiggestArea:  settings.Detection.BiggestArea,
		})
	}

	session := cfg.Session
	if session == nil {
		session = surface.NewSession(surface.ConfigFrom(settings), logger.Named("surface"))
	}

	a := &App{
		settings: settings,
		camera:   cfg.Camera,
		background: capture.NewBackgroundModel(
			image.Pt(settings.Camera.Width, settings.Camera.Height),
			capture.Readiness{
				MinFrames:          settings.Background.MinFrames,
				MaxFrames:          settings.Background.MaxFrames,
				ConvergenceEpsilon: settings.Background.ConvergenceEpsilon,
			},
		),
		detector: det,
		session:  session,
		surface:  cfg.Surface,
		preview:  cfg.Preview,
		clock:    clk,
		logger:   logger,
		diff:     gocv.NewMat(),
		mask:     gocv.NewMat(),
		canvas: gocv.NewMatWithSize(
			settings.Render.DisplayHeight, settings.Render.DisplayWidth, gocv.MatTypeCV8UC3,
		),
		done: make(chan struct{}),
	}

	if cfg.Store != nil {
		a.journal = newJournal(cfg.Store, clk, logger.Named("journal"))
		session.OnTransition(a.journal.calibrated)
		session.OnDraw(a.journal.drawn)
	}

	return a, nil
}

// Start opens the camera and launches the capture and render loops.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if !a.camera.IsOpen() {
		if err := a.camera.Open(); err != nil {
			return err
		}
	}
	a.camera.SetFPS(a.settings.Camera.FPS)

	want := image.Pt(a.settings.Camera.Width, a.settings.Camera.Height)
	if got := a.camera.Size(); got != want {
		return fmt.Errorf("%w: camera delivers %dx%d, want %dx%d", capture.ErrFrameSize, got.X, got.Y, want.X, want.Y)
	}

	if a.journal != nil {
		if err := a.journal.begin(want, a.canvasSize()); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.journalWG.Add(1)
		go func() {
			defer a.journalWG.Done()
			a.journal.run()
		}()
	}

	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.runCapture(a.stopCh)
	}()
	go func() {
		defer a.wg.Done()
		a.runRender(a.stopCh)
	}()

	a.logger.Infow("touch table started",
		"camera", fmt.Sprintf("%dx%d", want.X, want.Y),
		"display", fmt.Sprintf("%dx%d", a.settings.Render.DisplayWidth, a.settings.Render.DisplayHeight),
	)
	return nil
}

// Stop halts both loops and releases every resource. It is safe to call more
// than once.
func (a *App) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.stopCh != nil {
			close(a.stopCh)
		}
		a.mu.Unlock()
		a.wg.Wait()
		if a.journal != nil {
			a.journal.close()
			a.journalWG.Wait()
		}

		err = multierr.Combine(
			a.camera.Close(),
			a.detector.Close(),
			closeSurface(a.surface),
			closeSurface(a.preview),
		)
		if a.journal != nil {
			err = multierr.Append(err, a.journal.end())
		}
		a.background.Close()
		a.diff.Close()
		a.mask.Close()
		a.canvas.Close()

		a.logger.Info("touch table stopped")
	})
	return err
}

func closeSurface(s display.Surface) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

// Done is closed when a fatal error stops the capture loop.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Err returns the fatal error that closed Done, if any.
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *App) fail(err error) {
	a.errOnce.Do(func() {
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		a.logger.Errorw("touch table halted", "error", err)
		close(a.done)
	})
}

// Session returns the surface session.
func (a *App) Session() *surface.Session {
	return a.session
}

// Background returns the background model.
func (a *App) Background() *capture.BackgroundModel {
	return a.background
}

// SessionID returns the journal session ID, or "" without a store.
func (a *App) SessionID() string {
	if a.journal == nil {
		return ""
	}
	return a.journal.sessionID()
}

// OnTouches registers fn to receive the camera-space touches of every frame
// that produced any. fn runs on the capture goroutine.
func (a *App) OnTouches(fn func([]geometry.Point)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTouch = append(a.onTouch, fn)
}

// Status is a snapshot for status pages and the tray.
type Status struct {
	surface.Status
	BackgroundReady  bool   `json:"background_ready"`
	BackgroundFrames int    `json:"background_frames"`
	Frames           uint64 `json:"frames"`
	Touches          uint64 `json:"touches"`
	SessionID        string `json:"session_id,omitempty"`
}

// Status returns the current state of the table.
func (a *App) Status() Status {
	return Status{
		Status:           a.session.Status(),
		BackgroundReady:  a.background.Ready(),
		BackgroundFrames: a.background.Frames(),
		Frames:           a.frames.Load(),
		Touches:          a.touches.Load(),
		SessionID:        a.SessionID(),
	}
}

func (a *App) canvasSize() image.Point {
	return image.Pt(a.settings.Render.DisplayWidth, a.settings.Render.DisplayHeight)
}
