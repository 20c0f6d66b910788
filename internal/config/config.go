// Package config holds runtime configuration for the touch table.
// Values are loaded from a JSON file when present and fall back to defaults
// derived from the camera resolution otherwise.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalid is returned by Validate for settings that cannot be repaired.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Camera      Camera      `json:"camera"`
	Background  Background  `json:"background"`
	Detection   Detection   `json:"detection"`
	Calibration Calibration `json:"calibration"`
	Render      Render      `json:"render"`
	Server      Server      `json:"server"`
	Store       Store       `json:"store"`
	Tray        Tray        `json:"tray"`
	Log         Log         `json:"log"`
}

// Camera selects the capture device and the fixed frame size.
type Camera struct {
	DeviceID int `json:"device_id"`
	Width    int `json:"width"`
	Height   int `json:"height"`
	FPS      int `json:"fps"`
}

// Background controls when the learned background is considered ready.
// Readiness is reached after MinFrames frames once the running mean moves by
// less than ConvergenceEpsilon (0..1 scale) between frames, or unconditionally
// at MaxFrames. An epsilon of 0 makes readiness a pure frame count.
type Background struct {
	MinFrames          int     `json:"min_frames"`
	MaxFrames          int     `json:"max_frames"`
	ConvergenceEpsilon float64 `json:"convergence_epsilon"`
}

// Detection holds the foreground threshold and the plausible touch area range.
// Zero areas are derived from the camera resolution.
type Detection struct {
	Threshold    float64 `json:"threshold"`
	SmallestArea int     `json:"smallest_area"`
	BiggestArea  int     `json:"biggest_area"`
}

// Calibration controls target placement, touch debouncing and the fit
// acceptance thresholds. Zero thresholds disable the corresponding check.
type Calibration struct {
	Margin           float64 `json:"margin"`
	DebounceDistance float64 `json:"debounce_distance"`
	MaxResidual      float64 `json:"max_residual"`
	MaxCondition     float64 `json:"max_condition"`
}

// Render configures the canvas.
type Render struct {
	FPS             int    `json:"fps"`
	MarkerRadius    int    `json:"marker_radius"`
	TargetColor     string `json:"target_color"`
	DrawColor       string `json:"draw_color"`
	BackgroundColor string `json:"background_color"`
	// Canvas size used when no secondary display is attached.
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`
	JPEGQuality   int `json:"jpeg_quality"`
}

// Server configures the HTTP status and streaming server.
type Server struct {
	Addr string `json:"addr"`
}

// Store configures the session journal.
type Store struct {
	Path string `json:"path"`
}

// Tray toggles the system tray icon.
type Tray struct {
	Enabled bool `json:"enabled"`
}

// Log configures the logger.
type Log struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Camera resolution defaults.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Camera: Camera{
			DeviceID: 0,
			Width:    DefaultWidth,
			Height:   DefaultHeight,
			FPS:      30,
		},
		Background: Background{
			MinFrames: 50,
			MaxFrames: 200,
		},
		Detection: Detection{
			Threshold: 0.25,
		},
		Calibration: Calibration{
			Margin: 30,
		},
		Render: Render{
			FPS:             30,
			MarkerRadius:    10,
			TargetColor:     "#ff0000",
			DrawColor:       "#0000ff",
			BackgroundColor: "#ffffff",
			DisplayWidth:    1280,
			DisplayHeight:   720,
			JPEGQuality:     80,
		},
		Server: Server{
			Addr: "127.0.0.1:8090",
		},
		Store: Store{
			Path: filepath.Join(Dir(), "touchtable.db"),
		},
		Tray: Tray{
			Enabled: true,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Dir returns the per-user data directory, ~/.touchtable.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".touchtable"
	}
	return filepath.Join(home, ".touchtable")
}

// DefaultPath returns the location of the configuration file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Validate clamps values to safe ranges. It returns ErrInvalid for settings
// that have no sensible repair, such as an unparsable color.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("%w: camera resolution %dx%d", ErrInvalid, c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = 30
	}

	if c.Background.MinFrames <= 0 {
		c.Background.MinFrames = 1
	}
	if c.Background.MaxFrames < c.Background.MinFrames {
		c.Background.MaxFrames = c.Background.MinFrames
	}
	if c.Background.ConvergenceEpsilon < 0 {
		c.Background.ConvergenceEpsilon = 0
	}

	if c.Detection.Threshold <= 0 || c.Detection.Threshold >= 1 {
		c.Detection.Threshold = 0.25
	}
	if c.Detection.SmallestArea <= 0 {
		c.Detection.SmallestArea = SmallestArea(c.Camera.Width, c.Camera.Height)
	}
	if c.Detection.BiggestArea <= c.Detection.SmallestArea {
		c.Detection.BiggestArea = max(BiggestArea(c.Camera.Width, c.Camera.Height), c.Detection.SmallestArea+2)
	}

	if c.Calibration.Margin < 0 {
		c.Calibration.Margin = 30
	}
	if c.Calibration.DebounceDistance <= 0 {
		c.Calibration.DebounceDistance = DebounceDistance(c.Detection.SmallestArea)
	}
	if c.Calibration.MaxResidual < 0 {
		c.Calibration.MaxResidual = 0
	}
	if c.Calibration.MaxCondition < 0 {
		c.Calibration.MaxCondition = 0
	}

	if c.Render.FPS <= 0 {
		c.Render.FPS = 30
	}
	if c.Render.MarkerRadius <= 0 {
		c.Render.MarkerRadius = 10
	}
	if c.Render.DisplayWidth <= 0 || c.Render.DisplayHeight <= 0 {
		c.Render.DisplayWidth, c.Render.DisplayHeight = 1280, 720
	}
	if c.Render.JPEGQuality <= 0 || c.Render.JPEGQuality > 100 {
		c.Render.JPEGQuality = 80
	}
	for _, hex := range []string{c.Render.TargetColor, c.Render.DrawColor, c.Render.BackgroundColor} {
		if _, err := ParseColor(hex); err != nil {
			return err
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

// SmallestArea is the default lower bound on a touch blob's pixel count,
// 1/1200 of the frame.
func SmallestArea(width, height int) int {
	return max(1, (width*height)/(60*20))
}

// BiggestArea is the default upper bound on a touch blob's pixel count,
// 1/300 of the frame.
func BiggestArea(width, height int) int {
	return max(1, (width*height)/(30*10))
}

// DebounceDistance derives the minimum separation between two calibration
// touches from the smallest touch area.
func DebounceDistance(smallestArea int) float64 {
	return float64(int(float64(smallestArea) / math.Pi))
}

// ParseColor parses a hex color such as "#0000ff".
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q: %v", ErrInvalid, hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// MustColor parses a color that has already passed Validate.
func MustColor(hex string) color.RGBA {
	c, err := ParseColor(hex)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return c
}

// Load reads configuration from the given JSON file path. A missing file
// yields the defaults. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
