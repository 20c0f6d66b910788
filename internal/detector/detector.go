// Package detector finds touch candidates in background-difference frames.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/config"
	"github.com/ayusman/touchtable/internal/geometry"
)

// Detector defines the interface for touch detection implementations.
type Detector interface {
	// Detect analyzes a grayscale difference frame and returns camera-space
	// touch centroids. Returns an empty slice if nothing plausible is found.
	Detect(diff gocv.Mat) ([]geometry.Point, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for blob detection.
type Config struct {
	// Threshold is the foreground cutoff on a normalized 0..1 intensity scale.
	Threshold float64

	// SmallestArea and BiggestArea bound a touch blob's pixel count,
	// exclusive on both ends.
	SmallestArea int
	BiggestArea  int
}

// DefaultConfig returns a Config sized for frames of the given resolution:
// a 0.25 threshold and the configuration's default area range.
func DefaultConfig(width, height int) Config {
	return Config{
		Threshold:    0.25,
		SmallestArea: config.SmallestArea(width, height),
		BiggestArea:  config.BiggestArea(width, height),
	}
}

// Accepts reports whether a blob of the given pixel count is a plausible touch.
func (c Config) Accepts(area int) bool {
	return area > c.SmallestArea && area < c.BiggestArea
}
