package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/geometry"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	points []geometry.Point
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoints sets the points that will be returned by Detect.
func (m *MockDetector) SetPoints(points []geometry.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = points
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured points or error.
func (m *MockDetector) Detect(diff gocv.Mat) ([]geometry.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]geometry.Point, len(m.points))
	copy(out, m.points)
	return out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// CornerTouches returns four camera-space touches roughly where the inset
// calibration targets of a 640x480 frame would be seen, in target order.
func CornerTouches() []geometry.Point {
	return []geometry.Point{
		geometry.Camera(60, 50),
		geometry.Camera(580, 45),
		geometry.Camera(55, 430),
		geometry.Camera(585, 440),
	}
}
