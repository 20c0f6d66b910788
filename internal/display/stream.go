package display

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is used when a Stream is created with a non-positive quality.
const DefaultJPEGQuality = 80

// Stream keeps the most recent canvas as a JPEG for HTTP clients.
type Stream struct {
	quality int

	mu     sync.RWMutex
	latest []byte
	seq    uint64
}

// NewStream creates a Stream encoding at the given JPEG quality (1-100).
func NewStream(quality int) *Stream {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Stream{quality: quality}
}

// Show encodes img and replaces the latest frame.
func (s *Stream) Show(img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("stream: empty canvas")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), s.quality})
	if err != nil {
		return fmt.Errorf("stream: encode: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	s.mu.Lock()
	s.latest = data
	s.seq++
	s.mu.Unlock()
	return nil
}

// Latest returns the newest JPEG and its sequence number. seq is 0 before the
// first frame.
func (s *Stream) Latest() (jpeg []byte, seq uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.seq
}

// Close drops the buffered frame.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
	return nil
}
