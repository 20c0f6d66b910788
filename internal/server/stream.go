package server

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource holds the newest JPEG of some image stream. seq increases with
// every new frame and is 0 before the first one.
type FrameSource interface {
	Latest() (jpeg []byte, seq uint64)
}

// DefaultPollInterval is how often a stream checks its source for a new frame.
const DefaultPollInterval = 33 * time.Millisecond

// StreamHandler serves frames from a FrameSource as MJPEG.
type StreamHandler struct {
	source   FrameSource
	interval time.Duration
	done     <-chan struct{}
}

// NewStreamHandler creates a new StreamHandler for source.
func NewStreamHandler(source FrameSource) *StreamHandler {
	return &StreamHandler{source: source, interval: DefaultPollInterval}
}

// ServeHTTP streams MJPEG frames until the client goes away or the server
// shuts down. A frame is only written when the source has a newer one.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var sent uint64
	for {
		if data, seq := h.source.Latest(); seq != sent && len(data) > 0 {
			if err := writePart(w, data); err != nil {
				return
			}
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
