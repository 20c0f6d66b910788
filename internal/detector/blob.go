package detector

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Blob is a 4-connected foreground region.
type Blob struct {
	Area     int
	Centroid geometry.Point
}

// BlobDetector thresholds a difference frame, labels 4-connected components
// and keeps the ones whose area is plausible for a fingertip.
type BlobDetector struct {
	config Config

	mu        sync.Mutex
	gray      gocv.Mat
	mask      gocv.Mat
	labels    gocv.Mat
	stats     gocv.Mat
	centroids gocv.Mat
}

// NewBlobDetector creates a BlobDetector with the given configuration.
func NewBlobDetector(config Config) *BlobDetector {
	return &BlobDetector{
		config:    config,
		gray:      gocv.NewMat(),
		mask:      gocv.NewMat(),
		labels:    gocv.NewMat(),
		stats:     gocv.NewMat(),
		centroids: gocv.NewMat(),
	}
}

// Config returns the detector configuration.
func (d *BlobDetector) Config() Config {
	return d.config
}

// Blobs returns every foreground component of diff, unfiltered, in label order.
//
// Algorithm:
// 1. Flatten to one channel if needed
// 2. Binary threshold at Threshold*255
// 3. Label 4-connected components with stats
// 4. Read area and centroid for each label except the background (0)
func (d *BlobDetector) Blobs(diff gocv.Mat) ([]Blob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if diff.Empty() {
		return nil, fmt.Errorf("detect: empty difference frame")
	}

	src := diff
	if diff.Channels() > 1 {
		gocv.CvtColor(diff, &d.gray, gocv.ColorBGRToGray)
		src = d.gray
	}

	cutoff := float32(d.config.Threshold * 255)
	gocv.Threshold(src, &d.mask, cutoff, 255, gocv.ThresholdBinary)

	n := gocv.ConnectedComponentsWithStatsWithParams(
		d.mask, &d.labels, &d.stats, &d.centroids,
		4, gocv.MatTypeCV32S, gocv.CCL_DEFAULT,
	)

	blobs := make([]Blob, 0, max(n-1, 0))
	for label := 1; label < n; label++ {
		area := int(d.stats.GetIntAt(label, int(gocv.CC_STAT_AREA)))
		cx := d.centroids.GetDoubleAt(label, 0)
		cy := d.centroids.GetDoubleAt(label, 1)
		blobs = append(blobs, Blob{Area: area, Centroid: geometry.Camera(cx, cy)})
	}

	return blobs, nil
}

// Detect returns the centroids of blobs whose area lies strictly between
// SmallestArea and BiggestArea. An empty result is not an error.
func (d *BlobDetector) Detect(diff gocv.Mat) ([]geometry.Point, error) {
	blobs, err := d.Blobs(diff)
	if err != nil {
		return nil, err
	}

	points := make([]geometry.Point, 0, len(blobs))
	for _, b := range blobs {
		if !d.config.Accepts(b.Area) {
			continue
		}
		points = append(points, b.Centroid)
	}

	return points, nil
}

// Mask copies the most recent foreground mask into dst.
func (d *BlobDetector) Mask(dst *gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mask.CopyTo(dst)
}

// Close releases resources used by the detector.
func (d *BlobDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gray.Close()
	d.mask.Close()
	d.labels.Close()
	d.stats.Close()
	d.centroids.Close()
	return nil
}
