package app

import (
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ayusman/touchtable/internal/geometry"
	"github.com/ayusman/touchtable/internal/store"
	"github.com/ayusman/touchtable/internal/surface"
)

// journalQueueSize bounds how many render passes can wait for the database.
const journalQueueSize = 256

// journal records the run in the store. Drawn touches arrive on the render
// goroutine and are written by run so rendering never waits on SQLite.
type journal struct {
	store  *store.Store
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu      sync.Mutex
	id      string
	queue   chan []geometry.Point
	closing sync.Once
	dropped int
}

func newJournal(s *store.Store, clk clock.Clock, logger *zap.SugaredLogger) *journal {
	return &journal{
		store:  s,
		clock:  clk,
		logger: logger,
		queue:  make(chan []geometry.Point, journalQueueSize),
	}
}

func (j *journal) begin(cameraSize, displaySize image.Point) error {
	sess := &store.Session{
		CameraWidth:   cameraSize.X,
		CameraHeight:  cameraSize.Y,
		DisplayWidth:  displaySize.X,
		DisplayHeight: displaySize.Y,
		StartedAt:     j.clock.Now(),
	}
	if err := j.store.Sessions().Create(sess); err != nil {
		return err
	}

	j.mu.Lock()
	j.id = sess.ID
	j.mu.Unlock()

	j.logger.Infow("session started", "id", sess.ID)
	return nil
}

func (j *journal) sessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// calibrated runs on the capture goroutine right after Drawing is installed.
func (j *journal) calibrated(c surface.Calibration) {
	rec := &store.Calibration{
		SessionID:  j.sessionID(),
		Targets:    c.Targets.Points(),
		Observed:   c.Observed,
		Homography: c.Homography.Values(),
		Residual:   c.Fit.Residual,
		Condition:  c.Fit.Condition,
		CreatedAt:  j.clock.Now(),
	}
	if err := j.store.Calibrations().Create(rec); err != nil {
		j.logger.Warnw("recording calibration", "error", err)
	}
}

// drawn queues a render pass's points. When the writer falls behind the pass
// is dropped from the journal; the canvas is unaffected.
func (j *journal) drawn(points []geometry.Point) {
	select {
	case j.queue <- points:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

func (j *journal) run() {
	for points := range j.queue {
		if err := j.store.Touches().Append(j.sessionID(), j.clock.Now(), points); err != nil {
			j.logger.Warnw("recording touches", "error", err)
		}
	}
}

// close stops accepting points; run returns once the queue is drained.
func (j *journal) close() {
	j.closing.Do(func() {
		close(j.queue)
	})
}

func (j *journal) end() error {
	id := j.sessionID()
	if id == "" {
		return nil
	}

	j.mu.Lock()
	dropped := j.dropped
	j.mu.Unlock()
	if dropped > 0 {
		j.logger.Warnw("touch batches missing from journal", "dropped", dropped)
	}

	return j.store.Sessions().End(id, j.clock.Now())
}
