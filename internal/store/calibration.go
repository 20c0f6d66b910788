package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Calibration is the accepted fit recorded for a session. Calibrations are
// never loaded back into a running table.
type Calibration struct {
	ID         int64
	SessionID  string
	Targets    []geometry.Point
	Observed   []geometry.Point
	Homography []float64
	Residual   float64
	Condition  float64
	CreatedAt  time.Time
}

// CalibrationRepository provides access to recorded calibrations.
type CalibrationRepository struct {
	db *sql.DB
}

// Calibrations returns the calibration repository for this store.
func (s *Store) Calibrations() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Create records a calibration.
func (r *CalibrationRepository) Create(c *Calibration) error {
	if len(c.Homography) != 9 {
		return fmt.Errorf("homography has %d values, want 9", len(c.Homography))
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	targets, err := json.Marshal(c.Targets)
	if err != nil {
		return err
	}
	observed, err := json.Marshal(c.Observed)
	if err != nil {
		return err
	}
	homography, err := json.Marshal(c.Homography)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`INSERT INTO calibrations (session_id, targets, observed, homography, residual, condition, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, string(targets), string(observed), string(homography), c.Residual, c.Condition, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	c.ID, err = result.LastInsertId()
	return err
}

// GetBySession returns the latest calibration of a session.
func (r *CalibrationRepository) GetBySession(sessionID string) (*Calibration, error) {
	c := &Calibration{}
	var targets, observed, homography string

	err := r.db.QueryRow(
		`SELECT id, session_id, targets, observed, homography, residual, condition, created_at
		 FROM calibrations WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	).Scan(&c.ID, &c.SessionID, &targets, &observed, &homography, &c.Residual, &c.Condition, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(targets), &c.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if err := json.Unmarshal([]byte(observed), &c.Observed); err != nil {
		return nil, fmt.Errorf("decode observed points: %w", err)
	}
	if err := json.Unmarshal([]byte(homography), &c.Homography); err != nil {
		return nil, fmt.Errorf("decode homography: %w", err)
	}
	for i := range c.Targets {
		c.Targets[i].Space = geometry.ScreenSpace
	}
	for i := range c.Observed {
		c.Observed[i].Space = geometry.CameraSpace
	}
	return c, nil
}
