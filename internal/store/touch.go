package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Touch is one drawn screen-space point.
type Touch struct {
	ID        int64
	SessionID string
	X         float64
	Y         float64
	DrawnAt   time.Time
}

// TouchRepository provides access to drawn touches.
type TouchRepository struct {
	db *sql.DB
}

// Touches returns the touch repository for this store.
func (s *Store) Touches() *TouchRepository {
	return &TouchRepository{db: s.db}
}

// Append records a batch of points drawn in one render pass.
func (r *TouchRepository) Append(sessionID string, at time.Time, points []geometry.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO touches (session_id, x, y, drawn_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(sessionID, p.X, p.Y, at); err != nil {
			return fmt.Errorf("insert touch: %w", err)
		}
	}

	return tx.Commit()
}

// ListBySession returns up to limit touches of a session in drawing order.
// A non-positive limit returns all of them.
func (r *TouchRepository) ListBySession(sessionID string, limit int) ([]Touch, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, x, y, drawn_at FROM touches
		 WHERE session_id = ? ORDER BY id LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var touches []Touch
	for rows.Next() {
		var t Touch
		if err := rows.Scan(&t.ID, &t.SessionID, &t.X, &t.Y, &t.DrawnAt); err != nil {
			return nil, err
		}
		touches = append(touches, t)
	}
	return touches, rows.Err()
}

// CountBySession returns how many touches a session drew.
func (r *TouchRepository) CountBySession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM touches WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// Points converts touches back to screen-space points.
func Points(touches []Touch) []geometry.Point {
	return lo.Map(touches, func(t Touch, _ int) geometry.Point {
		return geometry.Screen(t.X, t.Y)
	})
}
