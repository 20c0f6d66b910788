package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per process run
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			camera_width INTEGER NOT NULL,
			camera_height INTEGER NOT NULL,
			display_width INTEGER NOT NULL,
			display_height INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Calibrations table - the accepted four-point fit of a session
		`CREATE TABLE IF NOT EXISTS calibrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			targets TEXT NOT NULL,
			observed TEXT NOT NULL,
			homography TEXT NOT NULL,
			residual REAL NOT NULL,
			condition REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Touches table - screen-space points painted while drawing
		`CREATE TABLE IF NOT EXISTS touches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			x REAL NOT NULL,
			y REAL NOT NULL,
			drawn_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_calibrations_session_id ON calibrations(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_touches_session_id ON touches(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
