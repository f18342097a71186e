// Package store persists tracking runs to SQLite. Each replay of a
// detection stream becomes a run row; tracks are written as they are
// evicted from the engine plus a final sweep of whatever is still live
// at end of stream, and the count-line tallies land in a single row
// per run.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kerb-data/trafficlens/internal/counter"
	"github.com/kerb-data/trafficlens/internal/track"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	*sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp applies all pending embedded migrations.
// Returns nil if the schema is already current.
func (s *Store) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations subtree: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	// Don't close m: it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Run is a persisted tracking run.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Metrics    track.Metrics
}

// TrackRecord is one completed track as persisted.
type TrackRecord struct {
	RunID      string
	TrackID    int64
	FirstFrame int64
	LastFrame  int64
	Hits       int
	Direction  track.Direction
	Static     bool
	AvgSpeed   float64
	PeakSpeed  float64
	Rect       track.Rect
}

// BeginRun creates a run row for the given detection source and
// returns its id.
func (s *Store) BeginRun(source string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`INSERT INTO runs (id, source) VALUES (?, ?)`, id, source)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end time and final engine counters.
func (s *Store) FinishRun(runID string, m track.Metrics) error {
	_, err := s.Exec(`
		UPDATE runs
		SET finished_at = CURRENT_TIMESTAMP,
		    frames = ?, tracks_created = ?, tracks_evicted = ?,
		    reidentified = ?, fragment_merges = ?
		WHERE id = ?`,
		m.FramesProcessed, m.TracksCreated, m.TracksEvicted,
		m.Reidentified, m.FragmentMerges, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// InsertTracks writes a batch of finished tracks for a run in a single
// transaction.
func (s *Store) InsertTracks(runID string, snapshots []track.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("insert tracks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tracks (run_id, track_id, first_frame, last_frame, hits,
			direction, static, avg_speed, peak_speed, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("insert tracks: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		_, err := stmt.Exec(runID, snap.ID, snap.FirstFrame, snap.LastFrame,
			snap.Hits, string(snap.Direction), snap.Static,
			snap.AvgSpeed, snap.PeakSpeed,
			snap.Rect.X1, snap.Rect.Y1, snap.Rect.X2, snap.Rect.Y2)
		if err != nil {
			return fmt.Errorf("insert track %d: %w", snap.ID, err)
		}
	}

	return tx.Commit()
}

// SaveCounts upserts the count-line tallies for a run.
func (s *Store) SaveCounts(runID string, axis counter.Axis, fraction float64, c counter.Counts) error {
	_, err := s.Exec(`
		INSERT INTO counts (run_id, axis, fraction, forward, reverse)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET forward = excluded.forward, reverse = excluded.reverse`,
		runID, string(axis), fraction, c.Forward, c.Reverse)
	if err != nil {
		return fmt.Errorf("save counts: %w", err)
	}
	return nil
}

// GetRun fetches a run row by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.QueryRow(`
		SELECT id, source, started_at, finished_at,
		       frames, tracks_created, tracks_evicted, reidentified, fragment_merges
		FROM runs WHERE id = ?`, runID)

	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Source, &r.StartedAt, &finished,
		&r.Metrics.FramesProcessed, &r.Metrics.TracksCreated,
		&r.Metrics.TracksEvicted, &r.Metrics.Reidentified,
		&r.Metrics.FragmentMerges)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetTracks fetches all tracks recorded for a run, ordered by first
// appearance.
func (s *Store) GetTracks(runID string) ([]TrackRecord, error) {
	rows, err := s.Query(`
		SELECT run_id, track_id, first_frame, last_frame, hits,
		       direction, static, avg_speed, peak_speed, x1, y1, x2, y2
		FROM tracks WHERE run_id = ?
		ORDER BY first_frame, track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("get tracks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var rec TrackRecord
		var dir string
		err := rows.Scan(&rec.RunID, &rec.TrackID, &rec.FirstFrame, &rec.LastFrame,
			&rec.Hits, &dir, &rec.Static, &rec.AvgSpeed, &rec.PeakSpeed,
			&rec.Rect.X1, &rec.Rect.Y1, &rec.Rect.X2, &rec.Rect.Y2)
		if err != nil {
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		rec.Direction = track.Direction(dir)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetCounts fetches the count-line tallies for a run. Returns zero
// counts if none were saved.
func (s *Store) GetCounts(runID string) (counter.Counts, error) {
	var c counter.Counts
	err := s.QueryRow(`SELECT forward, reverse FROM counts WHERE run_id = ?`, runID).
		Scan(&c.Forward, &c.Reverse)
	if errors.Is(err, sql.ErrNoRows) {
		return counter.Counts{}, nil
	}
	if err != nil {
		return counter.Counts{}, fmt.Errorf("get counts for run %s: %w", runID, err)
	}
	return c, nil
}
