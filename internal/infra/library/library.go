// Package library provides the SQLite-backed track index.
//
// The library maps caller queries (a path, a title fragment) to playable
// track metadata. It is the session's only catalog; nothing here touches
// audio bytes.
package library

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"voxbox/internal/domain/track"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.New("track not found")

// Library manages track metadata persistence backed by SQLite.
type Library struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database and applies
// migrations.
func Open(path string) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, errors.Wrapf(execErr, "apply pragma %q", pragma)
		}
	}

	lib := &Library{db: db, path: path}
	if err := lib.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return lib, nil
}

func (l *Library) applyMigrations(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tracks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL UNIQUE,
    title       TEXT NOT NULL DEFAULT '',
    artist      TEXT NOT NULL DEFAULT '',
    album       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    added_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title);
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Library) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Add inserts a track, returning its library ID. Re-adding a known path
// updates the stored metadata in place.
func (l *Library) Add(ctx context.Context, t track.Track) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := l.db.ExecContext(
		ctx,
		`INSERT INTO tracks (path, title, artist, album, duration_ms, added_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             title = excluded.title,
             artist = excluded.artist,
             album = excluded.album,
             duration_ms = excluded.duration_ms`,
		t.Path,
		t.Title,
		t.Artist,
		t.Album,
		t.Duration.Milliseconds(),
		now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert track")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

// Get returns the track stored under the given library ID.
func (l *Library) Get(ctx context.Context, id int64) (track.Track, error) {
	row := l.db.QueryRowContext(
		ctx,
		`SELECT id, path, title, artist, album, duration_ms FROM tracks WHERE id = ?`,
		id,
	)
	return scanTrack(row)
}

// Search returns up to limit tracks whose title or artist contains the
// query, ordered by title.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 25
	}
	pattern := "%" + query + "%"

	rows, err := l.db.QueryContext(
		ctx,
		`SELECT id, path, title, artist, album, duration_ms FROM tracks
         WHERE title LIKE ? OR artist LIKE ?
         ORDER BY title LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "search tracks")
	}
	defer rows.Close()

	var out []track.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate tracks")
}

// Count returns the number of indexed tracks.
func (l *Library) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count tracks")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (track.Track, error) {
	var (
		id         int64
		t          track.Track
		durationMs int64
	)
	err := row.Scan(&id, &t.Path, &t.Title, &t.Artist, &t.Album, &durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Track{}, ErrNotFound
	}
	if err != nil {
		return track.Track{}, errors.Wrap(err, "scan track")
	}
	t.ID = strconv.FormatInt(id, 10)
	t.Duration = time.Duration(durationMs) * time.Millisecond
	return t, nil
}
