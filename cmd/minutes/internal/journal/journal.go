// Package journal keeps a SQLite record of every session and its segments so
// a transcript can be listed, exported, or recovered after a crash.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	output     TEXT NOT NULL DEFAULT '',
	engine     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	started_at REAL NOT NULL,
	ended_at   REAL
);
CREATE TABLE IF NOT EXISTS segments (
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	seq         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	confidence  REAL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	repeated    INTEGER NOT NULL DEFAULT 0,
	offset_ms   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  REAL NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Session is one recorded run.
type Session struct {
	ID        string
	Mode      string
	Source    string
	Output    string
	Engine    string
	Status    string
	StartedAt time.Time
	EndedAt   *time.Time
	Segments  int
}

// Store wraps the journal database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.minutes/journal.sqlite.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".minutes", "journal.sqlite")
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a new active session and returns its id.
func (s *Store) Begin(ctx context.Context, mode, source, output, engine string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, mode, source, output, engine, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, mode, source, output, engine, StatusActive, unixFromTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// End marks a session finished with the given status.
func (s *Store) End(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?
	`, status, unixFromTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSegment stores one transcript segment.
func (s *Store) AppendSegment(ctx context.Context, sessionID string, seg transcript.Segment) error {
	var conf sql.NullFloat64
	if seg.Confidence != nil {
		conf = sql.NullFloat64{Float64: *seg.Confidence, Valid: true}
	}
	repeated := 0
	if seg.Repeated {
		repeated = 1
	}
	ts := seg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (session_id, seq, text, language, confidence, status, error,
			repeated, offset_ms, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, seg.Seq, seg.Text, seg.Language, conf, string(seg.Status), seg.Error,
		repeated, seg.Offset.Milliseconds(), seg.Duration.Milliseconds(), unixFromTime(ts))
	if err != nil {
		return fmt.Errorf("insert segment %d: %w", seg.Seq, err)
	}
	return nil
}

// Sessions lists sessions newest first, at most limit (0 means all).
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	query := `
		SELECT s.id, s.mode, s.source, s.output, s.engine, s.status, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM segments g WHERE g.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.mode, s.source, s.output, s.engine, s.status, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM segments g WHERE g.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// Segments returns a session's segments in sequence order.
func (s *Store) Segments(ctx context.Context, sessionID string) ([]transcript.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, text, language, confidence, status, error, repeated, offset_ms, duration_ms, created_at
		FROM segments
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []transcript.Segment
	for rows.Next() {
		var (
			seg                  transcript.Segment
			conf                 sql.NullFloat64
			status               string
			repeated             int
			offsetMs, durationMs int64
			createdAt            float64
		)
		if err := rows.Scan(&seg.Seq, &seg.Text, &seg.Language, &conf, &status, &seg.Error,
			&repeated, &offsetMs, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if conf.Valid {
			v := conf.Float64
			seg.Confidence = &v
		}
		seg.Status = transcript.Status(status)
		seg.Repeated = repeated != 0
		seg.Offset = time.Duration(offsetMs) * time.Millisecond
		seg.Duration = time.Duration(durationMs) * time.Millisecond
		seg.Timestamp = timeFromUnix(createdAt)
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Export renders a session's transcript as plain text.
func (s *Store) Export(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return "", err
	}
	segs, err := s.Segments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return transcript.Join(segs), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (Session, error) {
	var (
		sess      Session
		startedAt float64
		endedAt   sql.NullFloat64
	)
	if err := r.Scan(&sess.ID, &sess.Mode, &sess.Source, &sess.Output, &sess.Engine,
		&sess.Status, &startedAt, &endedAt, &sess.Segments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = timeFromUnix(startedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	return sess, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
