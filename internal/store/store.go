package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a session ID does not match any row.
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	expected_chunks INTEGER,
	received_chunks INTEGER NOT NULL DEFAULT 0,
	finalized INTEGER NOT NULL DEFAULT 0,
	transcript TEXT,
	summary TEXT,
	complete INTEGER NOT NULL DEFAULT 0,
	summary_enqueued INTEGER NOT NULL DEFAULT 0,
	word_count INTEGER,
	duration_seconds INTEGER,
	summary_length TEXT NOT NULL DEFAULT 'auto',
	summary_language_mode TEXT NOT NULL DEFAULT 'auto',
	summary_custom_language TEXT,
	context TEXT
);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	chunk_index INTEGER NOT NULL,
	storage_key TEXT NOT NULL,
	text TEXT,
	UNIQUE(session_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);
`

// Store provides access to the session and chunk tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path with WAL
// enabled and initializes the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; serializing connections avoids
	// SQLITE_BUSY churn under concurrent task commits.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `id, title, created_at, last_activity, expected_chunks,
	received_chunks, finalized, transcript, summary, complete, summary_enqueued,
	word_count, duration_seconds, summary_length, summary_language_mode,
	summary_custom_language, context`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		sess                        Session
		createdAt, lastActivity     int64
		expected, words, seconds    sql.NullInt64
		transcript, summary         sql.NullString
		customLanguage, contextText sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Title, &createdAt, &lastActivity, &expected,
		&sess.ReceivedChunks, &sess.Finalized, &transcript, &summary,
		&sess.Complete, &sess.SummaryEnqueued, &words, &seconds,
		&sess.SummaryLength, &sess.SummaryLanguageMode, &customLanguage, &contextText)
	if err != nil {
		return nil, err
	}

	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.LastActivity = time.Unix(lastActivity, 0).UTC()
	if expected.Valid {
		v := int(expected.Int64)
		sess.ExpectedChunks = &v
	}
	if words.Valid {
		v := int(words.Int64)
		sess.WordCount = &v
	}
	if seconds.Valid {
		v := int(seconds.Int64)
		sess.DurationSeconds = &v
	}
	if transcript.Valid {
		sess.Transcript = &transcript.String
	}
	if summary.Valid {
		sess.Summary = &summary.String
	}
	if customLanguage.Valid {
		sess.SummaryCustomLanguage = &customLanguage.String
	}
	if contextText.Valid {
		sess.Context = &contextText.String
	}
	return &sess, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, id, title string, cfg SessionConfig) (*Session, error) {
	now := time.Now().UTC().Unix()
	if cfg.SummaryLength == "" {
		cfg.SummaryLength = "auto"
	}
	if cfg.SummaryLanguageMode == "" {
		cfg.SummaryLanguageMode = "auto"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, created_at, last_activity,
			summary_length, summary_language_mode, summary_custom_language, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, title, now, now, cfg.SummaryLength, cfg.SummaryLanguageMode,
		cfg.SummaryCustomLanguage, cfg.Context)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession returns one session or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RecordSignalChunk applies a signal-only upload: it bumps activity and,
// when the final flag is set, pins the expected count. No chunk row is
// written and nothing is counted.
func (s *Store) RecordSignalChunk(ctx context.Context, id string, isFinal bool) error {
	return s.withSession(ctx, id, func(tx *sql.Tx, sess *Session) error {
		now := time.Now().UTC().Unix()
		if isFinal {
			expected := maxInt(derefOr(sess.ExpectedChunks, 0), sess.ReceivedChunks)
			_, err := tx.ExecContext(ctx, `
				UPDATE sessions SET last_activity = ?, finalized = 1, expected_chunks = ?
				WHERE id = ?`, now, expected, id)
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_activity = ? WHERE id = ?`, now, id)
		return err
	})
}

// RecordRealChunk upserts the chunk row (clearing any previous text so the
// chunk is retranscribed), increments the received count and bumps activity.
// A completed session is reset to in-progress; the returned flag reports
// whether that resume happened.
func (s *Store) RecordRealChunk(ctx context.Context, id string, index int, storageKey string, isFinal bool) (resumed bool, err error) {
	err = s.withSession(ctx, id, func(tx *sql.Tx, sess *Session) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (session_id, chunk_index, storage_key, text)
			VALUES (?, ?, ?, NULL)
			ON CONFLICT(session_id, chunk_index)
			DO UPDATE SET storage_key = excluded.storage_key, text = NULL
		`, id, index, storageKey)
		if err != nil {
			return fmt.Errorf("upsert chunk: %w", err)
		}

		received := sess.ReceivedChunks + 1
		now := time.Now().UTC().Unix()

		resumed = sess.Complete
		complete := sess.Complete
		summaryEnqueued := sess.SummaryEnqueued
		var summary *string = sess.Summary
		if resumed {
			// Resume recording: a late real chunk restarts the race.
			complete = false
			summaryEnqueued = false
			summary = nil
		}

		finalized := sess.Finalized
		expected := sess.ExpectedChunks
		if isFinal {
			finalized = true
			v := maxInt(derefOr(expected, 0), received)
			expected = &v
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET received_chunks = ?, last_activity = ?,
				complete = ?, summary = ?, summary_enqueued = ?,
				finalized = ?, expected_chunks = ?
			WHERE id = ?
		`, received, now, complete, summary, summaryEnqueued, finalized, expected, id)
		return err
	})
	return resumed, err
}

// SetChunkText persists the transcription result for one chunk.
func (s *Store) SetChunkText(ctx context.Context, sessionID string, index int, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET text = ? WHERE session_id = ? AND chunk_index = ?`,
		text, sessionID, index)
	return err
}

// TranscribedCount returns how many real chunks of the session have
// non-null text.
func (s *Store) TranscribedCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks
		WHERE session_id = ? AND chunk_index > 0 AND text IS NOT NULL
	`, sessionID).Scan(&n)
	return n, err
}

// RealChunks returns the session's real chunks ordered by index ascending.
func (s *Store) RealChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, chunk_index, storage_key, text FROM chunks
		WHERE session_id = ? AND chunk_index > 0
		ORDER BY chunk_index ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var text sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Index, &c.StorageKey, &text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if text.Valid {
			c.Text = &text.String
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// PendingChunks returns the session's real chunks still awaiting
// transcription, ordered by index ascending.
func (s *Store) PendingChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	chunks, err := s.RealChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pending := chunks[:0]
	for _, c := range chunks {
		if c.Text == nil {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// MarkFinalized sets the finalized flag and pins the expected count to at
// least the current received count. Activity is left untouched so recovery
// windows keep counting from the last real upload.
func (s *Store) MarkFinalized(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET finalized = 1,
			expected_chunks = MAX(COALESCE(expected_chunks, 0), received_chunks)
		WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// TryMarkSummaryEnqueued atomically claims the lazy summary trigger. It
// returns false when another poller already claimed it, the session is
// complete, or a summary already exists.
func (s *Store) TryMarkSummaryEnqueued(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET summary_enqueued = 1
		WHERE id = ? AND summary_enqueued = 0 AND complete = 0 AND summary IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SaveTranscript persists the rebuilt transcript and its derived metrics.
func (s *Store) SaveTranscript(ctx context.Context, id, transcript string, wordCount, durationSeconds int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET transcript = ?, word_count = ?, duration_seconds = ?
		WHERE id = ?
	`, transcript, wordCount, durationSeconds, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FinishSession stores the summary (or terminal sentinel), optionally
// replaces the title, and marks the session complete.
func (s *Store) FinishSession(ctx context.Context, id, summary string, title *string) error {
	var (
		res sql.Result
		err error
	)
	if title != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE sessions SET summary = ?, title = ?, complete = 1, summary_enqueued = 0
			WHERE id = ?`, summary, *title, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE sessions SET summary = ?, complete = 1, summary_enqueued = 0
			WHERE id = ?`, summary, id)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

// TouchActivity bumps last_activity to now.
func (s *Store) TouchActivity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`,
		time.Now().UTC().Unix(), id)
	return err
}

// StaleUnfinalized returns sessions that are neither finalized nor complete
// and have been inactive since before the cutoff.
func (s *Store) StaleUnfinalized(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE finalized = 0 AND complete = 0 AND last_activity < ?
	`, cutoff.UTC().Unix())
}

// StuckSessions returns finalized, incomplete sessions inactive since before
// the cutoff.
func (s *Store) StuckSessions(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE finalized = 1 AND complete = 0 AND last_activity < ?
	`, cutoff.UTC().Unix())
}

// UpdateConfigAndResetSummary applies new summarization settings, discards
// the current summary and reopens the session for re-finalization. The
// summary_enqueued guard is claimed so concurrent pollers do not double-enqueue.
func (s *Store) UpdateConfigAndResetSummary(ctx context.Context, id string, cfg SessionConfig) error {
	return s.withSession(ctx, id, func(tx *sql.Tx, sess *Session) error {
		length := sess.SummaryLength
		if cfg.SummaryLength != "" {
			length = cfg.SummaryLength
		}
		mode := sess.SummaryLanguageMode
		if cfg.SummaryLanguageMode != "" {
			mode = cfg.SummaryLanguageMode
		}
		customLanguage := sess.SummaryCustomLanguage
		if cfg.SummaryCustomLanguage != nil {
			customLanguage = cfg.SummaryCustomLanguage
		}
		contextText := sess.Context
		if cfg.Context != nil {
			contextText = cfg.Context
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET summary = NULL, complete = 0, summary_enqueued = 1,
				summary_length = ?, summary_language_mode = ?,
				summary_custom_language = ?, context = ?
			WHERE id = ?
		`, length, mode, customLanguage, contextText, id)
		return err
	})
}

// withSession runs fn inside a transaction with the current session row.
func (s *Store) withSession(ctx context.Context, id string, fn func(tx *sql.Tx, sess *Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("scan session: %w", err)
	}

	if err := fn(tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func derefOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
