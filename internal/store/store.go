// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/intervue/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for interview sessions and cached responses.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Cache writes arrive from request goroutines; one connection keeps
	// SQLite from reporting busy.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			candidate TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			current_index INTEGER NOT NULL,
			time_left INTEGER NOT NULL,
			paused INTEGER NOT NULL,
			score INTEGER,
			summary TEXT NOT NULL,
			notice TEXT NOT NULL,
			err TEXT NOT NULL,
			created_at TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			time_limit INTEGER NOT NULL,
			PRIMARY KEY (session_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			question_id TEXT NOT NULL,
			text TEXT NOT NULL,
			score REAL,
			feedback TEXT NOT NULL,
			fallback INTEGER NOT NULL,
			answered_at TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS response_cache (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_completed_at ON sessions(completed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save replaces every stored session with sessions in one transaction.
func (s *Store) Save(ctx context.Context, sessions []model.Session) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	for _, table := range []string{"answers", "questions", "sessions"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	for _, sess := range sessions {
		var score any
		if sess.Score != nil {
			score = *sess.Score
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, candidate, role, status, current_index, time_left, paused, score, summary, notice, err, created_at, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID,
			sess.Candidate,
			sess.Role,
			string(sess.Status),
			sess.CurrentIndex,
			sess.TimeLeft,
			boolInt(sess.Paused),
			score,
			sess.Summary,
			sess.Notice,
			sess.Err,
			formatTime(sess.CreatedAt),
			formatTime(sess.StartedAt),
			formatTime(sess.CompletedAt),
		); err != nil {
			return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
		}
		for i, q := range sess.Questions {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO questions (session_id, position, id, text, difficulty, time_limit) VALUES (?, ?, ?, ?, ?, ?)`,
				sess.ID, i, q.ID, q.Text, string(q.Difficulty), q.TimeLimit,
			); err != nil {
				return fmt.Errorf("failed to save question %d of session %s: %w", i+1, sess.ID, err)
			}
		}
		for i, a := range sess.Answers {
			var ascore any
			if a.Score != nil {
				ascore = *a.Score
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO answers (session_id, position, question_id, text, score, feedback, fallback, answered_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sess.ID, i, a.QuestionID, a.Text, ascore, a.Feedback, boolInt(a.Fallback), formatTime(a.Timestamp),
			); err != nil {
				return fmt.Errorf("failed to save answer %d of session %s: %w", i+1, sess.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Load returns every stored session ordered by creation time.
func (s *Store) Load(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}
	index := make(map[string]int, len(sessions))
	for i, sess := range sessions {
		index[sess.ID] = i
	}
	if err := s.loadQuestions(ctx, sessions, index); err != nil {
		return nil, err
	}
	if err := s.loadAnswers(ctx, sessions, index); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) loadSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate, role, status, current_index, time_left, paused, score, summary, notice, err, created_at, started_at, completed_at
		FROM sessions
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var status, createdAt, startedAt, completedAt string
		var paused int
		var score sql.NullInt64
		if err := rows.Scan(&sess.ID, &sess.Candidate, &sess.Role, &status, &sess.CurrentIndex, &sess.TimeLeft, &paused, &score,
			&sess.Summary, &sess.Notice, &sess.Err, &createdAt, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		sess.Status = model.Status(status)
		sess.Paused = paused != 0
		if score.Valid {
			v := int(score.Int64)
			sess.Score = &v
		}
		if sess.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sess.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if sess.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) loadQuestions(ctx context.Context, sessions []model.Session, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, id, text, difficulty, time_limit FROM questions ORDER BY session_id, position`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	for rows.Next() {
		var sessionID, difficulty string
		var q model.Question
		if err := rows.Scan(&sessionID, &q.ID, &q.Text, &difficulty, &q.TimeLimit); err != nil {
			return err
		}
		q.Difficulty = model.Difficulty(difficulty)
		if i, ok := index[sessionID]; ok {
			sessions[i].Questions = append(sessions[i].Questions, q)
		}
	}
	return rows.Err()
}

func (s *Store) loadAnswers(ctx context.Context, sessions []model.Session, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, question_id, text, score, feedback, fallback, answered_at FROM answers ORDER BY session_id, position`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	for rows.Next() {
		var sessionID, answeredAt string
		var a model.Answer
		var score sql.NullFloat64
		var fallback int
		if err := rows.Scan(&sessionID, &a.QuestionID, &a.Text, &score, &a.Feedback, &fallback, &answeredAt); err != nil {
			return err
		}
		if score.Valid {
			v := score.Float64
			a.Score = &v
		}
		a.Fallback = fallback != 0
		if a.Timestamp, err = parseTime(answeredAt); err != nil {
			return err
		}
		if i, ok := index[sessionID]; ok {
			sessions[i].Answers = append(sessions[i].Answers, a)
		}
	}
	return rows.Err()
}

// ListCompleted returns aggregates of completed sessions, oldest first.
func (s *Store) ListCompleted(ctx context.Context, filter model.HistoryFilter) ([]model.SessionAggregate, error) {
	clauses := []string{"s.status = ?"}
	args := []any{string(model.StatusCompleted)}
	if filter.Candidate != "" {
		clauses = append(clauses, "s.candidate = ?")
		args = append(args, filter.Candidate)
	}
	if filter.Role != "" {
		clauses = append(clauses, "s.role = ?")
		args = append(args, filter.Role)
	}
	if filter.Since != nil {
		clauses = append(clauses, "s.completed_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	limit := ""
	if filter.Last > 0 {
		limit = "LIMIT ?"
		args = append(args, filter.Last)
	}
	query := fmt.Sprintf(`SELECT s.id, s.candidate, s.role, s.completed_at, COALESCE(s.score, 0), s.summary,
			(SELECT COUNT(*) FROM answers a WHERE a.session_id = s.id AND a.fallback = 1) AS fallbacks
		FROM sessions s
		WHERE %s
		ORDER BY s.completed_at DESC
		%s`, strings.Join(clauses, " AND "), limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SessionAggregate
	for rows.Next() {
		var agg model.SessionAggregate
		var completedAt string
		if err := rows.Scan(&agg.SessionID, &agg.Candidate, &agg.Role, &completedAt, &agg.Score, &agg.Summary, &agg.Fallbacks); err != nil {
			return nil, err
		}
		if agg.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
