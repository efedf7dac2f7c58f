// Package sqlite implements the research store on SQLite via sqlx. All
// writes are idempotent: threads and comments upsert on their composite
// (id, research_id) key, and conflicting rows only ever have their
// automation-owned fields refreshed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"threadlens/models"
	"threadlens/ports"
)

// Store is the SQLite-backed persistence gateway.
type Store struct {
	db *sqlx.DB
}

var _ ports.ResearchStore = (*Store)(nil)

// Open connects to the database file, creating its directory if needed, and
// applies migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between worker goroutines and request handlers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenInMemory opens a throwaway in-memory store. Used by tests.
func OpenInMemory() (*Store, error) {
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateResearch inserts a new research row in pending status.
func (s *Store) CreateResearch(ctx context.Context, id, question string, settings models.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO researches (id, question, status, created_at, settings_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, question, models.StatusPending, time.Now().UTC().Format(time.RFC3339), settings)
	return err
}

// GetResearch fetches one research by id, archived or not.
func (s *Store) GetResearch(ctx context.Context, id string) (*models.Research, error) {
	var row researchRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, question, status, summary, num_threads, num_comments,
		       created_at, completed_at, settings_json, archived
		FROM researches WHERE id = ?
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	research := row.toModel()
	return &research, nil
}

// GetHistory lists non-archived researches, newest first.
func (s *Store) GetHistory(ctx context.Context, limit int) ([]models.Research, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []researchRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, question, status, summary, num_threads, num_comments,
		       created_at, completed_at, settings_json, archived
		FROM researches
		WHERE archived = 0
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	history := make([]models.Research, 0, len(rows))
	for _, r := range rows {
		history = append(history, r.toModel())
	}
	return history, nil
}

// SetStatus updates only the lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE researches SET status = ? WHERE id = ?`, status, id)
	return err
}

// UpdateStatus sets the status and aggregate counts. Terminal statuses also
// stamp completed_at.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, numThreads, numComments int) error {
	var completedAt interface{}
	if status == models.StatusComplete || status == models.StatusError {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE researches SET status = ?, num_threads = ?, num_comments = ?, completed_at = ?
		WHERE id = ?
	`, status, numThreads, numComments, completedAt, id)
	return err
}

// GetSettings returns the parsed settings blob for a research.
func (s *Store) GetSettings(ctx context.Context, id string) (models.Settings, error) {
	var settings models.Settings
	err := s.db.GetContext(ctx, &settings, `SELECT settings_json FROM researches WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return models.Settings{}, nil
	}
	return settings, err
}

// UpdateSettings applies mutate to the stored settings and writes them back.
func (s *Store) UpdateSettings(ctx context.Context, id string, mutate func(*models.Settings)) error {
	settings, err := s.GetSettings(ctx, id)
	if err != nil {
		return err
	}
	mutate(&settings)
	_, err = s.db.ExecContext(ctx, `UPDATE researches SET settings_json = ? WHERE id = ?`, settings, id)
	return err
}

// SaveSummary overwrites the research summary.
func (s *Store) SaveSummary(ctx context.Context, id, summaryText string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE researches SET summary = ? WHERE id = ?`, summaryText, id)
	return err
}

// SetArchived soft-deletes (or restores) a research. Rows are never removed;
// archived researches simply drop out of history.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool) error {
	status := models.StatusComplete
	flag := 0
	if archived {
		status = models.StatusArchived
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE researches SET archived = ?, status = ? WHERE id = ?`, flag, status, id)
	return err
}

// DeleteResearch permanently removes a research with its threads and comments.
func (s *Store) DeleteResearch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM comments WHERE research_id = ?`,
		`DELETE FROM threads WHERE research_id = ?`,
		`DELETE FROM researches WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveThreads upserts threads for a research. On conflict only the
// popularity score and comment count are refreshed: descriptive fields keep
// their first-seen values.
func (s *Store) SaveThreads(ctx context.Context, researchID string, threads []models.Thread) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range threads {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO threads (id, research_id, title, subreddit, score, num_comments, url, permalink, selftext, created_utc, author)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id, research_id) DO UPDATE SET
				score = excluded.score,
				num_comments = excluded.num_comments
		`, t.ID, researchID, t.Title, t.Subreddit, t.Score, t.NumComments, t.URL, t.Permalink, t.Selftext, t.CreatedUTC, t.Author)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetThreads lists a research's threads by popularity.
func (s *Store) GetThreads(ctx context.Context, researchID string) ([]models.Thread, error) {
	var threads []models.Thread
	err := s.db.SelectContext(ctx, &threads, `
		SELECT id, research_id, title, subreddit, score, num_comments, url, permalink, selftext, created_utc, author
		FROM threads WHERE research_id = ?
		ORDER BY score DESC
	`, researchID)
	return threads, err
}

// ExistingThreadIDs returns the set of thread ids already attached to a
// research.
func (s *Store) ExistingThreadIDs(ctx context.Context, researchID string) (map[string]bool, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM threads WHERE research_id = ?`, researchID); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// DeleteThread removes one thread and its comments, then recomputes counts.
func (s *Store) DeleteThread(ctx context.Context, researchID, threadID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE thread_id = ? AND research_id = ?`, threadID, researchID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ? AND research_id = ?`, threadID, researchID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.RecalculateCounts(ctx, researchID)
}

// SaveComments upserts scored comments. On conflict only the enrichment
// fields (relevancy score, reasoning, popularity score) are refreshed.
// user_note is human-owned and is never written here.
func (s *Store) SaveComments(ctx context.Context, researchID string, comments []models.Comment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range comments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, research_id, thread_id, author, body, score, created_utc, depth, permalink, relevancy_score, reasoning)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id, research_id) DO UPDATE SET
				score = excluded.score,
				relevancy_score = excluded.relevancy_score,
				reasoning = excluded.reasoning
		`, c.ID, researchID, c.ThreadID, c.Author, c.Body, c.Score, c.CreatedUTC, c.Depth, c.Permalink, c.RelevancyScore, c.Reasoning)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetUserNote writes the human-owned note field of one comment.
func (s *Store) SetUserNote(ctx context.Context, researchID, commentID, note string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET user_note = ? WHERE id = ? AND research_id = ?`, note, commentID, researchID)
	return err
}

// GetComments lists a research's comments, most relevant first. Unscored
// comments sort last.
func (s *Store) GetComments(ctx context.Context, researchID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.SelectContext(ctx, &comments, `
		SELECT id, research_id, thread_id, author, body, score, created_utc, depth, permalink,
		       relevancy_score, reasoning, COALESCE(user_note, '') AS user_note
		FROM comments WHERE research_id = ?
		ORDER BY relevancy_score DESC, score DESC
	`, researchID)
	return comments, err
}

// RecalculateCounts recounts threads and comments onto the research row.
func (s *Store) RecalculateCounts(ctx context.Context, researchID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE researches SET
			num_threads = (SELECT COUNT(*) FROM threads WHERE research_id = ?),
			num_comments = (SELECT COUNT(*) FROM comments WHERE research_id = ?)
		WHERE id = ?
	`, researchID, researchID, researchID)
	return err
}

// researchRow is the scan target for the researches table; SQLite stores
// timestamps as RFC3339 text.
type researchRow struct {
	ID          string          `db:"id"`
	Question    string          `db:"question"`
	Status      string          `db:"status"`
	Summary     sql.NullString  `db:"summary"`
	NumThreads  int             `db:"num_threads"`
	NumComments int             `db:"num_comments"`
	CreatedAt   string          `db:"created_at"`
	CompletedAt sql.NullString  `db:"completed_at"`
	Settings    models.Settings `db:"settings_json"`
	Archived    bool            `db:"archived"`
}

func (r researchRow) toModel() models.Research {
	research := models.Research{
		ID:          r.ID,
		Question:    r.Question,
		Status:      r.Status,
		NumThreads:  r.NumThreads,
		NumComments: r.NumComments,
		Settings:    r.Settings,
		Archived:    r.Archived,
	}
	if r.Summary.Valid {
		research.Summary = &r.Summary.String
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		research.CreatedAt = t
	}
	if r.CompletedAt.Valid {
		if t, err := time.Parse(time.RFC3339, r.CompletedAt.String); err == nil {
			research.CompletedAt = &t
		}
	}
	return research
}
