package sqlite

import (
	"context"
	"fmt"
	"log"
)

// Base schema. Later schema changes are expressed as additive column
// migrations below, never as table rebuilds: re-running migrations against
// an existing database must not lose historical researches.
const baseSchema = `
CREATE TABLE IF NOT EXISTS researches (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	status TEXT DEFAULT 'pending',
	summary TEXT,
	num_threads INTEGER DEFAULT 0,
	num_comments INTEGER DEFAULT 0,
	created_at TEXT NOT NULL,
	completed_at TEXT,
	settings_json TEXT
);
CREATE TABLE IF NOT EXISTS threads (
	id TEXT NOT NULL,
	research_id TEXT NOT NULL,
	title TEXT,
	subreddit TEXT,
	score INTEGER,
	num_comments INTEGER,
	url TEXT,
	permalink TEXT,
	selftext TEXT,
	created_utc REAL,
	author TEXT DEFAULT '',
	PRIMARY KEY (id, research_id),
	FOREIGN KEY (research_id) REFERENCES researches(id)
);
CREATE TABLE IF NOT EXISTS comments (
	id TEXT NOT NULL,
	research_id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	author TEXT,
	body TEXT,
	score INTEGER,
	created_utc REAL,
	depth INTEGER,
	permalink TEXT,
	relevancy_score INTEGER,
	reasoning TEXT,
	PRIMARY KEY (id, research_id),
	FOREIGN KEY (research_id) REFERENCES researches(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_research ON comments(research_id);
CREATE INDEX IF NOT EXISTS idx_threads_research ON threads(research_id);
CREATE INDEX IF NOT EXISTS idx_researches_created ON researches(created_at DESC);
`

// migrate applies the base schema and all additive column migrations. Safe
// to run on every startup.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("failed to apply base schema: %w", err)
	}

	additive := []struct {
		table, column, definition string
	}{
		{"researches", "archived", "INTEGER DEFAULT 0"},
		{"comments", "user_note", "TEXT DEFAULT ''"},
	}
	for _, m := range additive {
		if err := s.addColumnIfMissing(ctx, m.table, m.column, m.definition); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

// addColumnIfMissing runs ALTER TABLE ADD COLUMN only when the column does
// not already exist, so migrations stay repeat-safe.
func (s *Store) addColumnIfMissing(ctx context.Context, table, column, definition string) error {
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  interface{}
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("[Store] Adding column %s.%s", table, column)
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
