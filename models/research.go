package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Research lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
	StatusArchived   = "archived"
)

// Settings holds the discovery parameters captured when a research is created,
// plus state accumulated by later operations (validated subreddits, the sort
// orders already tried by expand).
type Settings struct {
	MaxThreads           int      `json:"max_threads"`
	MaxCommentsPerThread int      `json:"max_comments_per_thread"`
	TimeFilter           string   `json:"time_filter"`
	Subreddits           []string `json:"subreddits,omitempty"`
	SortsTried           []string `json:"sorts_tried,omitempty"`
}

// Value implements driver.Valuer so Settings persists as a JSON blob.
func (s Settings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Settings) Scan(value interface{}) error {
	if value == nil {
		*s = Settings{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = Settings{}
		return nil
	}
	if len(bytes) == 0 {
		*s = Settings{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Research is one user research request and its accumulated results.
type Research struct {
	ID          string     `json:"id" db:"id"`
	Question    string     `json:"question" db:"question"`
	Status      string     `json:"status" db:"status"`
	Summary     *string    `json:"summary,omitempty" db:"summary"`
	NumThreads  int        `json:"num_threads" db:"num_threads"`
	NumComments int        `json:"num_comments" db:"num_comments"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Settings    Settings   `json:"settings" db:"settings_json"`
	Archived    bool       `json:"archived" db:"archived"`
}

// Thread is a discussion container discovered from the content source.
// Identity is composite (ID, ResearchID): the same source thread may appear
// under multiple researches.
type Thread struct {
	ID          string  `json:"id" db:"id"`
	ResearchID  string  `json:"research_id" db:"research_id"`
	Title       string  `json:"title" db:"title"`
	Subreddit   string  `json:"subreddit" db:"subreddit"`
	Score       int     `json:"score" db:"score"`
	NumComments int     `json:"num_comments" db:"num_comments"`
	URL         string  `json:"url" db:"url"`
	Permalink   string  `json:"permalink" db:"permalink"`
	Selftext    string  `json:"selftext" db:"selftext"`
	CreatedUTC  float64 `json:"created_utc" db:"created_utc"`
	Author      string  `json:"author" db:"author"`
}

// Comment is a reply item within a thread, the unit of relevancy scoring.
// Removed marks content the source flagged as deleted; removed items are
// dropped during selection and never persisted.
type Comment struct {
	ID         string  `json:"id" db:"id"`
	ResearchID string  `json:"research_id" db:"research_id"`
	ThreadID   string  `json:"thread_id" db:"thread_id"`
	Author     string  `json:"author" db:"author"`
	Body       string  `json:"body" db:"body"`
	Score      int     `json:"score" db:"score"`
	CreatedUTC float64 `json:"created_utc" db:"created_utc"`
	Depth      int     `json:"depth" db:"depth"`
	Permalink  string  `json:"permalink" db:"permalink"`
	Removed    bool    `json:"-" db:"-"`

	// Enrichment fields, owned by the scoring stage. RelevancyScore is nil
	// until scored; a nil score after scoring means the chunk failed and
	// Reasoning carries the sentinel explanation.
	RelevancyScore *int   `json:"relevancy_score,omitempty" db:"relevancy_score"`
	Reasoning      string `json:"reasoning" db:"reasoning"`

	// UserNote is human-owned. Automated upserts must never touch it.
	UserNote string `json:"user_note" db:"user_note"`
}

// Operation kinds for background workers and their progress streams.
const (
	OpResearch  = "research"
	OpExpand    = "expand"
	OpAddThread = "add_thread"
)

// Progress stages emitted by pipeline workers.
const (
	StageSearching  = "searching"
	StageFetching   = "fetching"
	StageCollecting = "collecting"
	StageScoring    = "scoring"
	StageComplete   = "complete"
	StageError      = "error"
)

// ProgressEvent is a transient pipeline progress update. It is produced by a
// background worker, consumed by exactly one observer stream, and never
// persisted.
type ProgressEvent struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Terminal reports whether the event closes its stream.
func (e ProgressEvent) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

// ExpandSorts is the ranking strategy cycle for successive expand operations.
// Each research works through this list exactly once.
var ExpandSorts = []string{"top", "new", "controversial", "hot"}

// NextSort returns the first strategy not yet recorded in tried, or "" when
// the cycle is exhausted.
func NextSort(tried []string) string {
	for _, s := range ExpandSorts {
		seen := false
		for _, t := range tried {
			if t == s {
				seen = true
				break
			}
		}
		if !seen {
			return s
		}
	}
	return ""
}
