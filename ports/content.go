package ports

import (
	"context"

	"threadlens/models"
)

// SearchOptions controls a content-source thread search.
type SearchOptions struct {
	Subreddits []string // empty means search across the whole platform
	Sort       string   // relevance, top, new, controversial, hot
	TimeFilter string   // hour, day, week, month, year, all
	MaxThreads int
}

// ContentSource defines the interface to the discussion platform. One
// production implementation exists (Reddit's public JSON API); tests use
// fixture doubles.
type ContentSource interface {
	// SearchThreads finds threads matching the query under the given options.
	SearchThreads(ctx context.Context, query string, opts SearchOptions) ([]models.Thread, error)

	// FetchThread resolves a single thread by its source identifier.
	FetchThread(ctx context.Context, threadID string) (*models.Thread, error)

	// FetchComments returns up to maxComments flattened comments for a thread,
	// including items the source flagged as removed (Comment.Removed set).
	FetchComments(ctx context.Context, threadID string, maxComments int) ([]models.Comment, error)

	// SubredditExists reports whether a subreddit name resolves on the platform.
	SubredditExists(ctx context.Context, name string) (bool, error)
}
