package ports

import "context"

// WebSearcher discovers supplementary thread URLs via a generic search
// engine. Implementations must swallow their own failures: a broken search
// degrades to zero additional results, never to a pipeline error.
type WebSearcher interface {
	// SearchThreadIDs runs the query variants and returns deduplicated source
	// thread identifiers, at most maxTotal. Subreddits, when provided, add
	// per-subreddit targeted passes on top of the broad pass.
	SearchThreadIDs(ctx context.Context, queries []string, subreddits []string, maxResults, maxTotal int) []string
}
