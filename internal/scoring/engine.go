// Package scoring drives every structured text-intelligence call in the
// pipeline: subreddit suggestion, thread filtering, and batch comment
// scoring with per-chunk failure isolation.
package scoring

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"threadlens/models"
	"threadlens/ports"
)

// NullScoreReasoning is the sentinel explanation attached to comments whose
// scoring chunk failed or timed out. The relevancy score stays nil.
const NullScoreReasoning = "not scored — timeout or error"

// callTimeout bounds each text-intelligence call so a hung adapter degrades
// to a handled failure instead of stalling the worker.
const callTimeout = 60 * time.Second

// minThreadRelevancy is the retention threshold for the thread filter.
const minThreadRelevancy = 6

// Engine scores comments and threads against a research question.
type Engine struct {
	llm       ports.LLMProvider
	batchSize int
}

// NewEngine creates a scoring engine. batchSize is the chunk size for
// comment scoring; 20 balances structured-output reliability against
// per-call overhead.
func NewEngine(llm ports.LLMProvider, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Engine{llm: llm, batchSize: batchSize}
}

type commentScore struct {
	CommentID      string `json:"comment_id"`
	RelevancyScore int    `json:"relevancy_score"`
	Reasoning      string `json:"reasoning"`
}

type batchScoreResponse struct {
	Scores []commentScore `json:"scores"`
}

// ScoreComments scores all comments in chunks. The output always has the
// same length and order as the input. A chunk whose call errors, times out,
// or omits an id yields nil scores with the sentinel reasoning for the
// affected comments; other chunks are unaffected.
func (e *Engine) ScoreComments(ctx context.Context, question string, comments []models.Comment, onBatch func(batchNum, totalBatches int)) []models.Comment {
	scored := make([]models.Comment, 0, len(comments))
	totalBatches := (len(comments) + e.batchSize - 1) / e.batchSize

	for i := 0; i < len(comments); i += e.batchSize {
		batchNum := i/e.batchSize + 1
		end := i + e.batchSize
		if end > len(comments) {
			end = len(comments)
		}
		batch := comments[i:end]

		if onBatch != nil {
			onBatch(batchNum, totalBatches)
		}
		scored = append(scored, e.scoreBatch(ctx, question, batch)...)
	}
	return scored
}

// scoreBatch scores a single chunk. Results are matched back to inputs by
// comment id, never by position: a response with missing or extra ids must
// not misassign scores.
func (e *Engine) scoreBatch(ctx context.Context, question string, batch []models.Comment) []models.Comment {
	var sb strings.Builder
	for _, c := range batch {
		fmt.Fprintf(&sb, "[Comment ID: %s] (upvotes: %d)\n%s\n\n", c.ID, c.Score, truncate(c.Body, 500))
	}
	userPrompt := fmt.Sprintf("Research Question: %s\n\nComments to score:\n%s", question, sb.String())

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	scoreMap := make(map[string]commentScore)
	var resp batchScoreResponse
	if err := e.llm.CompleteStructured(callCtx, scoringSystemPrompt, userPrompt, &resp); err != nil {
		log.Printf("[Scoring] Chunk of %d comments failed, assigning null scores: %v", len(batch), err)
	} else {
		for _, s := range resp.Scores {
			if s.RelevancyScore >= 1 && s.RelevancyScore <= 10 {
				scoreMap[s.CommentID] = s
			}
		}
	}

	results := make([]models.Comment, 0, len(batch))
	for _, c := range batch {
		if s, ok := scoreMap[c.ID]; ok {
			score := s.RelevancyScore
			c.RelevancyScore = &score
			c.Reasoning = s.Reasoning
		} else {
			c.RelevancyScore = nil
			c.Reasoning = NullScoreReasoning
		}
		results = append(results, c)
	}
	return results
}

// SubredditSuggestion is the structured result of the discovery prompt.
type SubredditSuggestion struct {
	Subreddits    []string `json:"subreddits"`
	SearchQueries []string `json:"search_queries"`
}

// SuggestSubreddits asks for candidate subreddits plus keyword query
// variants for the question. Failure is recoverable: the caller falls back
// to an unrestricted search with the question itself as the only query.
func (e *Engine) SuggestSubreddits(ctx context.Context, question string) (SubredditSuggestion, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var suggestion SubredditSuggestion
	userPrompt := fmt.Sprintf("Research Question: %s", question)
	if err := e.llm.CompleteStructured(callCtx, subredditSystemPrompt, userPrompt, &suggestion); err != nil {
		return SubredditSuggestion{}, err
	}
	return suggestion, nil
}

type threadScore struct {
	ThreadID       string `json:"thread_id"`
	RelevancyScore int    `json:"relevancy_score"`
}

type threadFilterResponse struct {
	Scores []threadScore `json:"scores"`
}

// FilterThreads scores all discovered threads against the question in one
// batched call and retains those scoring >= 6. If the call errors or zero
// threads pass, the entire unfiltered set is returned: a discovery stage
// must never starve downstream stages over an LLM hiccup.
func (e *Engine) FilterThreads(ctx context.Context, question string, threads []models.Thread) []models.Thread {
	if len(threads) == 0 {
		return threads
	}

	var sb strings.Builder
	for _, t := range threads {
		fmt.Fprintf(&sb, "[Thread ID: %s] (r/%s, upvotes: %d)\nTitle: %s\n%s\n\n", t.ID, t.Subreddit, t.Score, t.Title, truncate(t.Selftext, 300))
	}
	userPrompt := fmt.Sprintf("Research Question: %s\n\nThreads to score:\n%s", question, sb.String())

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var resp threadFilterResponse
	if err := e.llm.CompleteStructured(callCtx, threadFilterSystemPrompt, userPrompt, &resp); err != nil {
		log.Printf("[Scoring] Thread filter call failed, keeping all %d threads: %v", len(threads), err)
		return threads
	}

	passing := make(map[string]bool)
	for _, s := range resp.Scores {
		if s.RelevancyScore >= minThreadRelevancy {
			passing[s.ThreadID] = true
		}
	}

	var kept []models.Thread
	for _, t := range threads {
		if passing[t.ID] {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		log.Printf("[Scoring] Thread filter passed zero of %d threads, keeping the unfiltered set", len(threads))
		return threads
	}
	return kept
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
