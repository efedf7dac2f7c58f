// Package summary generates the free-text research summary from scored
// comments.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"threadlens/models"
	"threadlens/ports"
)

const summarySystemPrompt = `You are a research summarizer. You will receive a research question and a collection of discussion comments that have been scored for relevancy. Each comment includes its upvote count and relevancy score.

Create a comprehensive summary that:
1. Identifies the most common answers, themes, and opinions (weighted by how frequently they appear and their upvote counts)
2. Highlights the most insightful or highly-rated responses
3. Notes any significant disagreements or contrasting viewpoints
4. Separates factual claims from opinions and personal anecdotes
5. Indicates when an answer was rare or poorly received (downvoted)
6. Provides an overall consensus if one exists

Format your response with clear headers and paragraphs. Be thorough but concise. Reference evidence from comments where helpful (e.g., "Multiple commenters noted..." or "A highly-upvoted response suggested..."). Aim for 300-600 words.`

// Relevancy threshold and cap for the summary prompt.
const (
	minRelevancy = 4
	topComments  = 50
	callTimeout  = 60 * time.Second
)

// Summarizer turns a research's scored comments into a narrative summary.
type Summarizer struct {
	llm ports.TextCompleter
}

// NewSummarizer creates a summarizer backed by the given text completer.
func NewSummarizer(llm ports.TextCompleter) *Summarizer {
	return &Summarizer{llm: llm}
}

// Summarize filters to comments with relevancy >= 4, ranks them by
// relevancy x max(upvotes, 1) descending, and hands the top 50 to the text
// completion operation. The result overwrites any previous summary.
func (s *Summarizer) Summarize(ctx context.Context, question string, comments []models.Comment) (string, error) {
	var relevant []models.Comment
	for _, c := range comments {
		if c.RelevancyScore != nil && *c.RelevancyScore >= minRelevancy {
			relevant = append(relevant, c)
		}
	}

	if len(relevant) == 0 {
		return "No sufficiently relevant comments were found to summarize. Try broadening your search query.", nil
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return rank(relevant[i]) > rank(relevant[j])
	})
	if len(relevant) > topComments {
		relevant = relevant[:topComments]
	}

	var sb strings.Builder
	for _, c := range relevant {
		body := c.Body
		if len(body) > 600 {
			body = body[:600]
		}
		fmt.Fprintf(&sb, "[Relevancy: %d/10, Upvotes: %d]\n%s\n\n", *c.RelevancyScore, c.Score, body)
	}

	userPrompt := fmt.Sprintf(
		"Research Question: %s\n\nTotal comments analyzed: %d\nComments meeting relevancy threshold (%d+): %d\n\nTop scored comments:\n%s",
		question, len(comments), minRelevancy, len(relevant), sb.String())

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return s.llm.CompleteText(callCtx, summarySystemPrompt, userPrompt)
}

func rank(c models.Comment) int {
	upvotes := c.Score
	if upvotes < 1 {
		upvotes = 1
	}
	return *c.RelevancyScore * upvotes
}
