// Package selection implements the dedup, cap and rank policies applied to
// discovered threads and comments before the scoring stage. Caps bound the
// cost of downstream LLM calls; retention is by popularity score with stable
// ordering so ties keep their discovery order.
package selection

import (
	"sort"

	"threadlens/models"
)

// MergeThreads combines thread candidates from multiple discovery sources,
// deduplicating by source thread id. First-seen wins for descriptive fields.
func MergeThreads(batches ...[]models.Thread) []models.Thread {
	seen := make(map[string]bool)
	var merged []models.Thread
	for _, batch := range batches {
		for _, t := range batch {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			merged = append(merged, t)
		}
	}
	return merged
}

// ExcludeThreadIDs drops threads whose id appears in the exclude set. Used by
// expand to dedup against everything already collected for the research.
func ExcludeThreadIDs(threads []models.Thread, exclude map[string]bool) []models.Thread {
	var kept []models.Thread
	for _, t := range threads {
		if exclude[t.ID] {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// CapPerThread retains at most maxPerThread comments, the top ones by
// popularity score. Removed/deleted items are dropped first and do not count
// against the cap. The sort is stable: ties keep discovery order.
func CapPerThread(comments []models.Comment, maxPerThread int) []models.Comment {
	alive := dropRemoved(comments)
	if maxPerThread <= 0 || len(alive) <= maxPerThread {
		return alive
	}
	ranked := make([]models.Comment, len(alive))
	copy(ranked, alive)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[:maxPerThread]
}

// CapTotal retains at most maxTotal comments across all threads combined,
// the top ones by popularity score, with the same stable tie-break.
func CapTotal(comments []models.Comment, maxTotal int) []models.Comment {
	if maxTotal <= 0 || len(comments) <= maxTotal {
		return comments
	}
	ranked := make([]models.Comment, len(comments))
	copy(ranked, comments)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[:maxTotal]
}

func dropRemoved(comments []models.Comment) []models.Comment {
	var alive []models.Comment
	for _, c := range comments {
		if c.Removed {
			continue
		}
		if c.Body == "" || c.Body == "[deleted]" || c.Body == "[removed]" {
			continue
		}
		alive = append(alive, c)
	}
	return alive
}
