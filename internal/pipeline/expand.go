package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"threadlens/internal/errors"
	"threadlens/internal/selection"
	"threadlens/models"
	"threadlens/ports"
)

// StartExpand launches an expand pass for a completed research: it retries
// discovery under the next ranking strategy in the cycle and merges any new
// threads into the existing result set.
//
// Returns CodeExhausted when every strategy has been tried, CodeConflict when
// an expand is already running for this research.
func (w *Worker) StartExpand(ctx context.Context, researchID string) error {
	research, err := w.store.GetResearch(ctx, researchID)
	if err != nil {
		return err
	}
	if research == nil {
		return errors.NotFound("research")
	}
	if research.Status != models.StatusComplete {
		return errors.InvalidInput("research must be complete before expanding")
	}
	if models.NextSort(research.Settings.SortsTried) == "" {
		return errors.Exhausted("all search strategies have been tried")
	}

	stream, ok := w.registry.Open(researchID, models.OpExpand)
	if !ok {
		return errors.Conflict("an expand operation is already running for this research")
	}

	go w.runExpand(context.Background(), research, stream)
	return nil
}

// ExpandExhausted reports whether the research has no strategies left.
func (w *Worker) ExpandExhausted(ctx context.Context, researchID string) (bool, error) {
	settings, err := w.store.GetSettings(ctx, researchID)
	if err != nil {
		return false, err
	}
	return models.NextSort(settings.SortsTried) == "", nil
}

func (w *Worker) runExpand(ctx context.Context, research *models.Research, stream *Stream) {
	researchID := research.ID
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] PANIC in expand %s: %v", researchID, r)
			stream.Error(fmt.Sprintf("internal error: %v", r))
		}
		w.logger.Info("Expand %s finished in %.1fs", researchID, time.Since(start).Seconds())
	}()

	sort := models.NextSort(research.Settings.SortsTried)
	stream.Progress(models.StageSearching, fmt.Sprintf("Searching with sort: %s...", sort), 5)

	// Expand searches at the hard thread limit rather than the research's
	// configured count: later passes fight diminishing returns.
	native, err := w.content.SearchThreads(ctx, research.Question, ports.SearchOptions{
		Subreddits: research.Settings.Subreddits,
		Sort:       sort,
		TimeFilter: research.Settings.TimeFilter,
		MaxThreads: w.limits.MaxThreadsLimit,
	})
	if err != nil {
		stream.Error(fmt.Sprintf("thread search failed: %v", err))
		return
	}

	stream.Progress(models.StageSearching, "Searching the web for more threads...", 12)
	webQuery := fmt.Sprintf("%s %s", research.Question, sort)
	webThreads := w.webDiscoverThreads(ctx, []string{webQuery}, research.Settings.Subreddits, w.limits.MaxThreadsLimit)

	existing, err := w.store.ExistingThreadIDs(ctx, researchID)
	if err != nil {
		stream.Error(fmt.Sprintf("failed to load existing threads: %v", err))
		return
	}

	merged := selection.ExcludeThreadIDs(selection.MergeThreads(native, webThreads), existing)
	stream.Progress(models.StageSearching, fmt.Sprintf("Found %d new threads — filtering for relevancy...", len(merged)), 18)

	var fresh []models.Thread
	if len(merged) > 0 {
		fresh = w.scoring.FilterThreads(ctx, research.Question, merged)
	}

	// The strategy counts as tried only once the pass reaches a terminal
	// outcome: a failed save must leave it available for a retry.
	if len(fresh) == 0 {
		if err := w.markSortTried(ctx, researchID, sort); err != nil {
			stream.Error(fmt.Sprintf("failed to record search strategy: %v", err))
			return
		}
		stream.Complete(fmt.Sprintf("No new threads found with sort: %s", sort))
		return
	}

	comments := w.collectComments(ctx, fresh, research.Settings.MaxCommentsPerThread, stream, 20, 40)
	if len(comments) == 0 {
		// Without comments the fresh threads are not saved either, so they
		// only ever appear alongside their comments.
		if err := w.markSortTried(ctx, researchID, sort); err != nil {
			stream.Error(fmt.Sprintf("failed to record search strategy: %v", err))
			return
		}
		stream.Complete("No new comments found.")
		return
	}

	stream.Progress(models.StageScoring, fmt.Sprintf("Scoring %d new comments...", len(comments)), 62)
	scored := w.scoring.ScoreComments(ctx, research.Question, comments, func(batchNum, totalBatches int) {
		pct := 62 + 33*batchNum/totalBatches
		stream.Progress(models.StageScoring, fmt.Sprintf("Scoring batch %d/%d...", batchNum, totalBatches), pct)
	})

	// Threads and their comments commit together so a failure between the
	// two writes cannot leave orphaned threads with zero comments.
	if err := w.store.SaveThreads(ctx, researchID, fresh); err != nil {
		stream.Error(fmt.Sprintf("failed to save new threads: %v", err))
		return
	}
	if err := w.store.SaveComments(ctx, researchID, scored); err != nil {
		stream.Error(fmt.Sprintf("failed to save new comments: %v", err))
		return
	}
	if err := w.store.RecalculateCounts(ctx, researchID); err != nil {
		log.Printf("[Pipeline] Count recalculation failed for %s: %v", researchID, err)
	}
	if err := w.markSortTried(ctx, researchID, sort); err != nil {
		stream.Error(fmt.Sprintf("failed to record search strategy: %v", err))
		return
	}
	w.export(ctx, researchID)
	stream.Complete(fmt.Sprintf("Added %d threads and %d comments (sort: %s)", len(fresh), len(scored), sort))
}

// markSortTried appends the strategy to the research's cursor so repeat
// expands move on to the next one.
func (w *Worker) markSortTried(ctx context.Context, researchID, sort string) error {
	return w.store.UpdateSettings(ctx, researchID, func(s *models.Settings) {
		s.SortsTried = append(s.SortsTried, sort)
	})
}
