package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"threadlens/internal/errors"
	"threadlens/internal/selection"
	"threadlens/models"
)

// AddThreadResult reports the synchronous outcome of an add-thread trigger.
type AddThreadResult struct {
	ThreadID      string `json:"thread_id"`
	AlreadyExists bool   `json:"already_exists"`
}

// StartAddThread resolves a pasted thread URL and, when the thread is new to
// this research, launches a background pass that collects and scores it.
// The already-present case is answered synchronously with no worker started.
func (w *Worker) StartAddThread(ctx context.Context, researchID, rawURL string) (AddThreadResult, error) {
	research, err := w.store.GetResearch(ctx, researchID)
	if err != nil {
		return AddThreadResult{}, err
	}
	if research == nil {
		return AddThreadResult{}, errors.NotFound("research")
	}

	threadID := w.parseThreadURL(rawURL)
	if threadID == "" {
		return AddThreadResult{}, errors.InvalidInput("could not extract a thread id from that URL")
	}

	existing, err := w.store.ExistingThreadIDs(ctx, researchID)
	if err != nil {
		return AddThreadResult{}, err
	}
	if existing[threadID] {
		return AddThreadResult{ThreadID: threadID, AlreadyExists: true}, nil
	}

	stream, ok := w.registry.Open(researchID, models.OpAddThread)
	if !ok {
		return AddThreadResult{}, errors.Conflict("a thread is already being added to this research")
	}

	go w.runAddThread(context.Background(), research, threadID, stream)
	return AddThreadResult{ThreadID: threadID}, nil
}

func (w *Worker) runAddThread(ctx context.Context, research *models.Research, threadID string, stream *Stream) {
	researchID := research.ID
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] PANIC in add-thread %s/%s: %v", researchID, threadID, r)
			stream.Error(fmt.Sprintf("internal error: %v", r))
		}
		w.logger.Info("Add-thread %s/%s finished in %.1fs", researchID, threadID, time.Since(start).Seconds())
	}()

	stream.Progress(models.StageFetching, "Fetching thread...", 10)
	thread, err := w.content.FetchThread(ctx, threadID)
	if err != nil {
		stream.Error(fmt.Sprintf("failed to fetch thread: %v", err))
		return
	}

	stream.Progress(models.StageCollecting, fmt.Sprintf("Collecting comments from: %s...", truncate(thread.Title, 60)), 30)
	maxPerThread := research.Settings.MaxCommentsPerThread
	comments, err := w.content.FetchComments(ctx, threadID, maxPerThread*2)
	if err != nil {
		stream.Error(fmt.Sprintf("failed to collect comments: %v", err))
		return
	}
	comments = selection.CapPerThread(comments, maxPerThread)

	stream.Progress(models.StageScoring, fmt.Sprintf("Scoring %d comments...", len(comments)), 50)
	scored := w.scoring.ScoreComments(ctx, research.Question, comments, func(batchNum, totalBatches int) {
		pct := 50 + 45*batchNum/totalBatches
		stream.Progress(models.StageScoring, fmt.Sprintf("Scoring batch %d/%d...", batchNum, totalBatches), pct)
	})

	if err := w.store.SaveThreads(ctx, researchID, []models.Thread{*thread}); err != nil {
		stream.Error(fmt.Sprintf("failed to save thread: %v", err))
		return
	}
	if err := w.store.SaveComments(ctx, researchID, scored); err != nil {
		stream.Error(fmt.Sprintf("failed to save comments: %v", err))
		return
	}
	if err := w.store.RecalculateCounts(ctx, researchID); err != nil {
		log.Printf("[Pipeline] Count recalculation failed for %s: %v", researchID, err)
	}
	w.export(ctx, researchID)
	stream.Complete(fmt.Sprintf("Added thread with %d comments", len(scored)))
}

// RemoveThread deletes a thread and its comments synchronously, then
// refreshes the counts and the export artifact.
func (w *Worker) RemoveThread(ctx context.Context, researchID, threadID string) error {
	if err := w.store.DeleteThread(ctx, researchID, threadID); err != nil {
		return err
	}
	w.export(ctx, researchID)
	return nil
}
