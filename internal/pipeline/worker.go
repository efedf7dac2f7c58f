// Package pipeline contains the staged research workflow and its
// incremental variants. One background goroutine runs per triggered
// operation; progress flows through the Registry, persistence happens at
// every stage boundary so partial results survive a later failure.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"threadlens/internal"
	"threadlens/internal/scoring"
	"threadlens/internal/selection"
	"threadlens/models"
	"threadlens/ports"
)

// Limits carries the discovery caps the workers enforce.
type Limits struct {
	MaxThreadsLimit  int
	TotalCommentsCap int
	WebSearchResults int
}

// DefaultLimits mirror the collection defaults.
var DefaultLimits = Limits{
	MaxThreadsLimit:  25,
	TotalCommentsCap: 750,
	WebSearchResults: 15,
}

// Worker drives the research pipeline and its variants against the
// content, web-search and text-intelligence adapters.
type Worker struct {
	store     ports.ResearchStore
	content   ports.ContentSource
	webSearch ports.WebSearcher
	scoring   *scoring.Engine
	exporter  ports.Exporter
	registry  *Registry
	logger    *internal.Logger
	limits    Limits

	// parseThreadURL maps a user-pasted URL to a source thread id, "" when
	// unparseable. Supplied by the content source adapter.
	parseThreadURL func(string) string
}

// NewWorker wires a pipeline worker.
func NewWorker(
	store ports.ResearchStore,
	content ports.ContentSource,
	webSearch ports.WebSearcher,
	engine *scoring.Engine,
	exporter ports.Exporter,
	registry *Registry,
	limits Limits,
	parseThreadURL func(string) string,
) *Worker {
	if limits.MaxThreadsLimit <= 0 {
		limits = DefaultLimits
	}
	return &Worker{
		store:          store,
		content:        content,
		webSearch:      webSearch,
		scoring:        engine,
		exporter:       exporter,
		registry:       registry,
		logger:         internal.NewDefaultLogger("Pipeline"),
		limits:         limits,
		parseThreadURL: parseThreadURL,
	}
}

// Registry exposes the progress registry for observer surfaces.
func (w *Worker) Registry() *Registry {
	return w.registry
}

// StartResearch launches the main pipeline in the background and returns
// immediately. A second concurrent research run for the same id is rejected.
func (w *Worker) StartResearch(researchID, question string, settings models.Settings, seedURLs []string) error {
	stream, ok := w.registry.Open(researchID, models.OpResearch)
	if !ok {
		return fmt.Errorf("research %s already has an active pipeline run", researchID)
	}

	go w.runResearch(context.Background(), researchID, question, settings, seedURLs, stream)
	return nil
}

func (w *Worker) runResearch(ctx context.Context, researchID, question string, settings models.Settings, seedURLs []string, stream *Stream) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] PANIC in research %s: %v", researchID, r)
			w.failResearch(ctx, researchID, stream, fmt.Sprintf("internal error: %v", r))
		}
		w.logger.Info("Research %s pipeline finished in %.1fs", researchID, time.Since(start).Seconds())
	}()

	if err := w.store.SetStatus(ctx, researchID, models.StatusProcessing); err != nil {
		w.failResearch(ctx, researchID, stream, fmt.Sprintf("failed to start research: %v", err))
		return
	}

	var threads []models.Thread
	var err error
	if len(seedURLs) > 0 {
		threads, err = w.resolveSeedThreads(ctx, researchID, seedURLs, stream)
	} else {
		threads, err = w.discoverThreads(ctx, researchID, question, settings, stream)
	}
	if err != nil {
		w.failResearch(ctx, researchID, stream, err.Error())
		return
	}
	if len(threads) == 0 {
		// Not an error: discovery legitimately found nothing to work with.
		if err := w.store.UpdateStatus(ctx, researchID, models.StatusComplete, 0, 0); err != nil {
			log.Printf("[Pipeline] Failed to finalize empty research %s: %v", researchID, err)
		}
		msg := "No threads found. Try a different query."
		if len(seedURLs) > 0 {
			msg = "None of the provided URLs are valid threads."
		}
		stream.Complete(msg)
		return
	}

	if err := w.store.SaveThreads(ctx, researchID, threads); err != nil {
		w.failResearch(ctx, researchID, stream, fmt.Sprintf("failed to save threads: %v", err))
		return
	}

	comments := w.collectComments(ctx, threads, settings.MaxCommentsPerThread, stream, 20, 40)
	stream.Progress(models.StageCollecting, fmt.Sprintf("Collected %d comments total", len(comments)), 60)

	if len(comments) == 0 {
		if err := w.store.UpdateStatus(ctx, researchID, models.StatusComplete, len(threads), 0); err != nil {
			log.Printf("[Pipeline] Failed to finalize research %s: %v", researchID, err)
		}
		stream.Complete("No comments found in the threads.")
		return
	}

	stream.Progress(models.StageScoring, fmt.Sprintf("Scoring %d comments for relevancy...", len(comments)), 62)
	scored := w.scoring.ScoreComments(ctx, question, comments, func(batchNum, totalBatches int) {
		pct := 62 + 33*batchNum/totalBatches
		stream.Progress(models.StageScoring, fmt.Sprintf("Scoring batch %d/%d...", batchNum, totalBatches), pct)
	})
	if err := w.store.SaveComments(ctx, researchID, scored); err != nil {
		w.failResearch(ctx, researchID, stream, fmt.Sprintf("failed to save scored comments: %v", err))
		return
	}
	stream.Progress(models.StageScoring, "Scoring complete", 95)

	if err := w.store.UpdateStatus(ctx, researchID, models.StatusComplete, len(threads), len(scored)); err != nil {
		w.failResearch(ctx, researchID, stream, fmt.Sprintf("failed to finalize research: %v", err))
		return
	}
	w.export(ctx, researchID)
	stream.Complete("Research complete!")
}

// discoverThreads runs the discovery and filtering stages: subreddit
// suggestion, native search, supplementary web search, merge, relevancy
// filter.
func (w *Worker) discoverThreads(ctx context.Context, researchID, question string, settings models.Settings, stream *Stream) ([]models.Thread, error) {
	stream.Progress(models.StageSearching, "Finding relevant subreddits...", 3)

	queries := []string{question}
	var validated []string
	suggestion, err := w.scoring.SuggestSubreddits(ctx, question)
	if err != nil {
		log.Printf("[Pipeline] Subreddit suggestion failed for %s, searching globally: %v", researchID, err)
	} else {
		validated = w.validateSubreddits(ctx, suggestion.Subreddits)
		if len(suggestion.SearchQueries) > 0 {
			queries = suggestion.SearchQueries
		}
	}

	if len(validated) > 0 {
		stream.Progress(models.StageSearching, fmt.Sprintf("Searching in: %s", subredditLabel(validated)), 8)
	} else {
		stream.Progress(models.StageSearching, "Searching across all of Reddit...", 8)
	}

	// Persist the validated subreddits so expand and the results page can
	// reuse them.
	if err := w.store.UpdateSettings(ctx, researchID, func(s *models.Settings) {
		s.Subreddits = validated
	}); err != nil {
		return nil, fmt.Errorf("failed to store validated subreddits: %w", err)
	}

	stream.Progress(models.StageSearching, "Searching for relevant threads...", 10)
	native, err := w.content.SearchThreads(ctx, question, ports.SearchOptions{
		Subreddits: validated,
		TimeFilter: settings.TimeFilter,
		MaxThreads: settings.MaxThreads,
	})
	if err != nil {
		return nil, fmt.Errorf("thread search failed: %w", err)
	}

	stream.Progress(models.StageSearching, fmt.Sprintf("Found %d threads via Reddit — searching the web for more...", len(native)), 14)
	webThreads := w.webDiscoverThreads(ctx, queries, validated, settings.MaxThreads)

	merged := selection.MergeThreads(native, webThreads)
	stream.Progress(models.StageSearching,
		fmt.Sprintf("Found %d threads total (%d from web search) — filtering for relevancy...", len(merged), len(merged)-len(native)), 18)

	if len(merged) == 0 {
		return nil, nil
	}

	relevant := w.scoring.FilterThreads(ctx, question, merged)
	stream.Progress(models.StageSearching, fmt.Sprintf("%d of %d threads are relevant", len(relevant), len(merged)), 22)
	return relevant, nil
}

// resolveSeedThreads implements the seeded fast path: each URL resolves
// directly to a thread, unparseable or unfetchable URLs are silently
// skipped, discovery and filtering never run.
func (w *Worker) resolveSeedThreads(ctx context.Context, researchID string, seedURLs []string, stream *Stream) ([]models.Thread, error) {
	stream.Progress(models.StageSearching, fmt.Sprintf("Fetching %d user-provided thread(s)...", len(seedURLs)), 10)

	var threads []models.Thread
	for _, rawURL := range seedURLs {
		threadID := w.parseThreadURL(rawURL)
		if threadID == "" {
			continue
		}
		thread, err := w.content.FetchThread(ctx, threadID)
		if err != nil {
			log.Printf("[Pipeline] Skipping seed URL %q: %v", rawURL, err)
			continue
		}
		threads = append(threads, *thread)
	}

	if len(threads) > 0 {
		stream.Progress(models.StageSearching, fmt.Sprintf("Loaded %d thread(s) — collecting comments...", len(threads)), 22)
	}
	return threads, nil
}

// webDiscoverThreads runs the supplementary web search and resolves found
// ids to threads. Always best-effort.
func (w *Worker) webDiscoverThreads(ctx context.Context, queries, subreddits []string, maxTotal int) []models.Thread {
	ids := w.webSearch.SearchThreadIDs(ctx, queries, subreddits, w.limits.WebSearchResults, maxTotal)

	var threads []models.Thread
	for _, id := range ids {
		thread, err := w.content.FetchThread(ctx, id)
		if err != nil {
			log.Printf("[Pipeline] Failed to fetch web-discovered thread %s: %v", id, err)
			continue
		}
		threads = append(threads, *thread)
	}
	return threads
}

// collectComments fetches each thread's comments, applies the per-thread
// cap as it goes and the global cap at the end. Progress is reported in the
// [pctFrom, pctFrom+pctSpan] range.
func (w *Worker) collectComments(ctx context.Context, threads []models.Thread, maxPerThread int, stream *Stream, pctFrom, pctSpan int) []models.Comment {
	var all []models.Comment
	for i, thread := range threads {
		stream.Progress(models.StageCollecting,
			fmt.Sprintf("Collecting comments from thread %d/%d: %s...", i+1, len(threads), truncate(thread.Title, 60)),
			pctFrom+pctSpan*i/len(threads))

		comments, err := w.content.FetchComments(ctx, thread.ID, maxPerThread*2)
		if err != nil {
			log.Printf("[Pipeline] Failed to collect comments for thread %s: %v", thread.ID, err)
			continue
		}
		all = append(all, selection.CapPerThread(comments, maxPerThread)...)
	}
	return selection.CapTotal(all, w.limits.TotalCommentsCap)
}

// validateSubreddits keeps only the suggested subreddits that actually
// exist. Lookup errors drop the candidate rather than failing discovery.
func (w *Worker) validateSubreddits(ctx context.Context, candidates []string) []string {
	var validated []string
	for _, name := range candidates {
		exists, err := w.content.SubredditExists(ctx, name)
		if err != nil {
			log.Printf("[Pipeline] Subreddit check failed for r/%s: %v", name, err)
			continue
		}
		if exists {
			validated = append(validated, name)
		}
	}
	return validated
}

// failResearch records the error status and emits the terminal error event.
// Commits from earlier stages are left in place.
func (w *Worker) failResearch(ctx context.Context, researchID string, stream *Stream, message string) {
	log.Printf("[Pipeline] Research %s failed: %s", researchID, message)
	research, err := w.store.GetResearch(ctx, researchID)
	numThreads, numComments := 0, 0
	if err == nil && research != nil {
		numThreads, numComments = research.NumThreads, research.NumComments
	}
	if err := w.store.UpdateStatus(ctx, researchID, models.StatusError, numThreads, numComments); err != nil {
		log.Printf("[Pipeline] Failed to record error status for %s: %v", researchID, err)
	}
	stream.Error(message)
}

// export regenerates the durable artifact for a research. Export failures
// are logged, never fatal: the data is already committed.
func (w *Worker) export(ctx context.Context, researchID string) {
	research, err := w.store.GetResearch(ctx, researchID)
	if err != nil || research == nil {
		log.Printf("[Pipeline] Export skipped for %s: research not loadable: %v", researchID, err)
		return
	}
	threads, err := w.store.GetThreads(ctx, researchID)
	if err != nil {
		log.Printf("[Pipeline] Export skipped for %s: %v", researchID, err)
		return
	}
	comments, err := w.store.GetComments(ctx, researchID)
	if err != nil {
		log.Printf("[Pipeline] Export skipped for %s: %v", researchID, err)
		return
	}
	if _, err := w.exporter.Export(ctx, research, threads, comments); err != nil {
		log.Printf("[Pipeline] Export failed for %s: %v", researchID, err)
	}
}

func subredditLabel(subreddits []string) string {
	label := ""
	for i, s := range subreddits {
		if i > 0 {
			label += ", "
		}
		label += "r/" + s
	}
	if label == "" {
		return "all of Reddit"
	}
	return label
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
