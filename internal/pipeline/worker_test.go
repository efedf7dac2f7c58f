package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"threadlens/internal/scoring"
	"threadlens/models"
	"threadlens/ports"
)

// fakeStore is an in-memory ResearchStore.
type fakeStore struct {
	mu         sync.Mutex
	researches map[string]*models.Research
	threads    map[string][]models.Thread
	comments   map[string][]models.Comment
	notes      map[string]string

	saveThreadsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		researches: make(map[string]*models.Research),
		threads:    make(map[string][]models.Thread),
		comments:   make(map[string][]models.Comment),
		notes:      make(map[string]string),
	}
}

func (f *fakeStore) CreateResearch(ctx context.Context, id, question string, settings models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researches[id] = &models.Research{
		ID: id, Question: question, Status: models.StatusPending,
		Settings: settings, CreatedAt: time.Now(),
	}
	return nil
}

func (f *fakeStore) GetResearch(ctx context.Context, id string) (*models.Research, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.researches[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (f *fakeStore) GetHistory(ctx context.Context, limit int) ([]models.Research, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Research
	for _, r := range f.researches {
		if !r.Archived {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researches[id].Status = status
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id, status string, numThreads, numComments int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.researches[id]
	r.Status = status
	r.NumThreads = numThreads
	r.NumComments = numComments
	return nil
}

func (f *fakeStore) GetSettings(ctx context.Context, id string) (models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.researches[id].Settings, nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, id string, mutate func(*models.Settings)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&f.researches[id].Settings)
	return nil
}

func (f *fakeStore) SaveSummary(ctx context.Context, id, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researches[id].Summary = &summary
	return nil
}

func (f *fakeStore) SetArchived(ctx context.Context, id string, archived bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researches[id].Archived = archived
	return nil
}

func (f *fakeStore) DeleteResearch(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.researches, id)
	delete(f.threads, id)
	delete(f.comments, id)
	return nil
}

func (f *fakeStore) SaveThreads(ctx context.Context, researchID string, threads []models.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveThreadsErr != nil {
		return f.saveThreadsErr
	}
	existing := make(map[string]bool)
	for _, t := range f.threads[researchID] {
		existing[t.ID] = true
	}
	for _, t := range threads {
		if !existing[t.ID] {
			t.ResearchID = researchID
			f.threads[researchID] = append(f.threads[researchID], t)
		}
	}
	return nil
}

func (f *fakeStore) GetThreads(ctx context.Context, researchID string) ([]models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Thread(nil), f.threads[researchID]...), nil
}

func (f *fakeStore) ExistingThreadIDs(ctx context.Context, researchID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool)
	for _, t := range f.threads[researchID] {
		ids[t.ID] = true
	}
	return ids, nil
}

func (f *fakeStore) DeleteThread(ctx context.Context, researchID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keptThreads []models.Thread
	for _, t := range f.threads[researchID] {
		if t.ID != threadID {
			keptThreads = append(keptThreads, t)
		}
	}
	f.threads[researchID] = keptThreads
	var keptComments []models.Comment
	for _, c := range f.comments[researchID] {
		if c.ThreadID != threadID {
			keptComments = append(keptComments, c)
		}
	}
	f.comments[researchID] = keptComments
	r := f.researches[researchID]
	r.NumThreads = len(keptThreads)
	r.NumComments = len(keptComments)
	return nil
}

func (f *fakeStore) SaveComments(ctx context.Context, researchID string, comments []models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[researchID] = append(f.comments[researchID], comments...)
	return nil
}

func (f *fakeStore) GetComments(ctx context.Context, researchID string) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Comment(nil), f.comments[researchID]...), nil
}

func (f *fakeStore) SetUserNote(ctx context.Context, researchID, commentID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[researchID+"/"+commentID] = note
	return nil
}

func (f *fakeStore) RecalculateCounts(ctx context.Context, researchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.researches[researchID]
	r.NumThreads = len(f.threads[researchID])
	r.NumComments = len(f.comments[researchID])
	return nil
}

// fakeContent serves a scripted set of threads and comments.
type fakeContent struct {
	mu              sync.Mutex
	searchResults   []models.Thread
	threadsByID     map[string]models.Thread
	commentsByID    map[string][]models.Comment
	searchCalls     int
	lastSearchOpts  ports.SearchOptions
	existingSubs    map[string]bool
	subredditChecks []string
}

func (f *fakeContent) SearchThreads(ctx context.Context, query string, opts ports.SearchOptions) ([]models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastSearchOpts = opts
	return append([]models.Thread(nil), f.searchResults...), nil
}

func (f *fakeContent) FetchThread(ctx context.Context, threadID string) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threadsByID[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	return &t, nil
}

func (f *fakeContent) FetchComments(ctx context.Context, threadID string, maxComments int) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Comment(nil), f.commentsByID[threadID]...), nil
}

func (f *fakeContent) SubredditExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subredditChecks = append(f.subredditChecks, name)
	return f.existingSubs[name], nil
}

type fakeWebSearch struct {
	ids []string
}

func (f *fakeWebSearch) SearchThreadIDs(ctx context.Context, queries, subreddits []string, maxResults, maxTotal int) []string {
	return f.ids
}

// scriptedLLM answers the three structured prompt shapes by inspecting the
// user prompt.
type scriptedLLM struct {
	subreddits []string
	queries    []string
}

func (f *scriptedLLM) CompleteStructured(ctx context.Context, system, user string, result any) error {
	switch {
	case strings.Contains(user, "Comments to score:"):
		var scores []string
		for _, line := range strings.Split(user, "\n") {
			if !strings.HasPrefix(line, "[Comment ID: ") {
				continue
			}
			id := strings.TrimSuffix(strings.Fields(line)[2], "]")
			scores = append(scores, fmt.Sprintf(`{"comment_id":%q,"relevancy_score":6,"reasoning":"relevant"}`, id))
		}
		return json.Unmarshal([]byte(`{"scores":[`+strings.Join(scores, ",")+`]}`), result)

	case strings.Contains(user, "Threads to score:"):
		var scores []string
		for _, line := range strings.Split(user, "\n") {
			if !strings.HasPrefix(line, "[Thread ID: ") {
				continue
			}
			id := strings.TrimSuffix(strings.Fields(line)[2], "]")
			scores = append(scores, fmt.Sprintf(`{"thread_id":%q,"relevancy_score":8}`, id))
		}
		return json.Unmarshal([]byte(`{"scores":[`+strings.Join(scores, ",")+`]}`), result)

	default:
		subs, _ := json.Marshal(f.subreddits)
		queries, _ := json.Marshal(f.queries)
		return json.Unmarshal([]byte(fmt.Sprintf(`{"subreddits":%s,"search_queries":%s}`, subs, queries)), result)
	}
}

func (f *scriptedLLM) CompleteText(ctx context.Context, system, user string) (string, error) {
	return "text", nil
}

type fakeExporter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExporter) Export(ctx context.Context, research *models.Research, threads []models.Thread, comments []models.Comment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "/tmp/export.xlsx", nil
}

func (f *fakeExporter) exportCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testParseURL(rawURL string) string {
	idx := strings.Index(rawURL, "comments/")
	if idx == -1 {
		return ""
	}
	rest := rawURL[idx+len("comments/"):]
	if slash := strings.IndexByte(rest, '/'); slash != -1 {
		rest = rest[:slash]
	}
	return rest
}

func buildWorker(store *fakeStore, content *fakeContent, web *fakeWebSearch, llm *scriptedLLM, exporter *fakeExporter) *Worker {
	return NewWorker(
		store, content, web,
		scoring.NewEngine(llm, 20),
		exporter, NewRegistry(),
		Limits{MaxThreadsLimit: 25, TotalCommentsCap: 750, WebSearchResults: 15},
		testParseURL,
	)
}

// drainUntilTerminal reads the stream until a terminal event or timeout.
func drainUntilTerminal(t *testing.T, events <-chan models.ProgressEvent) models.ProgressEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, open := <-events:
			if !open {
				t.Fatalf("stream closed without terminal event")
			}
			if event.Terminal() {
				return event
			}
		case <-deadline:
			t.Fatalf("no terminal event within deadline")
		}
	}
}

func defaultSettings() models.Settings {
	return models.Settings{MaxThreads: 15, MaxCommentsPerThread: 100, TimeFilter: "all"}
}

func TestResearchPipelineEndToEnd(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		searchResults: []models.Thread{
			{ID: "t1", Title: "native thread one", Score: 50},
			{ID: "t2", Title: "native thread two", Score: 30},
		},
		threadsByID: map[string]models.Thread{
			"t3": {ID: "t3", Title: "web thread", Score: 10},
		},
		commentsByID: map[string][]models.Comment{
			"t1": {{ID: "c1", ThreadID: "t1", Body: "answer one", Score: 5}},
			"t2": {{ID: "c2", ThreadID: "t2", Body: "answer two", Score: 3}},
			"t3": {{ID: "c3", ThreadID: "t3", Body: "answer three", Score: 1}},
		},
		existingSubs: map[string]bool{"golang": true},
	}
	web := &fakeWebSearch{ids: []string{"t3", "t1"}} // t1 dedups against native
	llm := &scriptedLLM{subreddits: []string{"golang", "nosuchsub"}, queries: []string{"query one"}}
	exporter := &fakeExporter{}
	worker := buildWorker(store, content, web, llm, exporter)

	_ = store.CreateResearch(context.Background(), "r1", "what do gophers think", defaultSettings())
	if err := worker.StartResearch("r1", "what do gophers think", defaultSettings(), nil); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}

	stream, ok := worker.Registry().Attach("r1", models.OpResearch)
	if !ok {
		t.Fatalf("no active research stream")
	}
	events := stream.Events()
	terminal := drainUntilTerminal(t, events)
	if terminal.Stage != models.StageComplete {
		t.Fatalf("terminal = %+v", terminal)
	}

	research, _ := store.GetResearch(context.Background(), "r1")
	if research.Status != models.StatusComplete {
		t.Errorf("status = %s", research.Status)
	}
	if research.NumThreads != 3 {
		t.Errorf("num_threads = %d, want 3 (2 native + 1 web, deduped)", research.NumThreads)
	}
	if research.NumComments != 3 {
		t.Errorf("num_comments = %d, want 3", research.NumComments)
	}

	// Only the validated subreddit is persisted.
	if len(research.Settings.Subreddits) != 1 || research.Settings.Subreddits[0] != "golang" {
		t.Errorf("validated subreddits = %v", research.Settings.Subreddits)
	}

	comments, _ := store.GetComments(context.Background(), "r1")
	for _, c := range comments {
		if c.RelevancyScore == nil {
			t.Errorf("comment %s not scored", c.ID)
		}
	}
	if exporter.exportCalls() != 1 {
		t.Errorf("export calls = %d, want 1", exporter.exportCalls())
	}
}

func TestResearchSeededPathSkipsDiscovery(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		threadsByID: map[string]models.Thread{
			"abc": {ID: "abc", Title: "seeded thread"},
		},
		commentsByID: map[string][]models.Comment{
			"abc": {{ID: "c1", ThreadID: "abc", Body: "seeded comment", Score: 1}},
		},
	}
	worker := buildWorker(store, content, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	seeds := []string{
		"https://reddit.com/r/golang/comments/abc/some_title/",
		"https://example.com/not-a-thread",
	}
	_ = store.CreateResearch(context.Background(), "r1", "q", defaultSettings())
	if err := worker.StartResearch("r1", "q", defaultSettings(), seeds); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}

	stream, _ := worker.Registry().Attach("r1", models.OpResearch)
	events := stream.Events()
	terminal := drainUntilTerminal(t, events)
	if terminal.Stage != models.StageComplete {
		t.Fatalf("terminal = %+v", terminal)
	}

	if content.searchCalls != 0 {
		t.Errorf("seeded path ran discovery search %d times", content.searchCalls)
	}
	threads, _ := store.GetThreads(context.Background(), "r1")
	if len(threads) != 1 || threads[0].ID != "abc" {
		t.Errorf("threads = %v", threads)
	}
}

func TestResearchDuplicateTriggerRejected(t *testing.T) {
	store := newFakeStore()
	worker := buildWorker(store, &fakeContent{}, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	// Hold the slot manually to simulate a long-running worker.
	if _, ok := worker.Registry().Open("r1", models.OpResearch); !ok {
		t.Fatalf("manual Open failed")
	}
	_ = store.CreateResearch(context.Background(), "r1", "q", defaultSettings())
	if err := worker.StartResearch("r1", "q", defaultSettings(), nil); err == nil {
		t.Errorf("expected duplicate trigger rejection")
	}
}

func TestExpandAddsNewThreadsAndRecordsSort(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		searchResults: []models.Thread{
			{ID: "old", Title: "already collected"},
			{ID: "fresh", Title: "new under top sort"},
		},
		threadsByID: map[string]models.Thread{},
		commentsByID: map[string][]models.Comment{
			"fresh": {{ID: "c9", ThreadID: "fresh", Body: "new insight", Score: 2}},
		},
	}
	worker := buildWorker(store, content, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	_ = store.UpdateStatus(ctx, "r1", models.StatusComplete, 1, 1)
	_ = store.SaveThreads(ctx, "r1", []models.Thread{{ID: "old", Title: "already collected"}})

	if err := worker.StartExpand(ctx, "r1"); err != nil {
		t.Fatalf("StartExpand: %v", err)
	}
	stream, _ := worker.Registry().Attach("r1", models.OpExpand)
	events := stream.Events()
	terminal := drainUntilTerminal(t, events)
	if terminal.Stage != models.StageComplete {
		t.Fatalf("terminal = %+v", terminal)
	}

	if content.lastSearchOpts.Sort != "top" {
		t.Errorf("expand sort = %q, want top", content.lastSearchOpts.Sort)
	}
	// Expand searches at the hard limit, not the configured count.
	if content.lastSearchOpts.MaxThreads != 25 {
		t.Errorf("expand search limit = %d, want 25", content.lastSearchOpts.MaxThreads)
	}

	settings, _ := store.GetSettings(ctx, "r1")
	if len(settings.SortsTried) != 1 || settings.SortsTried[0] != "top" {
		t.Errorf("sorts_tried = %v", settings.SortsTried)
	}

	threads, _ := store.GetThreads(ctx, "r1")
	if len(threads) != 2 {
		t.Fatalf("threads = %d, want 2 (old + fresh)", len(threads))
	}
	comments, _ := store.GetComments(ctx, "r1")
	if len(comments) != 1 || comments[0].ThreadID != "fresh" {
		t.Errorf("comments = %v", comments)
	}
}

func TestExpandWithoutCommentsSkipsThreadSave(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		searchResults: []models.Thread{{ID: "fresh", Title: "new but empty"}},
		threadsByID:   map[string]models.Thread{},
		commentsByID:  map[string][]models.Comment{},
	}
	worker := buildWorker(store, content, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	_ = store.UpdateStatus(ctx, "r1", models.StatusComplete, 0, 0)

	if err := worker.StartExpand(ctx, "r1"); err != nil {
		t.Fatalf("StartExpand: %v", err)
	}
	stream, _ := worker.Registry().Attach("r1", models.OpExpand)
	terminal := drainUntilTerminal(t, stream.Events())
	if terminal.Stage != models.StageComplete {
		t.Fatalf("terminal = %+v", terminal)
	}

	// A thread with no comments stays out of the result set, but the
	// strategy still counts as tried.
	threads, _ := store.GetThreads(ctx, "r1")
	if len(threads) != 0 {
		t.Errorf("threads = %v, want none", threads)
	}
	settings, _ := store.GetSettings(ctx, "r1")
	if len(settings.SortsTried) != 1 || settings.SortsTried[0] != "top" {
		t.Errorf("sorts_tried = %v", settings.SortsTried)
	}
}

func TestExpandSaveFailureLeavesSortAvailable(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		searchResults: []models.Thread{{ID: "fresh", Title: "new under top sort"}},
		threadsByID:   map[string]models.Thread{},
		commentsByID: map[string][]models.Comment{
			"fresh": {{ID: "c9", ThreadID: "fresh", Body: "new insight", Score: 2}},
		},
	}
	worker := buildWorker(store, content, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	_ = store.UpdateStatus(ctx, "r1", models.StatusComplete, 0, 0)
	store.saveThreadsErr = fmt.Errorf("disk full")

	if err := worker.StartExpand(ctx, "r1"); err != nil {
		t.Fatalf("StartExpand: %v", err)
	}
	stream, _ := worker.Registry().Attach("r1", models.OpExpand)
	terminal := drainUntilTerminal(t, stream.Events())
	if terminal.Stage != models.StageError {
		t.Fatalf("terminal = %+v, want error", terminal)
	}

	// The failed pass must not consume the strategy: a retry should run
	// the same sort again.
	settings, _ := store.GetSettings(ctx, "r1")
	if len(settings.SortsTried) != 0 {
		t.Errorf("sorts_tried = %v, want empty after failed save", settings.SortsTried)
	}
}

func TestExpandExhaustion(t *testing.T) {
	store := newFakeStore()
	worker := buildWorker(store, &fakeContent{}, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	_ = store.UpdateStatus(ctx, "r1", models.StatusComplete, 0, 0)
	_ = store.UpdateSettings(ctx, "r1", func(s *models.Settings) {
		s.SortsTried = append([]string(nil), models.ExpandSorts...)
	})

	exhausted, err := worker.ExpandExhausted(ctx, "r1")
	if err != nil || !exhausted {
		t.Errorf("ExpandExhausted = %v, %v; want true", exhausted, err)
	}
	if err := worker.StartExpand(ctx, "r1"); err == nil {
		t.Errorf("expected exhaustion error from StartExpand")
	}
}

func TestExpandRequiresCompleteStatus(t *testing.T) {
	store := newFakeStore()
	worker := buildWorker(store, &fakeContent{}, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	if err := worker.StartExpand(ctx, "r1"); err == nil {
		t.Errorf("expand against a pending research should fail")
	}
}

func TestAddThread(t *testing.T) {
	store := newFakeStore()
	content := &fakeContent{
		threadsByID: map[string]models.Thread{
			"xyz": {ID: "xyz", Title: "pasted thread"},
		},
		commentsByID: map[string][]models.Comment{
			"xyz": {{ID: "c1", ThreadID: "xyz", Body: "hand-picked", Score: 4}},
		},
	}
	worker := buildWorker(store, content, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())

	result, err := worker.StartAddThread(ctx, "r1", "https://reddit.com/r/golang/comments/xyz/title/")
	if err != nil {
		t.Fatalf("StartAddThread: %v", err)
	}
	if result.AlreadyExists || result.ThreadID != "xyz" {
		t.Fatalf("result = %+v", result)
	}

	stream, _ := worker.Registry().Attach("r1", models.OpAddThread)
	events := stream.Events()
	terminal := drainUntilTerminal(t, events)
	if terminal.Stage != models.StageComplete {
		t.Fatalf("terminal = %+v", terminal)
	}

	threads, _ := store.GetThreads(ctx, "r1")
	if len(threads) != 1 || threads[0].ID != "xyz" {
		t.Errorf("threads = %v", threads)
	}

	// Second add of the same thread short-circuits synchronously.
	again, err := worker.StartAddThread(ctx, "r1", "https://reddit.com/r/golang/comments/xyz/title/")
	if err != nil {
		t.Fatalf("second StartAddThread: %v", err)
	}
	if !again.AlreadyExists {
		t.Errorf("expected already_exists on duplicate add")
	}
}

func TestAddThreadRejectsBadURL(t *testing.T) {
	store := newFakeStore()
	worker := buildWorker(store, &fakeContent{}, &fakeWebSearch{}, &scriptedLLM{}, &fakeExporter{})

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	if _, err := worker.StartAddThread(ctx, "r1", "https://example.com/nothing"); err == nil {
		t.Errorf("expected error for an unparseable URL")
	}
}

func TestRemoveThread(t *testing.T) {
	store := newFakeStore()
	exporter := &fakeExporter{}
	worker := buildWorker(store, &fakeContent{}, &fakeWebSearch{}, &scriptedLLM{}, exporter)

	ctx := context.Background()
	_ = store.CreateResearch(ctx, "r1", "q", defaultSettings())
	_ = store.SaveThreads(ctx, "r1", []models.Thread{{ID: "t1"}, {ID: "t2"}})
	_ = store.SaveComments(ctx, "r1", []models.Comment{
		{ID: "c1", ThreadID: "t1"},
		{ID: "c2", ThreadID: "t2"},
	})
	_ = store.RecalculateCounts(ctx, "r1")

	if err := worker.RemoveThread(ctx, "r1", "t1"); err != nil {
		t.Fatalf("RemoveThread: %v", err)
	}

	threads, _ := store.GetThreads(ctx, "r1")
	if len(threads) != 1 || threads[0].ID != "t2" {
		t.Errorf("threads after remove = %v", threads)
	}
	comments, _ := store.GetComments(ctx, "r1")
	if len(comments) != 1 || comments[0].ThreadID != "t2" {
		t.Errorf("comments after remove = %v", comments)
	}
	research, _ := store.GetResearch(ctx, "r1")
	if research.NumThreads != 1 || research.NumComments != 1 {
		t.Errorf("counts = %d/%d, want 1/1", research.NumThreads, research.NumComments)
	}
	if exporter.exportCalls() != 1 {
		t.Errorf("remove should refresh the export")
	}
}
