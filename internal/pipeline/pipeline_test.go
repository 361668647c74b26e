package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/rovda/clipd/internal/analyze"
	"github.com/rovda/clipd/internal/scrape"
	"github.com/rovda/clipd/internal/storage"
)

// fakeStore is an in-memory CaptureStore that records every mutation.
type fakeStore struct {
	captures map[string]storage.Capture

	failGet    bool
	failUpdate bool
	failStatus bool

	statusCalls []string
	markedError string
	updates     []storage.CaptureUpdate
	pendingIDs  []string
}

func newFakeStore(captures ...storage.Capture) *fakeStore {
	s := &fakeStore{captures: make(map[string]storage.Capture)}
	for _, c := range captures {
		if c.Status == "" {
			c.Status = storage.StatusPending
		}
		s.captures[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetCapture(id string) (storage.Capture, error) {
	if s.failGet {
		return storage.Capture{}, fmt.Errorf("database locked")
	}
	c, ok := s.captures[id]
	if !ok {
		return storage.Capture{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) SetStatus(id, status string) error {
	if s.failStatus {
		return fmt.Errorf("write failed")
	}
	s.statusCalls = append(s.statusCalls, status)
	c := s.captures[id]
	c.Status = status
	s.captures[id] = c
	return nil
}

func (s *fakeStore) MarkError(id, msg string) error {
	s.markedError = msg
	c := s.captures[id]
	c.Status = storage.StatusError
	c.ErrorMessage = &msg
	s.captures[id] = c
	return nil
}

func (s *fakeStore) UpdateCapture(id string, u storage.CaptureUpdate) error {
	if s.failUpdate {
		return fmt.Errorf("disk full")
	}
	s.updates = append(s.updates, u)
	c := s.captures[id]
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Summary != nil {
		c.Summary = u.Summary
	}
	if u.Embedding != nil {
		c.Embedding = u.Embedding
	}
	if u.DisplayTitle != nil {
		c.DisplayTitle = u.DisplayTitle
	}
	s.captures[id] = c
	return nil
}

func (s *fakeStore) ListPendingIDs(limit int) ([]string, error) {
	if limit < len(s.pendingIDs) {
		return s.pendingIDs[:limit], nil
	}
	return s.pendingIDs, nil
}

func (s *fakeStore) ListMissingEmbeddingIDs(limit int) ([]string, error) {
	var ids []string
	for id, c := range s.captures {
		if c.Status == storage.StatusCompleted && c.Embedding == nil {
			ids = append(ids, id)
		}
	}
	if limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *fakeStore) CountMissingEmbedding() (int, error) {
	ids, _ := s.ListMissingEmbeddingIDs(1 << 30)
	return len(ids), nil
}

func (s *fakeStore) ListMissingDisplayTitleIDs(limit int) ([]string, error) {
	var ids []string
	for id, c := range s.captures {
		if c.Status == storage.StatusCompleted && c.DisplayTitle == nil {
			ids = append(ids, id)
		}
	}
	if limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *fakeStore) CountMissingDisplayTitle() (int, error) {
	ids, _ := s.ListMissingDisplayTitleIDs(1 << 30)
	return len(ids), nil
}

func (s *fakeStore) ListCategories() ([]storage.Category, error) {
	return []storage.Category{{Name: "article"}, {Name: storage.FallbackCategory}}, nil
}

type fakeScraper struct {
	result scrape.Result
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) scrape.Result {
	return f.result
}

type fakeAnalyzer struct {
	analysis  analyze.Analysis
	titleErr  error
	title     string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, captureID, title, content string, categories []storage.Category) analyze.Analysis {
	return f.analysis
}

func (f *fakeAnalyzer) DisplayTitle(ctx context.Context, captureID, title, content string) (string, error) {
	return f.title, f.titleErr
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedCapture(ctx context.Context, c storage.Capture) ([]float32, error) {
	return f.vec, f.err
}

type fakeImages struct {
	url string
}

func (f *fakeImages) ExtractImageURL(ctx context.Context, url, rawHTML string) string {
	return f.url
}

type fakeImageStore struct {
	stored string
	err    error
}

func (f *fakeImageStore) FetchAndStore(ctx context.Context, captureID, imageURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = imageURL
	return "http://127.0.0.1:4600/media/" + captureID + ".jpg", nil
}

func happyAnalysis() analyze.Analysis {
	summary := "a summary"
	category := "article"
	tags := []string{"go"}
	quality, actionability := 8, 4
	title := "Clean Title"
	takeaways := []string{"t1"}
	items := []string{"a1"}
	return analyze.Analysis{
		Summary:            &summary,
		Category:           &category,
		Tags:               &tags,
		QualityScore:       &quality,
		ActionabilityScore: &actionability,
		DisplayTitle:       &title,
		Takeaways:          &takeaways,
		ActionItems:        &items,
	}
}

func testPipeline(store *fakeStore, scraper Scraper, analyzer Analyzer, embedder Embedder) *Pipeline {
	return New(store, scraper, analyzer, embedder, &fakeImages{}, nil)
}

func TestProcessHappyPath(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	scraper := &fakeScraper{result: scrape.Result{Success: true, Content: "page text", RawHTML: "<html></html>"}}
	vec := make([]float32, 1536)
	p := testPipeline(store, scraper, &fakeAnalyzer{analysis: happyAnalysis()}, &fakeEmbedder{vec: vec})

	res := p.Process(context.Background(), "cap-1")
	if !res.Success {
		t.Fatalf("Process failed: %s", res.Error)
	}

	if len(store.statusCalls) != 1 || store.statusCalls[0] != storage.StatusProcessing {
		t.Errorf("status calls = %v, want [processing]", store.statusCalls)
	}
	if len(store.updates) != 1 {
		t.Fatalf("got %d updates, want exactly one merged write", len(store.updates))
	}
	u := store.updates[0]
	if u.Status == nil || *u.Status != storage.StatusCompleted {
		t.Errorf("Status = %v, want completed", u.Status)
	}
	if u.Content == nil || *u.Content != "page text" {
		t.Errorf("Content = %v", u.Content)
	}
	if u.Summary == nil || u.Embedding == nil || u.DisplayTitle == nil {
		t.Error("enrichment fields missing from the merged write")
	}
	if u.ProcessedAt == nil || !u.ClearErrorMessage {
		t.Error("completion bookkeeping missing")
	}
	if u.Platform == nil || *u.Platform != "example" {
		t.Errorf("Platform = %v", u.Platform)
	}
}

func TestProcessNotFoundWritesNothing(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{}, &fakeEmbedder{})

	res := p.Process(context.Background(), "missing")
	if res.Success {
		t.Fatal("expected failure")
	}
	if len(store.statusCalls) != 0 || len(store.updates) != 0 || store.markedError != "" {
		t.Error("a missing capture must trigger no writes at all")
	}
}

func TestProcessReprocessOverwrites(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	scraper := &fakeScraper{result: scrape.Result{Success: true, Content: "page text"}}
	analyzer := &fakeAnalyzer{analysis: happyAnalysis()}
	embedder := &fakeEmbedder{vec: make([]float32, 1536)}
	p := testPipeline(store, scraper, analyzer, embedder)

	if res := p.Process(context.Background(), "cap-1"); !res.Success {
		t.Fatalf("first run failed: %s", res.Error)
	}

	// The capture is completed now; a second run must overwrite every
	// enrichment field with fresh outputs, not skip or merge stale ones.
	summary := "a different summary"
	category := "reference"
	tags := []string{"new"}
	quality, actionability := 3, 9
	title := "New Title"
	analyzer.analysis = analyze.Analysis{
		Summary:            &summary,
		Category:           &category,
		Tags:               &tags,
		QualityScore:       &quality,
		ActionabilityScore: &actionability,
		DisplayTitle:       &title,
	}
	vec2 := make([]float32, 1536)
	vec2[0] = 1
	embedder.vec = vec2

	if res := p.Process(context.Background(), "cap-1"); !res.Success {
		t.Fatalf("second run failed: %s", res.Error)
	}

	if len(store.updates) != 2 {
		t.Fatalf("got %d updates, want one merged write per run", len(store.updates))
	}
	u := store.updates[1]
	if u.Summary == nil || *u.Summary != "a different summary" {
		t.Errorf("Summary = %v", u.Summary)
	}
	if u.Category == nil || *u.Category != "reference" {
		t.Errorf("Category = %v", u.Category)
	}
	if u.Tags == nil || len(*u.Tags) != 1 || (*u.Tags)[0] != "new" {
		t.Errorf("Tags = %v", u.Tags)
	}
	if u.QualityScore == nil || *u.QualityScore != 3 {
		t.Errorf("QualityScore = %v", u.QualityScore)
	}
	if u.ActionabilityScore == nil || *u.ActionabilityScore != 9 {
		t.Errorf("ActionabilityScore = %v", u.ActionabilityScore)
	}
	if u.DisplayTitle == nil || *u.DisplayTitle != "New Title" {
		t.Errorf("DisplayTitle = %v", u.DisplayTitle)
	}
	if u.Embedding == nil || u.Embedding[0] != 1 {
		t.Errorf("Embedding = %v", u.Embedding)
	}
	if u.Status == nil || *u.Status != storage.StatusCompleted || !u.ClearErrorMessage {
		t.Error("second run must re-complete the capture")
	}
	if store.captures["cap-1"].Status != storage.StatusCompleted {
		t.Errorf("status = %q, want completed", store.captures["cap-1"].Status)
	}
}

func TestProcessScrapeFailureCompletesDegraded(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	scraper := &fakeScraper{result: scrape.Result{Err: "fetch failed: HTTP 503"}}
	p := testPipeline(store, scraper, &fakeAnalyzer{analysis: happyAnalysis()}, &fakeEmbedder{err: fmt.Errorf("no text")})

	res := p.Process(context.Background(), "cap-1")
	if !res.Success {
		t.Fatalf("degraded run should still complete: %s", res.Error)
	}

	u := store.updates[0]
	if u.Content != nil {
		t.Error("failed scrape must leave Content unset")
	}
	if u.Embedding != nil {
		t.Error("failed embedding must leave Embedding unset")
	}
	if u.Status == nil || *u.Status != storage.StatusCompleted {
		t.Errorf("Status = %v, want completed", u.Status)
	}
	if u.Summary == nil {
		t.Error("analysis output should survive a scrape failure")
	}
}

func TestProcessFinalWriteFailureMarksError(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	store.failUpdate = true
	scraper := &fakeScraper{result: scrape.Result{Success: true, Content: "text"}}
	p := testPipeline(store, scraper, &fakeAnalyzer{analysis: happyAnalysis()}, &fakeEmbedder{vec: make([]float32, 1536)})

	res := p.Process(context.Background(), "cap-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if store.markedError == "" {
		t.Error("failed final write must mark the capture errored")
	}
	if store.captures["cap-1"].Status != storage.StatusError {
		t.Errorf("status = %q, want error", store.captures["cap-1"].Status)
	}
}

func TestProcessLoadFailureMarksError(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	store.failGet = true
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{}, &fakeEmbedder{})

	res := p.Process(context.Background(), "cap-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if store.markedError == "" {
		t.Error("a failed record fetch must attempt to mark the capture errored")
	}
	if len(store.updates) != 0 {
		t.Error("no enrichment write expected")
	}
}

func TestProcessStatusWriteFailureMarksError(t *testing.T) {
	store := newFakeStore(storage.Capture{ID: "cap-1", URL: "https://example.com", Title: "t"})
	store.failStatus = true
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{}, &fakeEmbedder{})

	res := p.Process(context.Background(), "cap-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if store.markedError == "" {
		t.Error("expected MarkError")
	}
}

func TestProcessPendingCountsFailures(t *testing.T) {
	store := newFakeStore(
		storage.Capture{ID: "a", URL: "https://example.com/a", Title: "a"},
		storage.Capture{ID: "b", URL: "https://example.com/b", Title: "b"},
	)
	store.pendingIDs = []string{"a", "b", "gone"}
	scraper := &fakeScraper{result: scrape.Result{Success: true, Content: "text"}}
	p := testPipeline(store, scraper, &fakeAnalyzer{analysis: happyAnalysis()}, &fakeEmbedder{vec: make([]float32, 1536)})

	res, err := p.ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if res.Processed != 2 || res.Failed != 1 {
		t.Errorf("sweep = %+v, want 2 processed, 1 failed", res)
	}
}

func TestBackfillEmbeddings(t *testing.T) {
	content := "stored content"
	store := newFakeStore(
		storage.Capture{ID: "a", URL: "https://example.com/a", Title: "a", Status: storage.StatusCompleted, Content: &content},
	)
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{}, &fakeEmbedder{vec: make([]float32, 1536)})

	res, err := p.BackfillEmbeddings(context.Background(), 10)
	if err != nil {
		t.Fatalf("BackfillEmbeddings: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	if store.captures["a"].Embedding == nil {
		t.Error("embedding not persisted")
	}

	// Only the embedding is written, nothing else.
	for _, u := range store.updates {
		if u.Summary != nil || u.Status != nil {
			t.Errorf("backfill wrote unexpected fields: %+v", u)
		}
	}
}

func TestBackfillEmbeddingsFailureCounted(t *testing.T) {
	store := newFakeStore(
		storage.Capture{ID: "a", URL: "https://example.com/a", Title: "a", Status: storage.StatusCompleted},
	)
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{}, &fakeEmbedder{err: fmt.Errorf("backend down")})

	res, err := p.BackfillEmbeddings(context.Background(), 10)
	if err != nil {
		t.Fatalf("BackfillEmbeddings: %v", err)
	}
	if res.Processed != 0 || res.Failed != 1 || res.Remaining != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestBackfillDisplayTitles(t *testing.T) {
	store := newFakeStore(
		storage.Capture{ID: "a", URL: "https://example.com/a", Title: "raw", Status: storage.StatusCompleted},
	)
	p := testPipeline(store, &fakeScraper{}, &fakeAnalyzer{title: "Clean Title"}, &fakeEmbedder{})

	res, err := p.BackfillDisplayTitles(context.Background(), 10)
	if err != nil {
		t.Fatalf("BackfillDisplayTitles: %v", err)
	}
	if res.Processed != 1 || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	got := store.captures["a"].DisplayTitle
	if got == nil || *got != "Clean Title" {
		t.Errorf("DisplayTitle = %v", got)
	}
}
