// Package pipeline orchestrates capture enrichment: scrape, metadata
// extraction, AI analysis, embedding generation, and one merged persistence
// write. Individual stage failures degrade the result; only a missing record
// or a failed final write is fatal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rovda/clipd/internal/analyze"
	"github.com/rovda/clipd/internal/meta"
	"github.com/rovda/clipd/internal/scrape"
	"github.com/rovda/clipd/internal/storage"
)

// backgroundTimeout bounds a fire-and-forget run; a wedged external call
// must not pin a goroutine forever.
const backgroundTimeout = 5 * time.Minute

// CaptureStore is the persistence surface the pipeline needs.
type CaptureStore interface {
	GetCapture(id string) (storage.Capture, error)
	SetStatus(id, status string) error
	MarkError(id, msg string) error
	UpdateCapture(id string, u storage.CaptureUpdate) error
	ListPendingIDs(limit int) ([]string, error)
	ListMissingEmbeddingIDs(limit int) ([]string, error)
	CountMissingEmbedding() (int, error)
	ListMissingDisplayTitleIDs(limit int) ([]string, error)
	CountMissingDisplayTitle() (int, error)
	ListCategories() ([]storage.Category, error)
}

// Scraper fetches a URL and reduces it to plain text.
type Scraper interface {
	Scrape(ctx context.Context, url string) scrape.Result
}

// Analyzer produces the AI-derived enrichment fields.
type Analyzer interface {
	Analyze(ctx context.Context, captureID, title, content string, categories []storage.Category) analyze.Analysis
	DisplayTitle(ctx context.Context, captureID, title, content string) (string, error)
}

// Embedder generates the capture's embedding vector.
type Embedder interface {
	EmbedCapture(ctx context.Context, c storage.Capture) ([]float32, error)
}

// ImageResolver finds a representative remote image URL for a page.
type ImageResolver interface {
	ExtractImageURL(ctx context.Context, url, rawHTML string) string
}

// ImageStorer persists a copy of a remote image and returns its stable URL.
type ImageStorer interface {
	FetchAndStore(ctx context.Context, captureID, imageURL string) (string, error)
}

// Result is the outcome of one per-capture pipeline run.
type Result struct {
	CaptureID string `json:"capture_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// SweepResult aggregates a process-pending batch.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// BackfillResult aggregates a backfill batch.
type BackfillResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Pipeline runs capture enrichment. One capture at a time; "concurrency"
// inside a run means concurrently pending calls, not parallel captures.
type Pipeline struct {
	store    CaptureStore
	scraper  Scraper
	analyzer Analyzer
	embedder Embedder
	images   ImageResolver
	imgStore ImageStorer // optional; nil skips image persistence
	logger   *slog.Logger
}

// New wires a Pipeline. imgStore may be nil to disable image persistence.
func New(store CaptureStore, scraper Scraper, analyzer Analyzer, embedder Embedder, images ImageResolver, imgStore ImageStorer) *Pipeline {
	return &Pipeline{
		store:    store,
		scraper:  scraper,
		analyzer: analyzer,
		embedder: embedder,
		images:   images,
		imgStore: imgStore,
		logger:   slog.Default(),
	}
}

// Process runs the full enrichment pipeline on one capture id. It always
// leaves the record in completed or error state, never processing, and
// performs no writes at all when the record does not exist.
func (p *Pipeline) Process(ctx context.Context, id string) Result {
	start := time.Now()

	c, err := p.store.GetCapture(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{CaptureID: id, Error: "capture not found"}
		}
		return p.fail(id, fmt.Sprintf("loading capture: %v", err))
	}

	// Persist the processing transition immediately so external inspection
	// sees accurate status mid-run.
	if err := p.store.SetStatus(id, storage.StatusProcessing); err != nil {
		return p.fail(id, fmt.Sprintf("entering processing state: %v", err))
	}

	upd := storage.CaptureUpdate{}

	// Stage 1: scrape. Non-fatal; downstream stages fall back to the title.
	scraped := p.scraper.Scrape(ctx, c.URL)
	if scraped.Success {
		upd.Content = &scraped.Content
	} else {
		p.logger.Warn("scrape failed", "capture_id", id, "url", c.URL, "error", scraped.Err)
	}

	// Stage 2: metadata + image, independent lookups over the same markup.
	p.extractMetadata(ctx, id, c.URL, scraped.RawHTML, &upd)

	// Stage 3: analysis and embedding, concurrently; each caught on its own
	// so one failing never discards the other's output.
	analysis, vector := p.analyzeAndEmbed(ctx, c, scraped)
	mergeAnalysis(&upd, analysis)
	if vector != nil {
		upd.Embedding = vector
	}

	// Stage 4: single merged write. This one is fatal on failure.
	status := storage.StatusCompleted
	processedAt := time.Now().UTC()
	upd.Status = &status
	upd.ProcessedAt = &processedAt
	upd.ClearErrorMessage = true

	if err := p.store.UpdateCapture(id, upd); err != nil {
		return p.fail(id, fmt.Sprintf("persisting enrichment: %v", err))
	}

	p.logger.Info("capture processed",
		"capture_id", id,
		"content", upd.Content != nil,
		"summary", analysis.Summary != nil,
		"embedding", vector != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{CaptureID: id, Success: true}
}

// ProcessInBackground schedules a pipeline run without blocking the caller.
// There is no caller left to observe the result, so it is only logged.
func (p *Pipeline) ProcessInBackground(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		res := p.Process(ctx, id)
		if !res.Success {
			p.logger.Error("background processing failed", "capture_id", id, "error", res.Error)
		}
	}()
}

// ProcessPending selects up to limit pending captures, oldest first, and
// runs the pipeline on each sequentially. Sequential on purpose: the sweep
// bounds external API concurrency and cost. Individual failures are counted,
// never abort the sweep.
func (p *Pipeline) ProcessPending(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := p.store.ListPendingIDs(limit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing pending captures: %w", err)
	}

	var result SweepResult
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if res := p.Process(ctx, id); res.Success {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	p.logger.Info("pending sweep finished", "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

// extractMetadata runs platform, author, and image lookups concurrently.
// They only share the already-fetched markup, so they never wait on each
// other. All three degrade to absence.
func (p *Pipeline) extractMetadata(ctx context.Context, id, url, rawHTML string, upd *storage.CaptureUpdate) {
	var platform, author, imageURL string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		platform = meta.DetectPlatform(url)
		return nil
	})
	g.Go(func() error {
		author = meta.ExtractAuthor(rawHTML, url)
		return nil
	})
	g.Go(func() error {
		remote := p.images.ExtractImageURL(gctx, url, rawHTML)
		if remote == "" {
			return nil
		}
		if p.imgStore == nil {
			imageURL = remote
			return nil
		}
		stored, err := p.imgStore.FetchAndStore(gctx, id, remote)
		if err != nil {
			p.logger.Warn("image persistence failed", "capture_id", id, "image_url", remote, "error", err)
			return nil
		}
		imageURL = stored
		return nil
	})
	g.Wait()

	if platform != "" {
		upd.Platform = &platform
	}
	if author != "" {
		upd.Author = &author
	}
	if imageURL != "" {
		upd.ImageURL = &imageURL
	}
}

// analyzeAndEmbed issues the analysis calls and the embedding call
// concurrently and returns whatever succeeded.
func (p *Pipeline) analyzeAndEmbed(ctx context.Context, c storage.Capture, scraped scrape.Result) (analyze.Analysis, []float32) {
	content := ""
	if scraped.Success {
		content = scraped.Content
	}

	var analysis analyze.Analysis
	var vector []float32
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		categories, err := p.store.ListCategories()
		if err != nil {
			p.logger.Warn("loading categories failed", "capture_id", c.ID, "error", err)
		}
		analysis = p.analyzer.Analyze(ctx, c.ID, c.Title, content, categories)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// The embedding composes from the record as it stands plus this
		// run's content; it does not wait for the fresh summary.
		ec := c
		if content != "" {
			ec.Content = &content
		}
		vec, err := p.embedder.EmbedCapture(ctx, ec)
		if err != nil {
			p.logger.Warn("embedding generation failed", "capture_id", c.ID, "error", err)
			return
		}
		vector = vec
	}()

	wg.Wait()
	return analysis, vector
}

// mergeAnalysis copies succeeded analysis fields into the update, leaving
// failed ones unset so prior values survive.
func mergeAnalysis(upd *storage.CaptureUpdate, a analyze.Analysis) {
	upd.Summary = a.Summary
	upd.Category = a.Category
	upd.Tags = a.Tags
	upd.QualityScore = a.QualityScore
	upd.ActionabilityScore = a.ActionabilityScore
	upd.DisplayTitle = a.DisplayTitle
	upd.Takeaways = a.Takeaways
	upd.ActionItems = a.ActionItems
}

// fail marks the capture as errored and returns the failure result. Partial
// enrichment from the current run is deliberately not persisted.
func (p *Pipeline) fail(id, msg string) Result {
	if err := p.store.MarkError(id, msg); err != nil {
		p.logger.Error("marking capture as errored failed", "capture_id", id, "error", err)
	}
	return Result{CaptureID: id, Error: msg}
}
