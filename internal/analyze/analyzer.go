// Package analyze submits capture content to the text-generation backend and
// produces the AI-derived enrichment fields. Every sub-call is independent:
// one failing generation leaves its field nil and never aborts the others.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/rovda/clipd/internal/llm"
	"github.com/rovda/clipd/internal/storage"
)

// analysisContentLimit bounds how much raw content is submitted per call.
const analysisContentLimit = 8000

// Chatter is the text-generation capability the analyzer consumes.
type Chatter interface {
	Chat(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error)
}

// UsageReporter records token usage per generation call. Implementations
// must be best-effort and non-blocking.
type UsageReporter interface {
	Record(captureID, model, operation string, usage llm.Usage)
}

// Analysis holds the outcome of one analysis run. Nil fields mean the
// corresponding generation call failed and should be omitted from the update.
type Analysis struct {
	Summary            *string
	Category           *string
	Tags               *[]string
	QualityScore       *int
	ActionabilityScore *int
	DisplayTitle       *string
	Takeaways          *[]string
	ActionItems        *[]string
}

// Analyzer runs the generation calls for one capture.
type Analyzer struct {
	client Chatter
	usage  UsageReporter // optional
	model  string
	logger *slog.Logger
}

// New creates an Analyzer using the given backend client and model. Pass a
// nil reporter to disable usage accounting.
func New(client Chatter, usage UsageReporter, model string) *Analyzer {
	return &Analyzer{
		client: client,
		usage:  usage,
		model:  model,
		logger: slog.Default(),
	}
}

// Analyze produces summary, classification, scores, display title, and
// insights for the given capture content. Sub-calls run concurrently except
// scoring, which takes the fresh summary as its input and therefore runs
// after it. When content is empty (scrape failed) the title alone is used.
func (a *Analyzer) Analyze(ctx context.Context, captureID, title, content string, categories []storage.Category) Analysis {
	input := content
	if input == "" {
		input = title
	}
	input = truncateInput(input, analysisContentLimit)

	var result Analysis
	var wg sync.WaitGroup

	// Summary, then scores: scoring reads the summary, not raw content.
	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, ok := a.generateSummary(ctx, captureID, title, input)
		if !ok {
			return
		}
		result.Summary = &summary

		quality, actionability, ok := a.generateScores(ctx, captureID, title, summary)
		if !ok {
			return
		}
		result.QualityScore = &quality
		result.ActionabilityScore = &actionability
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		category, tags, ok := a.classify(ctx, captureID, title, input, categories)
		if !ok {
			return
		}
		result.Category = &category
		result.Tags = &tags
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		displayTitle, ok := a.generateDisplayTitle(ctx, captureID, title, input)
		if !ok {
			return
		}
		result.DisplayTitle = &displayTitle
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		takeaways, actionItems, ok := a.generateInsights(ctx, captureID, title, input)
		if !ok {
			return
		}
		result.Takeaways = &takeaways
		result.ActionItems = &actionItems
	}()

	wg.Wait()
	return result
}

func (a *Analyzer) generateSummary(ctx context.Context, captureID, title, input string) (string, bool) {
	raw, usage, err := a.client.Chat(ctx, llm.ChatParams{
		Model:       a.model,
		System:      summarySystemPrompt,
		User:        summaryUserPrompt(title, input),
		MaxTokens:   300,
		Temperature: 0.3,
	})
	a.report(captureID, "summary", usage)
	if err != nil {
		a.logger.Warn("summary generation failed", "capture_id", captureID, "error", err)
		return "", false
	}
	return collapseText(raw), true
}

func (a *Analyzer) classify(ctx context.Context, captureID, title, input string, categories []storage.Category) (string, []string, bool) {
	raw, usage, err := a.client.Chat(ctx, llm.ChatParams{
		Model:       a.model,
		System:      categorySystemPrompt(categories),
		User:        categoryUserPrompt(title, input),
		MaxTokens:   200,
		Temperature: 0.1,
	})
	a.report(captureID, "categorize", usage)
	if err != nil {
		a.logger.Warn("classification failed", "capture_id", captureID, "error", err)
		return "", nil, false
	}

	category, tags := parseCategoryResponse(raw, categories)
	return category, tags, true
}

func (a *Analyzer) generateScores(ctx context.Context, captureID, title, summary string) (int, int, bool) {
	raw, usage, err := a.client.Chat(ctx, llm.ChatParams{
		Model:       a.model,
		System:      scoresSystemPrompt,
		User:        scoresUserPrompt(title, summary),
		MaxTokens:   100,
		Temperature: 0.1,
	})
	a.report(captureID, "scores", usage)
	if err != nil {
		a.logger.Warn("scoring failed", "capture_id", captureID, "error", err)
		return 0, 0, false
	}

	quality, actionability := parseScoresResponse(raw)
	return quality, actionability, true
}

func (a *Analyzer) generateDisplayTitle(ctx context.Context, captureID, title, input string) (string, bool) {
	raw, usage, err := a.client.Chat(ctx, llm.ChatParams{
		Model:       a.model,
		System:      titleSystemPrompt,
		User:        titleUserPrompt(title, input),
		MaxTokens:   60,
		Temperature: 0.3,
	})
	a.report(captureID, "display_title", usage)
	if err != nil {
		a.logger.Warn("display title generation failed", "capture_id", captureID, "error", err)
		return "", false
	}

	cleaned := cleanDisplayTitle(raw)
	if cleaned == "" {
		cleaned = cleanDisplayTitle(title)
	}
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

func (a *Analyzer) generateInsights(ctx context.Context, captureID, title, input string) ([]string, []string, bool) {
	raw, usage, err := a.client.Chat(ctx, llm.ChatParams{
		Model:       a.model,
		System:      insightsSystemPrompt,
		User:        insightsUserPrompt(title, input),
		MaxTokens:   500,
		Temperature: 0.3,
	})
	a.report(captureID, "insights", usage)
	if err != nil {
		a.logger.Warn("insights generation failed", "capture_id", captureID, "error", err)
		return nil, nil, false
	}

	takeaways, actionItems, ok := parseInsightsResponse(raw)
	if !ok {
		a.logger.Warn("insights response unparseable", "capture_id", captureID)
		return nil, nil, false
	}
	return takeaways, actionItems, true
}

// DisplayTitle generates only the cleaned display title. Used by the
// backfill path, which must not re-run the other analysis calls.
func (a *Analyzer) DisplayTitle(ctx context.Context, captureID, title, content string) (string, error) {
	content = truncateInput(content, analysisContentLimit)
	if content == "" {
		content = title
	}
	t, ok := a.generateDisplayTitle(ctx, captureID, title, content)
	if !ok {
		return "", fmt.Errorf("display title generation failed for %s", captureID)
	}
	return t, nil
}

func (a *Analyzer) report(captureID, operation string, usage llm.Usage) {
	if a.usage == nil {
		return
	}
	a.usage.Record(captureID, a.model, operation, usage)
}

// truncateInput caps s at max bytes without splitting a multi-byte rune at
// the cut point.
func truncateInput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.RuneStart(cut[len(cut)-1]) {
		cut = cut[:len(cut)-1]
	}
	if r, size := utf8.DecodeLastRuneInString(cut); r == utf8.RuneError && size == 1 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
