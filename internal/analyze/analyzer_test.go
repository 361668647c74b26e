package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rovda/clipd/internal/llm"
)

// fakeChatter routes each call to a canned response based on the system
// prompt, recording call order.
type fakeChatter struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	failures  map[string]bool
}

func (f *fakeChatter) Chat(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error) {
	op := operationFor(p.System)
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()

	if f.failures[op] {
		return "", llm.Usage{}, fmt.Errorf("%s backend unavailable", op)
	}
	return f.responses[op], llm.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}, nil
}

func operationFor(system string) string {
	switch {
	case system == summarySystemPrompt:
		return "summary"
	case system == scoresSystemPrompt:
		return "scores"
	case system == titleSystemPrompt:
		return "title"
	case system == insightsSystemPrompt:
		return "insights"
	case strings.Contains(system, "category"):
		return "categorize"
	default:
		return "unknown"
	}
}

func happyChatter() *fakeChatter {
	return &fakeChatter{
		responses: map[string]string{
			"summary":    "A concise summary.",
			"categorize": `{"category": "article", "tags": ["go"]}`,
			"scores":     `{"quality": 8, "actionability": 4}`,
			"title":      "Clean Title",
			"insights":   `{"takeaways": ["t1"], "action_items": ["a1"]}`,
		},
		failures: map[string]bool{},
	}
}

type recordedUsage struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordedUsage) Record(captureID, model, operation string, usage llm.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation)
}

func TestAnalyzeAllSucceed(t *testing.T) {
	chatter := happyChatter()
	usage := &recordedUsage{}
	a := New(chatter, usage, "gpt-4o-mini")

	res := a.Analyze(context.Background(), "cap-1", "Title", "some content", testCategories)

	if res.Summary == nil || *res.Summary != "A concise summary." {
		t.Errorf("Summary = %v", res.Summary)
	}
	if res.Category == nil || *res.Category != "article" {
		t.Errorf("Category = %v", res.Category)
	}
	if res.Tags == nil || len(*res.Tags) != 1 || (*res.Tags)[0] != "go" {
		t.Errorf("Tags = %v", res.Tags)
	}
	if res.QualityScore == nil || *res.QualityScore != 8 {
		t.Errorf("QualityScore = %v", res.QualityScore)
	}
	if res.ActionabilityScore == nil || *res.ActionabilityScore != 4 {
		t.Errorf("ActionabilityScore = %v", res.ActionabilityScore)
	}
	if res.DisplayTitle == nil || *res.DisplayTitle != "Clean Title" {
		t.Errorf("DisplayTitle = %v", res.DisplayTitle)
	}
	if res.Takeaways == nil || len(*res.Takeaways) != 1 {
		t.Errorf("Takeaways = %v", res.Takeaways)
	}
	if res.ActionItems == nil || len(*res.ActionItems) != 1 {
		t.Errorf("ActionItems = %v", res.ActionItems)
	}

	usage.mu.Lock()
	defer usage.mu.Unlock()
	if len(usage.ops) != 5 {
		t.Errorf("usage recorded for %d operations, want 5: %v", len(usage.ops), usage.ops)
	}
}

func TestAnalyzeOneFailureLeavesOthers(t *testing.T) {
	chatter := happyChatter()
	chatter.failures["insights"] = true
	a := New(chatter, nil, "gpt-4o-mini")

	res := a.Analyze(context.Background(), "cap-1", "Title", "content", testCategories)

	if res.Takeaways != nil || res.ActionItems != nil {
		t.Error("failed insights should leave fields nil")
	}
	if res.Summary == nil || res.Category == nil || res.DisplayTitle == nil {
		t.Error("other branches should still succeed")
	}
}

func TestAnalyzeSummaryFailureSkipsScores(t *testing.T) {
	chatter := happyChatter()
	chatter.failures["summary"] = true
	a := New(chatter, nil, "gpt-4o-mini")

	res := a.Analyze(context.Background(), "cap-1", "Title", "content", testCategories)

	if res.Summary != nil {
		t.Error("Summary should be nil")
	}
	if res.QualityScore != nil || res.ActionabilityScore != nil {
		t.Error("scores depend on the summary and should be skipped")
	}

	chatter.mu.Lock()
	defer chatter.mu.Unlock()
	for _, op := range chatter.calls {
		if op == "scores" {
			t.Error("scores call issued despite summary failure")
		}
	}
}

func TestAnalyzeEmptyContentUsesTitle(t *testing.T) {
	var captured string
	chatter := happyChatter()
	a := New(chatterFunc(func(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error) {
		if operationFor(p.System) == "summary" {
			captured = p.User
		}
		return chatter.Chat(ctx, p)
	}), nil, "gpt-4o-mini")

	a.Analyze(context.Background(), "cap-1", "Only The Title", "", testCategories)

	if !strings.Contains(captured, "Only The Title") {
		t.Errorf("summary prompt %q does not fall back to the title", captured)
	}
}

type chatterFunc func(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error)

func (f chatterFunc) Chat(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error) {
	return f(ctx, p)
}

func TestAnalyzeTruncatesLongContentOnRuneBoundary(t *testing.T) {
	var captured string
	chatter := happyChatter()
	a := New(chatterFunc(func(ctx context.Context, p llm.ChatParams) (string, llm.Usage, error) {
		if operationFor(p.System) == "summary" {
			captured = p.User
		}
		return chatter.Chat(ctx, p)
	}), nil, "gpt-4o-mini")

	a.Analyze(context.Background(), "cap-1", "Title", strings.Repeat("é", analysisContentLimit), testCategories)

	if !utf8.ValidString(captured) {
		t.Error("truncated content fed invalid UTF-8 into the prompt")
	}

	for max := 1; max < 8; max++ {
		got := truncateInput("ééé", max)
		if len(got) > max {
			t.Errorf("truncateInput(%d) returned %d bytes", max, len(got))
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateInput(%d) produced invalid UTF-8", max)
		}
	}
}

func TestDisplayTitleBackfill(t *testing.T) {
	chatter := happyChatter()
	a := New(chatter, nil, "gpt-4o-mini")

	title, err := a.DisplayTitle(context.Background(), "cap-1", "Raw Title", "content")
	if err != nil {
		t.Fatalf("DisplayTitle: %v", err)
	}
	if title != "Clean Title" {
		t.Errorf("title = %q", title)
	}

	chatter.failures["title"] = true
	if _, err := a.DisplayTitle(context.Background(), "cap-1", "Raw Title", "content"); err == nil {
		t.Error("expected error when generation fails")
	}
}
