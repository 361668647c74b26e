// Package embed composes capture text and generates fixed-dimension
// embedding vectors for similarity search.
package embed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rovda/clipd/internal/storage"
)

const (
	// Dimensions is the fixed width of every stored vector.
	Dimensions = 1536

	// The backend rejects oversized inputs, so truncation happens client-side
	// using a conservative chars-per-token estimate.
	maxInputTokens = 8000
	charsPerToken  = 4
	maxInputChars  = maxInputTokens * charsPerToken

	// contentPrefixChars bounds how much raw content joins the composed text;
	// curated fields carry most of the semantic signal.
	contentPrefixChars = 10000
)

// Client is the embedding capability the Embedder consumes.
type Client interface {
	Embed(ctx context.Context, model, text string, dimensions int) ([]float32, int, error)
}

// Embedder generates capture embeddings via a text-embedding backend.
type Embedder struct {
	client Client
	model  string
}

// New creates an Embedder using the given client and model name.
func New(client Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// EmbedCapture composes the capture's text and returns its embedding vector.
// The vector is always complete (Dimensions wide) or the call errors.
func (e *Embedder) EmbedCapture(ctx context.Context, c storage.Capture) ([]float32, error) {
	text := ComposeText(c)
	if text == "" {
		return nil, fmt.Errorf("capture %s has no text to embed", c.ID)
	}
	return e.embed(ctx, text)
}

// EmbedQuery embeds raw query text for search-time use, bypassing the
// capture composition step.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty query")
	}
	return e.embed(ctx, text)
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	text = truncateInput(text, maxInputChars)

	vec, _, err := e.client.Embed(ctx, e.model, text, Dimensions)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) != Dimensions {
		return nil, fmt.Errorf("backend returned %d dimensions, want %d", len(vec), Dimensions)
	}
	return vec, nil
}

// ComposeText builds the embedding input: richest signal first (title,
// summary, category, tags), raw content last, so length truncation drops the
// noisiest part rather than the curated one.
func ComposeText(c storage.Capture) string {
	var parts []string

	title := c.Title
	if c.DisplayTitle != nil && *c.DisplayTitle != "" {
		title = *c.DisplayTitle
	}
	if title != "" {
		parts = append(parts, title)
	}
	if c.Summary != nil && *c.Summary != "" {
		parts = append(parts, *c.Summary)
	}
	if c.Category != nil && *c.Category != "" {
		parts = append(parts, "Category: "+*c.Category)
	}
	if len(c.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(c.Tags, ", "))
	}
	if c.Content != nil && *c.Content != "" {
		parts = append(parts, truncateInput(*c.Content, contentPrefixChars))
	}

	return strings.TrimSpace(strings.Join(parts, "\n\n"))
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
