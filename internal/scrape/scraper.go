// Package scrape turns a capture URL into plain-text content. The fast path
// is a direct fetch with markup stripping; pages that render their content
// with scripts escalate to a headless render service, whose output is run
// through readability to prefer the semantic main-content region.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	// Browser-like identity; plenty of sites serve bot UAs an empty shell.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	fetchTimeout = 30 * time.Second
	maxBodySize  = 5 << 20 // 5MB

	// MinContentLength is the threshold below which the fast path is
	// considered to have missed script-rendered content.
	MinContentLength = 200

	// MaxContentLength bounds downstream token costs.
	MaxContentLength = 50_000
)

// Result is the outcome of one scrape attempt. RawHTML is populated with
// whatever markup was retrieved even when Success is false, so metadata
// extraction can still run on it.
type Result struct {
	Success bool
	Content string
	RawHTML string
	Err     string
}

// Renderer loads a URL in a full browser environment and returns the DOM
// markup after a settle period. Implementations live out of process.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Scraper fetches and reduces pages to plain text.
type Scraper struct {
	client   *http.Client
	renderer Renderer // nil disables the fallback
	logger   *slog.Logger
}

// New creates a Scraper. Pass a nil renderer to disable the render fallback.
func New(renderer Renderer) *Scraper {
	return &Scraper{
		client:   &http.Client{Timeout: fetchTimeout},
		renderer: renderer,
		logger:   slog.Default(),
	}
}

// Scrape fetches url and extracts plain-text content. The caller is expected
// to have filtered out non-fetchable schemes already.
func (s *Scraper) Scrape(ctx context.Context, url string) Result {
	body, contentType, err := s.fetch(ctx, url)
	if err != nil {
		return Result{Err: fmt.Sprintf("fetch failed: %v", err)}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "application/pdf" {
		text, err := extractPDFText(body)
		if err != nil {
			return Result{Err: fmt.Sprintf("pdf extraction failed: %v", err)}
		}
		return Result{Success: true, Content: truncate(text, MaxContentLength)}
	}

	if mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return Result{Err: fmt.Sprintf("unsupported content type %q", mediaType)}
	}

	raw := string(body)
	text := ExtractText(raw)
	if len(text) >= MinContentLength {
		return Result{Success: true, Content: truncate(text, MaxContentLength), RawHTML: raw}
	}

	// Too little text: content likely required script execution to render.
	s.logger.Debug("fast path below minimum length, escalating to renderer",
		"url", url, "extracted_len", len(text))

	if s.renderer == nil {
		return Result{RawHTML: raw, Err: "extracted content too short and no renderer configured"}
	}

	rendered, err := s.renderer.Render(ctx, url)
	if err != nil {
		return Result{RawHTML: raw, Err: fmt.Sprintf("render fallback failed: %v", err)}
	}

	text = extractMainContent(rendered, url)
	if len(text) < MinContentLength {
		return Result{RawHTML: rendered, Err: "rendered content still too short"}
	}
	return Result{Success: true, Content: truncate(text, MaxContentLength), RawHTML: rendered}
}

func (s *Scraper) fetch(ctx context.Context, url string) (body []byte, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && !utf8.RuneStart(cut[len(cut)-1]) {
		cut = cut[:len(cut)-1]
	}
	if r, size := utf8.DecodeLastRuneInString(cut); r == utf8.RuneError && size == 1 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
