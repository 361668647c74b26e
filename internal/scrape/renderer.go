package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	renderTimeout = 45 * time.Second
	settleMillis  = 2000
)

// RenderClient talks to a headless rendering service over HTTP. The service
// navigates the URL in a real browser, waits for the page to settle, and
// returns the resulting DOM markup.
type RenderClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRenderClient creates a RenderClient for the given service base URL.
func NewRenderClient(baseURL string) *RenderClient {
	return &RenderClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: renderTimeout},
	}
}

type renderRequest struct {
	URL      string `json:"url"`
	WaitMs   int    `json:"wait_ms"`
	FullPage bool   `json:"full_page"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

// Render navigates url in the headless browser and returns the settled DOM.
func (c *RenderClient) Render(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(renderRequest{URL: url, WaitMs: settleMillis, FullPage: true})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("render: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding render response: %w", err)
	}
	if result.HTML == "" {
		return "", fmt.Errorf("render: empty document")
	}
	return result.HTML, nil
}
