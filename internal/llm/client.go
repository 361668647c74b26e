// Package llm is a minimal client for an OpenAI-compatible text-generation
// and embedding backend. Only the request/response shapes the pipeline needs
// are modeled; everything else is left to the server.
package llm

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
	chatTimeout  = 60 * time.Second
	embedTimeout = 30 * time.Second
)

// Usage holds the token counts reported by the backend for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatParams describes one generation call.
type ChatParams struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Client communicates with an OpenAI-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the given base URL (e.g. https://api.openai.com/v1).
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Per-call timeouts are set via context; keep the client unbounded.
		httpClient: &http.Client{Timeout: 0},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends a system instruction + user message to the given model and
// returns the generated text plus token usage.
func (c *Client) Chat(ctx context.Context, p ChatParams) (string, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	msgs := make([]chatMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: p.User})

	var result chatResponse
	err := c.post(ctx, "/chat/completions", chatRequest{
		Model:       p.Model,
		Messages:    msgs,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}, &result)
	if err != nil {
		return "", Usage{}, err
	}

	if len(result.Choices) == 0 {
		return "", result.Usage, fmt.Errorf("chat: empty choices array")
	}
	return result.Choices[0].Message.Content, result.Usage, nil
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

// Embed returns the embedding vector for the given text at the requested
// dimensionality, plus the input token count.
func (c *Client) Embed(ctx context.Context, model, text string, dimensions int) ([]float32, int, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	var result embedResponse
	err := c.post(ctx, "/embeddings", embedRequest{
		Model:      model,
		Input:      text,
		Dimensions: dimensions,
	}, &result)
	if err != nil {
		return nil, 0, err
	}

	if len(result.Data) == 0 {
		return nil, result.Usage.PromptTokens, fmt.Errorf("embed: empty data array")
	}
	return result.Data[0].Embedding, result.Usage.PromptTokens, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
