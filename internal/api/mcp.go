package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rovda/clipd/internal/search"
	"github.com/rovda/clipd/internal/storage"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]storage.ScoredCapture, error)
}

// MCPProcessor schedules background enrichment for newly saved captures.
type MCPProcessor interface {
	ProcessInBackground(id string)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Searcher  MCPSearcher
	Processor MCPProcessor
}

// NewMCPServer creates an MCP server exposing the capture library to
// assistants: save a URL, search semantically, and read single captures.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"clipd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("clipd — personal web capture library with AI enrichment and semantic search."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("save_capture",
			mcp.WithDescription("Save a URL into the capture library. Enrichment (scrape, summary, tags, embedding) runs in the background."),
			mcp.WithString("url", mcp.Description("The URL to capture"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Page title, if known")),
			mcp.WithString("selected_text", mcp.Description("Text the user highlighted on the page")),
		),
		mcpSaveCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("search_captures",
			mcp.WithDescription("Semantically search saved captures and return the best matches with summaries."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchCaptures(deps),
	)

	s.AddTool(
		mcp.NewTool("get_capture",
			mcp.WithDescription("Fetch one capture by id, including its full enrichment fields."),
			mcp.WithString("id", mcp.Description("Capture id"), mcp.Required()),
		),
		mcpGetCapture(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"captures://recent",
			"Recent Captures",
			mcp.WithResourceDescription("Last 10 saved captures (titles and summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSaveCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		url = strings.TrimSpace(url)
		if url == "" {
			return mcpError("url is required"), nil
		}

		title := req.GetString("title", "")
		if title == "" {
			title = url
		}

		c := storage.Capture{
			ID:           uuid.New().String(),
			URL:          url,
			Title:        title,
			SelectedText: req.GetString("selected_text", ""),
		}
		if err := deps.Store.CreateCapture(c); err != nil {
			return mcpError(fmt.Sprintf("failed to save capture: %v", err)), nil
		}

		deps.Processor.ProcessInBackground(c.ID)

		return mcpText(fmt.Sprintf("Saved capture %s, enrichment running in background", c.ID)), nil
	}
}

func mcpSearchCaptures(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > search.DefaultLimit*5 {
			limit = search.DefaultLimit * 5
		}

		results, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type captureResult struct {
			ID       string   `json:"id"`
			URL      string   `json:"url"`
			Title    string   `json:"title"`
			Summary  string   `json:"summary,omitempty"`
			Category string   `json:"category,omitempty"`
			Tags     []string `json:"tags,omitempty"`
			Score    float32  `json:"score"`
		}

		out := make([]captureResult, len(results))
		for i, r := range results {
			cr := captureResult{
				ID:    r.ID,
				URL:   r.URL,
				Title: r.Title,
				Tags:  r.Tags,
				Score: r.Score,
			}
			if r.DisplayTitle != nil && *r.DisplayTitle != "" {
				cr.Title = *r.DisplayTitle
			}
			if r.Summary != nil {
				cr.Summary = *r.Summary
			}
			if r.Category != nil {
				cr.Category = *r.Category
			}
			out[i] = cr
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		c, err := deps.Store.GetCapture(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("capture not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get capture: %v", err)), nil
		}

		b, err := json.Marshal(c)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal capture: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		captures, err := deps.Store.ListCaptures(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list captures: %w", err)
		}

		type captureSummary struct {
			ID        string `json:"id"`
			URL       string `json:"url"`
			Title     string `json:"title"`
			Summary   string `json:"summary,omitempty"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]captureSummary, len(captures))
		for i, c := range captures {
			cs := captureSummary{
				ID:        c.ID,
				URL:       c.URL,
				Title:     c.Title,
				Status:    c.Status,
				CreatedAt: c.CreatedAt.Format(time.RFC3339),
			}
			if c.DisplayTitle != nil && *c.DisplayTitle != "" {
				cs.Title = *c.DisplayTitle
			}
			if c.Summary != nil {
				cs.Summary = *c.Summary
			}
			summaries[i] = cs
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal captures: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
