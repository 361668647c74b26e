package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rovda/clipd/internal/config"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Save a URL into the capture library",
	Long: `Save a URL into the capture library. Enrichment runs in the background.

Examples:
  clipd add https://example.com/article
  clipd add https://example.com/article --title "Worth reading"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		selected, _ := cmd.Flags().GetString("selected-text")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"url": args[0]}
		if title != "" {
			req["title"] = title
		}
		if selected != "" {
			req["selected_text"] = selected
		}

		resp, err := client.post(cmd.Context(), "/captures", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved capture %s (enrichment running in background)", result["id"])
		return nil
	},
}

func init() {
	addCmd.Flags().String("title", "", "page title, if known")
	addCmd.Flags().String("selected-text", "", "highlighted text from the page")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over saved captures",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			ID           string   `json:"id"`
			URL          string   `json:"url"`
			Title        string   `json:"title"`
			DisplayTitle string   `json:"display_title"`
			Summary      string   `json:"summary"`
			Category     string   `json:"category"`
			Tags         []string `json:"tags"`
			Score        float32  `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			title := r.Title
			if r.DisplayTitle != "" {
				title = r.DisplayTitle
			}
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("%d. %s", i+1, title)), r.Score)
			fmt.Printf("  %s\n", colorize(colorCyan, r.URL))
			if r.Category != "" {
				fmt.Printf("  Category: %s\n", r.Category)
			}
			if len(r.Tags) > 0 {
				fmt.Printf("  Tags: %s\n", strings.Join(r.Tags, ", "))
			}
			if r.Summary != "" {
				summary := r.Summary
				if len(summary) > 500 {
					summary = summary[:500] + "..."
				}
				fmt.Printf("  %s\n", summary)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- captures ---

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "Manage saved captures",
}

var capturesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/captures?limit=%d", limit))
		if err != nil {
			return err
		}

		var captures []struct {
			ID           string `json:"id"`
			URL          string `json:"url"`
			Title        string `json:"title"`
			DisplayTitle string `json:"display_title"`
			Status       string `json:"status"`
			CreatedAt    string `json:"created_at"`
		}
		if err := decodeJSON(resp, &captures); err != nil {
			return err
		}

		if len(captures) == 0 {
			fmt.Println("No captures found.")
			return nil
		}

		for _, c := range captures {
			title := c.Title
			if c.DisplayTitle != "" {
				title = c.DisplayTitle
			}
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %-10s  %s\n",
				colorize(colorCyan, c.ID[:8]),
				c.Status,
				title,
			)
		}
		return nil
	},
}

var capturesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single capture as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/captures/"+args[0])
		if err != nil {
			return err
		}

		var capture any
		if err := decodeJSON(resp, &capture); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(capture)
	},
}

var capturesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/captures/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted capture %s", args[0])
		return nil
	},
}

func init() {
	capturesListCmd.Flags().Int("limit", 20, "maximum number of captures to list")
	capturesCmd.AddCommand(capturesListCmd)
	capturesCmd.AddCommand(capturesShowCmd)
	capturesCmd.AddCommand(capturesDeleteCmd)
}

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process [id]",
	Short: "Run enrichment on one capture, or sweep all pending with --pending",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, _ := cmd.Flags().GetBool("pending")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if pending {
			resp, err := client.post(cmd.Context(), fmt.Sprintf("/process-pending?limit=%d", limit), nil)
			if err != nil {
				return err
			}
			var sweep struct {
				Processed int `json:"processed"`
				Failed    int `json:"failed"`
			}
			if err := decodeJSON(resp, &sweep); err != nil {
				return err
			}
			printSuccess("Processed %d captures (%d failed)", sweep.Processed, sweep.Failed)
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("capture id required (or use --pending)")
		}

		printStep("Processing capture %s...", args[0])
		resp, err := client.post(cmd.Context(), "/captures/"+args[0]+"/process", nil)
		if err != nil {
			return err
		}

		var result struct {
			CaptureID string `json:"capture_id"`
			Success   bool   `json:"success"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Capture %s processed", result.CaptureID)
		return nil
	},
}

func init() {
	processCmd.Flags().Bool("pending", false, "process all pending captures, oldest first")
	processCmd.Flags().Int("limit", 10, "maximum captures per pending sweep")
}

// --- backfill ---

var backfillCmd = &cobra.Command{
	Use:   "backfill <embeddings|titles>",
	Short: "Backfill missing embeddings or display titles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		var path string
		switch args[0] {
		case "embeddings":
			path = "/backfill/embeddings"
		case "titles":
			path = "/backfill/display-titles"
		default:
			return fmt.Errorf("unknown backfill target %q (want embeddings or titles)", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Backfilling %s...", args[0])
		resp, err := client.post(cmd.Context(), fmt.Sprintf("%s?limit=%d", path, limit), nil)
		if err != nil {
			return err
		}

		var result struct {
			Processed int `json:"processed"`
			Failed    int `json:"failed"`
			Remaining int `json:"remaining"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Backfilled %d (%d failed, %d remaining)", result.Processed, result.Failed, result.Remaining)
		return nil
	},
}

func init() {
	backfillCmd.Flags().Int("limit", 50, "maximum captures per backfill batch")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- usage ---

var usageCmd = &cobra.Command{
	Use:   "usage [capture-id]",
	Short: "Show LLM token usage and cost",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			resp, err := client.get(cmd.Context(), "/usage/total")
			if err != nil {
				return err
			}
			var total struct {
				Total float64 `json:"total_cost_usd"`
			}
			if err := decodeJSON(resp, &total); err != nil {
				return err
			}
			printStatus("Total LLM spend", "$%.4f", total.Total)
			return nil
		}

		resp, err := client.get(cmd.Context(), "/captures/"+args[0]+"/usage")
		if err != nil {
			return err
		}

		var records []struct {
			Operation    string  `json:"operation"`
			Model        string  `json:"model"`
			InputTokens  int     `json:"input_tokens"`
			OutputTokens int     `json:"output_tokens"`
			CostUSD      float64 `json:"cost_usd"`
		}
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No usage recorded for this capture.")
			return nil
		}

		var total float64
		for _, r := range records {
			fmt.Printf("  %-15s %-25s in:%-6d out:%-6d $%.6f\n",
				r.Operation, r.Model, r.InputTokens, r.OutputTokens, r.CostUSD)
			total += r.CostUSD
		}
		printStatus("Total", "$%.6f", total)
		return nil
	},
}
