package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rovda/clipd/internal/analyze"
	"github.com/rovda/clipd/internal/api"
	"github.com/rovda/clipd/internal/blob"
	"github.com/rovda/clipd/internal/config"
	"github.com/rovda/clipd/internal/embed"
	"github.com/rovda/clipd/internal/ledger"
	"github.com/rovda/clipd/internal/llm"
	"github.com/rovda/clipd/internal/meta"
	"github.com/rovda/clipd/internal/pipeline"
	"github.com/rovda/clipd/internal/scrape"
	"github.com/rovda/clipd/internal/search"
	"github.com/rovda/clipd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clipd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running clipd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clipd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "clipd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clipd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("clipd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("clipd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Blob store for preview images, unless media persistence is disabled.
	var blobs *blob.Store
	var imgFetcher *blob.ImageFetcher
	if cfg.Storage.MediaEnabled {
		blobs, err = blob.Open(filepath.Join(cfg.Storage.DataDir, "media"), cfg.Server.BaseURL)
		if err != nil {
			return fmt.Errorf("opening media store: %w", err)
		}
		defer func() {
			if err := blobs.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing media store: %v\n", err)
			}
		}()
		imgFetcher = blob.NewImageFetcher(blobs)
	}

	// Build the enrichment pipeline.
	llmClient := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	usage := ledger.New(store, "openai")
	analyzer := analyze.New(llmClient, usage, cfg.LLM.ChatModel)
	embedder := embed.New(llmClient, cfg.LLM.EmbedModel)

	var renderer scrape.Renderer
	if cfg.Render.URL != "" {
		renderer = scrape.NewRenderClient(cfg.Render.URL)
	}
	scraper := scrape.New(renderer)
	images := meta.NewExtractor()

	var imgStore pipeline.ImageStorer
	if imgFetcher != nil {
		imgStore = imgFetcher
	}
	pipe := pipeline.New(store, scraper, analyzer, embedder, images, imgStore)
	searcher := search.New(embedder, store)

	// Periodic sweep picks up captures left pending by crashes or downtime.
	worker := pipeline.NewWorker(pipe, 5*time.Minute, cfg.Pipeline.SweepLimit)
	go worker.Run(ctx)

	var blobReader api.BlobReader
	if blobs != nil {
		blobReader = blobs
	}
	handler := api.NewHandler(api.Deps{
		Store:    store,
		Pipeline: pipe,
		Searcher: searcher,
		Blobs:    blobReader,
		Token:    cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio so local assistants can save and search captures.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Searcher:  searcher,
		Processor: pipe,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clipd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("clipd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop clipd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to clipd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Chat model", "%s", cfg.LLM.ChatModel)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	if cfg.Render.URL != "" {
		printStatus("Render service", "%s", cfg.Render.URL)
	} else {
		printStatus("Render service", "disabled")
	}

	if running {
		capsResp, err := apiGet(client, serverURL+"/captures?limit=100", cfg.Server.Token)
		if err == nil {
			var captures []json.RawMessage
			if json.NewDecoder(capsResp.Body).Decode(&captures) == nil {
				printStatus("Captures", "%s", countLabel(len(captures), 100))
			}
			capsResp.Body.Close()
		}
		costResp, err := apiGet(client, serverURL+"/usage/total", cfg.Server.Token)
		if err == nil {
			var cost struct {
				Total float64 `json:"total_cost_usd"`
			}
			if json.NewDecoder(costResp.Body).Decode(&cost) == nil {
				printStatus("LLM spend", "$%.4f", cost.Total)
			}
			costResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
