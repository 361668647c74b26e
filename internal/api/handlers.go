// Package api exposes the capture service over HTTP: intake, processing
// control, search, media, and the admin surfaces for categories and usage.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rovda/clipd/internal/blob"
	"github.com/rovda/clipd/internal/pipeline"
	"github.com/rovda/clipd/internal/search"
	"github.com/rovda/clipd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// BlobReader serves and removes stored media objects.
type BlobReader interface {
	Get(filename string) (data []byte, contentType string, err error)
	DeleteMany(filenames []string) error
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Store    *storage.Store
	Pipeline *pipeline.Pipeline
	Searcher *search.Searcher
	Blobs    BlobReader // optional; nil disables /media and image cleanup
	Token    string
}

// CaptureRequest is the intake payload sent by the capture clients.
type CaptureRequest struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	SelectedText string `json:"selected_text"`
	FaviconURL   string `json:"favicon_url"`
}

// NewHandler builds the full router. Health and media stay unauthenticated so
// probes and <img> tags work without credentials; everything else requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/media/{filename}", handleMedia(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/captures", handleCreateCapture(deps))
		r.Get("/captures", handleListCaptures(deps))
		r.Get("/captures/{id}", handleGetCapture(deps))
		r.Delete("/captures/{id}", handleDeleteCapture(deps))
		r.Post("/captures/{id}/process", handleProcessCapture(deps))
		r.Get("/captures/{id}/usage", handleCaptureUsage(deps))

		r.Post("/process-pending", handleProcessPending(deps))
		r.Post("/backfill/embeddings", handleBackfillEmbeddings(deps))
		r.Post("/backfill/display-titles", handleBackfillDisplayTitles(deps))

		r.Get("/search", handleSearch(deps))

		r.Get("/categories", handleListCategories(deps))
		r.Put("/categories/{name}", handlePutCategory(deps))
		r.Delete("/categories/{name}", handleDeleteCategory(deps))

		r.Get("/usage/total", handleTotalCost(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateCapture stores the record immediately and schedules enrichment
// in the background, so the client (a browser extension mid-navigation) gets
// its response without waiting on any external API.
func handleCreateCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		if req.Title == "" {
			req.Title = req.URL
		}

		c := storage.Capture{
			ID:           uuid.New().String(),
			URL:          req.URL,
			Title:        req.Title,
			SelectedText: req.SelectedText,
			FaviconURL:   req.FaviconURL,
		}
		if err := deps.Store.CreateCapture(c); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save capture: %v", err)
			return
		}

		deps.Pipeline.ProcessInBackground(c.ID)

		writeJSON(w, http.StatusCreated, map[string]string{
			"id":     c.ID,
			"status": storage.StatusPending,
		})
	}
}

func handleListCaptures(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		captures, err := deps.Store.ListCaptures(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list captures: %v", err)
			return
		}
		if captures == nil {
			captures = []storage.Capture{}
		}
		writeJSON(w, http.StatusOK, captures)
	}
}

func handleGetCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		c, err := deps.Store.GetCapture(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "capture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get capture: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleDeleteCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Stored preview images are keyed by capture id; drop them first so
		// the blob store never leaks objects for deleted captures.
		if deps.Blobs != nil {
			c, err := deps.Store.GetCapture(id)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "capture not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get capture: %v", err)
				return
			}
			if c.ImageURL != nil {
				if name := mediaFilename(*c.ImageURL); name != "" {
					_ = deps.Blobs.DeleteMany([]string{name})
				}
			}
		}

		err := deps.Store.DeleteCapture(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "capture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete capture: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleProcessCapture runs the pipeline synchronously and reports the
// outcome, unlike intake which always detaches.
func handleProcessCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		res := deps.Pipeline.Process(r.Context(), id)
		if !res.Success {
			if res.Error == "capture not found" {
				httpError(w, http.StatusNotFound, "not_found", "capture not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "processing failed: %s", res.Error)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleProcessPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, 100)

		res, err := deps.Pipeline.ProcessPending(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "sweep failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleBackfillEmbeddings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		res, err := deps.Pipeline.BackfillEmbeddings(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "backfill failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleBackfillDisplayTitles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		res, err := deps.Pipeline.BackfillDisplayTitles(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "backfill failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", search.DefaultLimit, 50)

		results, err := deps.Searcher.Search(r.Context(), query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if results == nil {
			results = []storage.ScoredCapture{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleMedia(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Blobs == nil {
			httpError(w, http.StatusNotFound, "not_found", "media storage disabled")
			return
		}
		filename := chi.URLParam(r, "filename")
		if filename == "" || strings.Contains(filename, "/") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid filename")
			return
		}

		data, contentType, err := deps.Blobs.Get(filename)
		if errors.Is(err, blob.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "media not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read media: %v", err)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write(data)
	}
}

func handleListCategories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := deps.Store.ListCategories()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list categories: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

func handlePutCategory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "name")))
		if name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "category name is required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var body struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		c := storage.Category{Name: name, Description: body.Description}
		if err := deps.Store.UpsertCategory(c); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save category: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleDeleteCategory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "name")))

		if name == storage.FallbackCategory {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"category %q is the classification fallback and cannot be deleted", name)
			return
		}
		if err := deps.Store.DeleteCategory(name); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete category: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleCaptureUsage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		records, err := deps.Store.UsageForCapture(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list usage: %v", err)
			return
		}
		if records == nil {
			records = []storage.UsageRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleTotalCost(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := deps.Store.TotalCost()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to total cost: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"total_cost_usd": total})
	}
}

// mediaFilename extracts the object name from a /media/ URL. Remote image
// URLs (image persistence disabled) return empty.
func mediaFilename(imageURL string) string {
	idx := strings.Index(imageURL, "/media/")
	if idx < 0 {
		return ""
	}
	name := imageURL[idx+len("/media/"):]
	if name == "" || strings.Contains(name, "/") {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
