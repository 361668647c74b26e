// Package ledger records per-call token usage and derived cost. Recording is
// strictly best-effort: it runs off the caller's path and failures are logged
// and discarded, never propagated.
package ledger

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/rovda/clipd/internal/llm"
	"github.com/rovda/clipd/internal/storage"
)

// modelPricing maps model names to USD cost per million input/output tokens.
// Unknown models record zero cost but still keep the token counts.
type pricing struct {
	inputPerM  float64
	outputPerM float64
}

var modelPricing = map[string]pricing{
	"gpt-4o":                 {inputPerM: 2.50, outputPerM: 10.00},
	"gpt-4o-mini":            {inputPerM: 0.15, outputPerM: 0.60},
	"gpt-4.1":                {inputPerM: 2.00, outputPerM: 8.00},
	"gpt-4.1-mini":           {inputPerM: 0.40, outputPerM: 1.60},
	"text-embedding-3-small": {inputPerM: 0.02},
	"text-embedding-3-large": {inputPerM: 0.13},
}

// UsageStore persists ledger rows.
type UsageStore interface {
	InsertUsage(r storage.UsageRecord) error
}

// Recorder writes usage rows asynchronously.
type Recorder struct {
	store   UsageStore
	service string
	logger  *slog.Logger
}

// New creates a Recorder tagged with the given service name.
func New(store UsageStore, service string) *Recorder {
	return &Recorder{
		store:   store,
		service: service,
		logger:  slog.Default(),
	}
}

// Record persists one usage row in the background. It returns immediately
// and swallows every failure: cost accounting must never affect the call it
// accounts for.
func (r *Recorder) Record(captureID, model, operation string, usage llm.Usage) {
	if r == nil || r.store == nil {
		return
	}

	rec := storage.UsageRecord{
		ID:           uuid.New().String(),
		CaptureID:    captureID,
		Service:      r.service,
		Model:        model,
		Operation:    operation,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		CostUSD:      Cost(model, usage.PromptTokens, usage.CompletionTokens),
	}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Warn("usage recording panicked", "panic", p)
			}
		}()
		if err := r.store.InsertUsage(rec); err != nil {
			r.logger.Warn("usage recording failed",
				"capture_id", captureID, "operation", operation, "error", err)
		}
	}()
}

// Cost derives the USD cost of a call from the model's pricing.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.inputPerM + float64(outputTokens)/1e6*p.outputPerM
}
