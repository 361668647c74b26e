package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Capture lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Capture is one saved web page plus everything the enrichment pipeline
// derived from it. Pointer fields are nullable: nil means the corresponding
// stage has not produced a value (yet, or at all).
type Capture struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	SelectedText string `json:"selected_text,omitempty"`
	FaviconURL   string `json:"favicon_url,omitempty"`

	Content            *string  `json:"content,omitempty"`
	Summary            *string  `json:"summary,omitempty"`
	DisplayTitle       *string  `json:"display_title,omitempty"`
	Category           *string  `json:"category,omitempty"`
	Tags               []string `json:"tags"`
	QualityScore       *int     `json:"quality_score,omitempty"`
	ActionabilityScore *int     `json:"actionability_score,omitempty"`
	Takeaways          []string `json:"takeaways,omitempty"`
	ActionItems        []string `json:"action_items,omitempty"`

	Platform string  `json:"platform,omitempty"`
	Author   *string `json:"author,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`

	// Embedding is the full 1536-dim vector or nil; it is never partial.
	Embedding []float32 `json:"-"`

	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// External sync shadow state, owned by the sync worker. Read-only here.
	Synced         bool   `json:"synced,omitempty"`
	ExternalPageID string `json:"external_page_id,omitempty"`
}

// CaptureUpdate describes a partial update. Only non-nil fields are written,
// so a stage that failed simply leaves its field nil and the stored value
// survives untouched.
type CaptureUpdate struct {
	Content            *string
	Summary            *string
	DisplayTitle       *string
	Category           *string
	Tags               *[]string
	QualityScore       *int
	ActionabilityScore *int
	Takeaways          *[]string
	ActionItems        *[]string
	Platform           *string
	Author             *string
	ImageURL           *string
	Embedding          []float32
	Status             *string
	ProcessedAt        *time.Time

	// ClearErrorMessage nulls error_message, used when a reprocess succeeds
	// on a record previously in the error state.
	ClearErrorMessage bool
}

// IsEmpty reports whether the update would write nothing.
func (u CaptureUpdate) IsEmpty() bool {
	return u.Content == nil && u.Summary == nil && u.DisplayTitle == nil &&
		u.Category == nil && u.Tags == nil && u.QualityScore == nil &&
		u.ActionabilityScore == nil && u.Takeaways == nil && u.ActionItems == nil &&
		u.Platform == nil && u.Author == nil && u.ImageURL == nil &&
		u.Embedding == nil && u.Status == nil && u.ProcessedAt == nil &&
		!u.ClearErrorMessage
}

// Category is one entry of the admin-managed classification set. The
// description is injected into the classifier prompt as guidance.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UsageRecord is one row of the token/cost ledger.
type UsageRecord struct {
	ID           string    `json:"id"`
	CaptureID    string    `json:"capture_id"`
	Service      string    `json:"service"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScoredCapture is a Capture with a cosine similarity score attached.
type ScoredCapture struct {
	Capture
	Score float32 `json:"score"`
}
