package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const captureColumns = `id, url, title, selected_text, favicon_url,
	content, summary, display_title, category, tags,
	quality_score, actionability_score, takeaways, action_items,
	platform, author, image_url, embedding,
	status, error_message, created_at, updated_at, processed_at,
	synced, external_page_id`

// CreateCapture inserts a new capture. Status defaults to pending and
// created_at/updated_at are set to now when zero.
func (s *Store) CreateCapture(c Capture) error {
	if c.Status == "" {
		c.Status = StatusPending
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	tags, err := marshalStrings(c.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	takeaways, err := marshalStrings(c.Takeaways)
	if err != nil {
		return fmt.Errorf("marshaling takeaways: %w", err)
	}
	actionItems, err := marshalStrings(c.ActionItems)
	if err != nil {
		return fmt.Errorf("marshaling action items: %w", err)
	}

	var embedding []byte
	if c.Embedding != nil {
		embedding = encodeFloat32s(c.Embedding)
	}

	_, err = s.db.Exec(`
		INSERT INTO captures (`+captureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.URL, c.Title, c.SelectedText, c.FaviconURL,
		c.Content, c.Summary, c.DisplayTitle, c.Category, tags,
		c.QualityScore, c.ActionabilityScore, takeaways, actionItems,
		c.Platform, c.Author, c.ImageURL, embedding,
		c.Status, c.ErrorMessage,
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339), formatTimePtr(c.ProcessedAt),
		c.Synced, c.ExternalPageID,
	)
	return err
}

// GetCapture fetches a capture by id.
func (s *Store) GetCapture(id string) (Capture, error) {
	row := s.db.QueryRow(`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return Capture{}, ErrNotFound
	}
	return c, err
}

// ListCaptures returns captures ordered newest-first.
func (s *Store) ListCaptures(limit, offset int) ([]Capture, error) {
	rows, err := s.db.Query(`
		SELECT `+captureColumns+` FROM captures
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCaptures(rows)
}

// ListPendingIDs returns up to limit ids of captures still in the pending
// state, oldest first. Used by the sweep.
func (s *Store) ListPendingIDs(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM captures WHERE status = ?
		ORDER BY created_at ASC LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ListMissingEmbeddingIDs returns ids of completed captures without an
// embedding, oldest first.
func (s *Store) ListMissingEmbeddingIDs(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM captures WHERE status = ? AND embedding IS NULL
		ORDER BY created_at ASC LIMIT ?`, StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CountMissingEmbedding returns how many completed captures lack an embedding.
func (s *Store) CountMissingEmbedding() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM captures WHERE status = ? AND embedding IS NULL`, StatusCompleted).Scan(&n)
	return n, err
}

// ListMissingDisplayTitleIDs returns ids of completed captures without a
// display title, oldest first.
func (s *Store) ListMissingDisplayTitleIDs(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM captures WHERE status = ? AND display_title IS NULL
		ORDER BY created_at ASC LIMIT ?`, StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CountMissingDisplayTitle returns how many completed captures lack a display title.
func (s *Store) CountMissingDisplayTitle() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM captures WHERE status = ? AND display_title IS NULL`, StatusCompleted).Scan(&n)
	return n, err
}

// SetStatus updates only the lifecycle status.
func (s *Store) SetStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE captures SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkError transitions a capture to the error state with a message.
func (s *Store) MarkError(id, msg string) error {
	res, err := s.db.Exec(`UPDATE captures SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusError, msg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateCapture applies a partial update: only non-nil fields of u are
// written. Returns ErrNotFound if the id does not exist.
func (s *Store) UpdateCapture(id string, u CaptureUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Content != nil {
		add("content", *u.Content)
	}
	if u.Summary != nil {
		add("summary", *u.Summary)
	}
	if u.DisplayTitle != nil {
		add("display_title", *u.DisplayTitle)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Tags != nil {
		tags, err := marshalStrings(*u.Tags)
		if err != nil {
			return fmt.Errorf("marshaling tags: %w", err)
		}
		add("tags", tags)
	}
	if u.QualityScore != nil {
		add("quality_score", *u.QualityScore)
	}
	if u.ActionabilityScore != nil {
		add("actionability_score", *u.ActionabilityScore)
	}
	if u.Takeaways != nil {
		v, err := marshalStrings(*u.Takeaways)
		if err != nil {
			return fmt.Errorf("marshaling takeaways: %w", err)
		}
		add("takeaways", v)
	}
	if u.ActionItems != nil {
		v, err := marshalStrings(*u.ActionItems)
		if err != nil {
			return fmt.Errorf("marshaling action items: %w", err)
		}
		add("action_items", v)
	}
	if u.Platform != nil {
		add("platform", *u.Platform)
	}
	if u.Author != nil {
		add("author", *u.Author)
	}
	if u.ImageURL != nil {
		add("image_url", *u.ImageURL)
	}
	if u.Embedding != nil {
		add("embedding", encodeFloat32s(u.Embedding))
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.ProcessedAt != nil {
		add("processed_at", u.ProcessedAt.UTC().Format(time.RFC3339))
	}
	if u.ClearErrorMessage {
		sets = append(sets, "error_message = NULL")
	}

	args = append(args, id)
	res, err := s.db.Exec(`UPDATE captures SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteCapture removes a capture by id.
func (s *Store) DeleteCapture(id string) error {
	res, err := s.db.Exec(`DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (Capture, error) {
	var c Capture
	var content, summary, displayTitle, category, author, imageURL, errMsg sql.NullString
	var quality, actionability sql.NullInt64
	var tags, takeaways, actionItems string
	var embedding []byte
	var createdAt, updatedAt string
	var processedAt sql.NullString

	err := row.Scan(
		&c.ID, &c.URL, &c.Title, &c.SelectedText, &c.FaviconURL,
		&content, &summary, &displayTitle, &category, &tags,
		&quality, &actionability, &takeaways, &actionItems,
		&c.Platform, &author, &imageURL, &embedding,
		&c.Status, &errMsg, &createdAt, &updatedAt, &processedAt,
		&c.Synced, &c.ExternalPageID,
	)
	if err != nil {
		return Capture{}, err
	}

	c.Content = nullStringPtr(content)
	c.Summary = nullStringPtr(summary)
	c.DisplayTitle = nullStringPtr(displayTitle)
	c.Category = nullStringPtr(category)
	c.Author = nullStringPtr(author)
	c.ImageURL = nullStringPtr(imageURL)
	c.ErrorMessage = nullStringPtr(errMsg)
	c.QualityScore = nullIntPtr(quality)
	c.ActionabilityScore = nullIntPtr(actionability)

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return Capture{}, fmt.Errorf("parsing tags for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(takeaways), &c.Takeaways); err != nil {
		return Capture{}, fmt.Errorf("parsing takeaways for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(actionItems), &c.ActionItems); err != nil {
		return Capture{}, fmt.Errorf("parsing action items for %s: %w", c.ID, err)
	}

	if embedding != nil {
		vec, err := decodeFloat32s(embedding)
		if err != nil {
			return Capture{}, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		c.Embedding = vec
	}

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Capture{}, fmt.Errorf("parsing created_at for %s: %w", c.ID, err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Capture{}, fmt.Errorf("parsing updated_at for %s: %w", c.ID, err)
	}
	if processedAt.Valid {
		t, err := time.Parse(time.RFC3339, processedAt.String)
		if err != nil {
			return Capture{}, fmt.Errorf("parsing processed_at for %s: %w", c.ID, err)
		}
		c.ProcessedAt = &t
	}

	return c, nil
}

func collectCaptures(rows *sql.Rows) ([]Capture, error) {
	var results []Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
