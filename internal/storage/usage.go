package storage

import (
	"time"
)

// InsertUsage appends one row to the usage ledger.
func (s *Store) InsertUsage(r UsageRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO usage_log (id, capture_id, service, model, operation, input_tokens, output_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CaptureID, r.Service, r.Model, r.Operation,
		r.InputTokens, r.OutputTokens, r.CostUSD, createdAt.Format(time.RFC3339),
	)
	return err
}

// UsageForCapture returns all ledger rows for one capture, oldest first.
func (s *Store) UsageForCapture(captureID string) ([]UsageRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, capture_id, service, model, operation, input_tokens, output_tokens, cost_usd, created_at
		FROM usage_log WHERE capture_id = ? ORDER BY created_at ASC`, captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var r UsageRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CaptureID, &r.Service, &r.Model, &r.Operation,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalCost returns the summed cost of all recorded usage.
func (s *Store) TotalCost() (float64, error) {
	var total float64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_log`).Scan(&total)
	return total, err
}
