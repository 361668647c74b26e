package pipeline

import (
	"context"
	"fmt"

	"github.com/rovda/clipd/internal/storage"
)

// BackfillEmbeddings generates embeddings for up to limit completed captures
// that do not have one yet. Each capture is handled independently; a failure
// is counted and the batch continues. Remaining reports how many captures
// still lack an embedding after this batch.
func (p *Pipeline) BackfillEmbeddings(ctx context.Context, limit int) (BackfillResult, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := p.store.ListMissingEmbeddingIDs(limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("listing captures without embeddings: %w", err)
	}

	var result BackfillResult
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := p.backfillEmbedding(ctx, id); err != nil {
			p.logger.Warn("embedding backfill failed", "capture_id", id, "error", err)
			result.Failed++
			continue
		}
		result.Processed++
	}

	remaining, err := p.store.CountMissingEmbedding()
	if err != nil {
		return result, fmt.Errorf("counting captures without embeddings: %w", err)
	}
	result.Remaining = remaining

	p.logger.Info("embedding backfill finished",
		"processed", result.Processed, "failed", result.Failed, "remaining", result.Remaining)
	return result, nil
}

func (p *Pipeline) backfillEmbedding(ctx context.Context, id string) error {
	c, err := p.store.GetCapture(id)
	if err != nil {
		return fmt.Errorf("loading capture: %w", err)
	}

	vector, err := p.embedder.EmbedCapture(ctx, c)
	if err != nil {
		return fmt.Errorf("generating embedding: %w", err)
	}

	if err := p.store.UpdateCapture(id, storage.CaptureUpdate{Embedding: vector}); err != nil {
		return fmt.Errorf("persisting embedding: %w", err)
	}
	return nil
}

// BackfillDisplayTitles generates display titles for up to limit completed
// captures missing one. Only the title field is written; the record's other
// enrichment is left alone.
func (p *Pipeline) BackfillDisplayTitles(ctx context.Context, limit int) (BackfillResult, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := p.store.ListMissingDisplayTitleIDs(limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("listing captures without display titles: %w", err)
	}

	var result BackfillResult
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := p.backfillDisplayTitle(ctx, id); err != nil {
			p.logger.Warn("display title backfill failed", "capture_id", id, "error", err)
			result.Failed++
			continue
		}
		result.Processed++
	}

	remaining, err := p.store.CountMissingDisplayTitle()
	if err != nil {
		return result, fmt.Errorf("counting captures without display titles: %w", err)
	}
	result.Remaining = remaining

	p.logger.Info("display title backfill finished",
		"processed", result.Processed, "failed", result.Failed, "remaining", result.Remaining)
	return result, nil
}

func (p *Pipeline) backfillDisplayTitle(ctx context.Context, id string) error {
	c, err := p.store.GetCapture(id)
	if err != nil {
		return fmt.Errorf("loading capture: %w", err)
	}

	content := ""
	if c.Content != nil {
		content = *c.Content
	} else if c.Summary != nil {
		content = *c.Summary
	}

	title, err := p.analyzer.DisplayTitle(ctx, id, c.Title, content)
	if err != nil {
		return err
	}

	if err := p.store.UpdateCapture(id, storage.CaptureUpdate{DisplayTitle: &title}); err != nil {
		return fmt.Errorf("persisting display title: %w", err)
	}
	return nil
}
