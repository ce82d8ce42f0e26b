package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meddy-health/meddy/internal/models"
)

// embedAndPersist embeds chunks in batches and writes them with their vectors.
func (i *AttachmentIngestor) embedAndPersist(ctx context.Context, attachmentID string, in <-chan chunk, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 16
	}
	batch := make([]chunk, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for k, c := range batch {
			texts[k] = c.Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed batch: got %d vectors for %d chunks", len(vecs), len(batch))
		}

		now := time.Now().UTC()
		rows := make([]models.AttachmentChunk, len(batch))
		for k, c := range batch {
			if i.cfg.EmbedDim > 0 && len(vecs[k]) != i.cfg.EmbedDim {
				return fmt.Errorf("embedding dim %d, want %d", len(vecs[k]), i.cfg.EmbedDim)
			}
			rows[k] = models.AttachmentChunk{
				ID:           uuid.NewString(),
				AttachmentID: attachmentID,
				Text:         c.Text,
				Embedding:    vecs[k],
				Position:     c.Pos,
				TokenCount:   c.TokenCnt,
				CreatedAt:    now,
			}
		}
		if err := i.db.InsertAttachmentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return flush()
			}
			batch = append(batch, c)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}
