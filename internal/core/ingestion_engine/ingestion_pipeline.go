package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/meddy-health/meddy/internal/core"
	objectclient "github.com/meddy-health/meddy/internal/core/object-client"
	"github.com/meddy-health/meddy/internal/models"
	"golang.org/x/sync/errgroup"
)

var ErrQueueFull = errors.New("ingest queue full")

// NewAttachmentIngestor constructs the ingestor with a bounded job queue.
func NewAttachmentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.AttachmentExtractor, cfg *IngestConfig) *AttachmentIngestor {
	if cfg == nil {
		cfg = DefaultIngestConfig(0)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &AttachmentIngestor{
		db: db, obj: obj, embedder: emb, extractor: extractor, cfg: cfg,
		jobs: make(chan string, size),
	}
}

// Start runs numWorkers goroutines that drain the job queue until ctx ends.
func (i *AttachmentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("ingest: worker %d shutting down", w)
					return
				case id := <-i.jobs:
					log.Printf("ingest: worker %d processing attachment %s", w, id)
					if err := i.ProcessOne(ctx, id); err != nil {
						log.Printf("ingest: attachment %s failed: %v", id, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules an attachment. It waits for queue space for at most
// one second so an upload request never hangs on a stalled pipeline.
func (i *AttachmentIngestor) Enqueue(ctx context.Context, attachmentID string) error {
	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case i.jobs <- attachmentID:
		return nil
	case <-t.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOne fetches, extracts, chunks, embeds and persists one attachment,
// then marks it ready or failed.
func (i *AttachmentIngestor) ProcessOne(ctx context.Context, attachmentID string) error {
	att, err := i.db.GetAttachmentByID(ctx, attachmentID)
	if err != nil {
		return fmt.Errorf("load attachment: %w", err)
	}
	if att == nil {
		return fmt.Errorf("attachment not found: %s", attachmentID)
	}

	if err := i.db.UpdateAttachmentStatus(ctx, attachmentID, models.AttachmentProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := i.run(ctx, att); err != nil {
		if uerr := i.db.UpdateAttachmentStatus(context.WithoutCancel(ctx), attachmentID, models.AttachmentFailed); uerr != nil {
			log.Printf("ingest: mark %s failed: %v", attachmentID, uerr)
		}
		return err
	}
	return i.db.UpdateAttachmentStatus(ctx, attachmentID, models.AttachmentReady)
}

func (i *AttachmentIngestor) run(ctx context.Context, att *models.Attachment) error {
	procCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	bucket, key := objectclient.ParseURL(att.StorageURL)
	data, err := i.obj.GetFile(procCtx, bucket, key)
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}

	g, gctx := errgroup.WithContext(procCtx)

	// file -> fragments
	fragCh, err := i.extractor.ExtractText(gctx, g, data, att.ContentType)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// fragments -> chunks
	chunkCh := streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	// chunks -> embeddings -> rows
	g.Go(func() error {
		return i.embedAndPersist(gctx, att.ID, chunkCh, i.cfg.BatchSize)
	})

	return g.Wait()
}
