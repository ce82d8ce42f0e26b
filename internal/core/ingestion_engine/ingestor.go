package ingestion_engine

import "context"

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, attachmentID string) error
	ProcessOne(ctx context.Context, attachmentID string) error
}

var _ Ingestor = (*AttachmentIngestor)(nil)
