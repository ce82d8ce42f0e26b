package ingestion_engine

import (
	"github.com/meddy-health/meddy/internal/core"
)

type IngestConfig struct {
	TargetTokens  int // approximate tokens per chunk
	OverlapTokens int // tokens carried from the previous chunk
	BatchSize     int // chunks per embedding call
	EmbedDim      int
	QueueSize     int
}

// DefaultIngestConfig suits short medical documents: lab reports, prescriptions.
func DefaultIngestConfig(embedDim int) *IngestConfig {
	return &IngestConfig{
		TargetTokens:  400,
		OverlapTokens: 50,
		BatchSize:     16,
		EmbedDim:      embedDim,
		QueueSize:     64,
	}
}

type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// AttachmentIngestor turns uploaded attachments into searchable chunks.
type AttachmentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.AttachmentExtractor
	cfg       *IngestConfig
	jobs      chan string
}
