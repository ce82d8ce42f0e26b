package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// AttachmentExtractor turns an uploaded file into a stream of text fragments.
type AttachmentExtractor interface {
	// ExtractText runs inside g and closes the returned channel when done.
	// The contentType hint selects the parsing strategy.
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error)
}
