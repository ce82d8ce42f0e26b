package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"strings"

	"code.sajari.com/docconv"
	"github.com/meddy-health/meddy/internal/core"
	"golang.org/x/sync/errgroup"
)

var _ core.AttachmentExtractor = (*DocconvExtractor)(nil)

type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts the file with docconv and emits one fragment per
// non-blank line. Plain text and markdown skip the converter.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		var text string
		switch mediaType {
		case "text/plain", "text/markdown", "text/csv":
			text = string(data)
		default:
			res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
			if err != nil {
				return fmt.Errorf("docconv %s: %w", mediaType, err)
			}
			text = res.Body
		}

		if strings.TrimSpace(text) == "" {
			log.Printf("ingest: extracted empty text for content type %q", mediaType)
			return nil
		}

		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out, nil
}
