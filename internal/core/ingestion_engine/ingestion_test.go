package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meddy-health/meddy/internal/models"
	"github.com/meddy-health/meddy/internal/testutil"
)

func collectChunks(t *testing.T, frags []string, target, overlap int) []chunk {
	t.Helper()
	in := make(chan string, len(frags))
	for _, f := range frags {
		in <- f
	}
	close(in)

	g, ctx := errgroup.WithContext(context.Background())
	out := streamChunk(ctx, g, in, target, overlap)
	var got []chunk
	for c := range out {
		got = append(got, c)
	}
	require.NoError(t, g.Wait())
	return got
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 2, approxTokens("abcde"))
	assert.Equal(t, 1, approxTokens("héé"))
}

func TestStreamChunkNoOverlap(t *testing.T) {
	got := collectChunks(t, []string{"aaaa", "bbbb", "cccc", "dddd", "ee"}, 2, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "aaaa\nbbbb", got[0].Text)
	assert.Equal(t, 2, got[0].TokenCnt)
	assert.Equal(t, "cccc\ndddd", got[1].Text)
	assert.Equal(t, "ee", got[2].Text)
	for i, c := range got {
		assert.Equal(t, i, c.Pos)
	}
}

func TestStreamChunkOverlapCarriesTail(t *testing.T) {
	got := collectChunks(t, []string{"aaaa", "bbbb", "cccc", "dddd"}, 2, 1)
	require.Len(t, got, 3)
	assert.Equal(t, "aaaa\nbbbb", got[0].Text)
	assert.Equal(t, "bbbb\ncccc", got[1].Text)
	assert.Equal(t, "cccc\ndddd", got[2].Text)
}

func TestStreamChunkNoTrailingOverlapOnlyChunk(t *testing.T) {
	got := collectChunks(t, []string{"aaaa", "bbbb"}, 2, 1)
	require.Len(t, got, 1)
}

func TestStreamChunkEmptyInput(t *testing.T) {
	assert.Empty(t, collectChunks(t, nil, 10, 2))
}

func newIngestFixture(t *testing.T, body string) (*AttachmentIngestor, *testutil.MemDB, string) {
	t.Helper()
	db := testutil.NewMemDB()
	obj := testutil.NewMemStorage()

	url, err := obj.UploadFile(context.Background(), "meddy-files", "users/u1/attachments/a1/report.txt", strings.NewReader(body), "text/plain")
	require.NoError(t, err)
	require.NoError(t, db.CreateAttachment(context.Background(), &models.Attachment{
		ID: "a1", UserID: "u1", FileName: "report.txt", StorageURL: url, ContentType: "text/plain; charset=utf-8",
	}))

	cfg := &IngestConfig{TargetTokens: 4, OverlapTokens: 0, BatchSize: 2, EmbedDim: 4}
	ing := NewAttachmentIngestor(db, obj, &testutil.FakeEmbedder{Dim: 4}, NewDocconvExtractor(false), cfg)
	return ing, db, url
}

func TestProcessOnePersistsChunks(t *testing.T) {
	ing, db, _ := newIngestFixture(t, "Hemoglobin: 13.5 g/dL\n\nGlucose: 95 mg/dL\nCholesterol: 180 mg/dL\n")

	require.NoError(t, ing.ProcessOne(context.Background(), "a1"))

	assert.Equal(t, models.AttachmentReady, db.Attachments["a1"].Status)
	require.Len(t, db.Chunks, 3)
	for i, c := range db.Chunks {
		assert.Equal(t, "a1", c.AttachmentID)
		assert.Equal(t, i, c.Position)
		assert.NotEmpty(t, c.ID)
		assert.Len(t, c.Embedding, 4)
	}
	assert.Equal(t, "Hemoglobin: 13.5 g/dL", db.Chunks[0].Text)
}

func TestProcessOneMarksFailedOnEmbedError(t *testing.T) {
	ing, db, _ := newIngestFixture(t, "Glucose: 95 mg/dL\n")
	ing.embedder = &testutil.FakeEmbedder{Err: errors.New("quota exceeded")}

	err := ing.ProcessOne(context.Background(), "a1")
	require.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, models.AttachmentFailed, db.Attachments["a1"].Status)
	assert.Empty(t, db.Chunks)
}

func TestProcessOneMarksFailedOnDimMismatch(t *testing.T) {
	ing, db, _ := newIngestFixture(t, "Glucose: 95 mg/dL\n")
	ing.cfg.EmbedDim = 768

	require.Error(t, ing.ProcessOne(context.Background(), "a1"))
	assert.Equal(t, models.AttachmentFailed, db.Attachments["a1"].Status)
}

func TestProcessOneMissingAttachment(t *testing.T) {
	ing, _, _ := newIngestFixture(t, "x")
	require.ErrorContains(t, ing.ProcessOne(context.Background(), "nope"), "not found")
}

func TestWorkersDrainQueue(t *testing.T) {
	ing, db, _ := newIngestFixture(t, "Glucose: 95 mg/dL\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing.Start(ctx, 2)
	require.NoError(t, ing.Enqueue(ctx, "a1"))

	assert.Eventually(t, func() bool {
		a, _ := db.GetAttachmentByID(ctx, "a1")
		return a != nil && a.Status == models.AttachmentReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnqueueQueueFull(t *testing.T) {
	ing := NewAttachmentIngestor(nil, nil, nil, nil, &IngestConfig{QueueSize: 1})
	require.NoError(t, ing.Enqueue(context.Background(), "a"))
	assert.ErrorIs(t, ing.Enqueue(context.Background(), "b"), ErrQueueFull)
}
