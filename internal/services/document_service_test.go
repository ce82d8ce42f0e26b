package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/models"
	"github.com/meddy-health/meddy/internal/testutil"
)

func TestDocumentRevisions(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewDocumentService(db)
	ctx := context.Background()

	_, err := svc.GetRevisions(ctx, "u1", "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := svc.SaveRevision(ctx, "u1", "d1", SaveDocumentInput{Title: "Patient file", Content: strPtr("v1"), ChatID: strPtr("c1")})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentKindText, first.Kind)

	time.Sleep(time.Millisecond)
	second, err := svc.SaveRevision(ctx, "u1", "d1", SaveDocumentInput{Title: "Patient file", Content: strPtr("v2")})
	require.NoError(t, err)
	require.NotNil(t, second.ChatID)
	assert.Equal(t, "c1", *second.ChatID)

	revs, err := svc.GetRevisions(ctx, "u1", "d1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "v1", revs[0].Text())
	assert.Equal(t, "v2", revs[1].Text())

	_, err = svc.GetRevisions(ctx, "u2", "d1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.SaveRevision(ctx, "u2", "d1", SaveDocumentInput{Title: "hijack"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, svc.DeleteRevisionsAfter(ctx, "u1", "d1", first.CreatedAt))
	revs, err = svc.GetRevisions(ctx, "u1", "d1")
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "v1", revs[0].Text())
}

func TestSaveRevisionValidation(t *testing.T) {
	svc := NewDocumentService(testutil.NewMemDB())
	ctx := context.Background()

	_, err := svc.SaveRevision(ctx, "u1", "", SaveDocumentInput{Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = svc.SaveRevision(ctx, "u1", "d1", SaveDocumentInput{})
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = svc.SaveRevision(ctx, "u1", "d1", SaveDocumentInput{Title: "x", Kind: "image"})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestGetSuggestions(t *testing.T) {
	db := testutil.NewMemDB()
	db.Documents = []models.Document{{ID: "d1", UserID: "u1", Title: "File", CreatedAt: time.Now()}}
	db.Suggestions = []models.Suggestion{{ID: "s1", DocumentID: "d1", UserID: "u1"}}
	svc := NewDocumentService(db)
	ctx := context.Background()

	got, err := svc.GetSuggestions(ctx, "u1", "d1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = svc.GetSuggestions(ctx, "u2", "d1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.GetSuggestions(ctx, "u1", "d9")
	assert.ErrorIs(t, err, ErrNotFound)
}
