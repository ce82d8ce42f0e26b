package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/models"
	"github.com/meddy-health/meddy/internal/testutil"
)

type queueFunc func(ctx context.Context, id string) error

func (f queueFunc) Enqueue(ctx context.Context, id string) error { return f(ctx, id) }

func TestAttachmentUpload(t *testing.T) {
	db := testutil.NewMemDB()
	store := testutil.NewMemStorage()
	var queued []string
	svc := NewAttachmentService(db, store, "meddy-files", queueFunc(func(_ context.Context, id string) error {
		queued = append(queued, id)
		return nil
	}))

	att, err := svc.Upload(context.Background(), "u1", UploadInput{
		ChatID:      "c1",
		FileName:    "blood work.txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        strings.NewReader("Hemoglobin: 13.5 g/dL"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.AttachmentUploaded, att.Status)
	assert.Equal(t, "text/plain", att.ContentType)
	require.NotNil(t, att.ChatID)
	assert.Equal(t, "c1", *att.ChatID)
	assert.Equal(t, "s3://meddy-files/users/u1/attachments/"+att.ID+"/blood_work.txt", att.StorageURL)
	assert.Equal(t, []string{att.ID}, queued)
	assert.Contains(t, db.Attachments, att.ID)
	assert.Equal(t, []byte("Hemoglobin: 13.5 g/dL"), store.Objects["meddy-files/users/u1/attachments/"+att.ID+"/blood_work.txt"])
}

func TestAttachmentUploadEnqueueFailureKeepsRow(t *testing.T) {
	db := testutil.NewMemDB()
	svc := NewAttachmentService(db, testutil.NewMemStorage(), "b", queueFunc(func(context.Context, string) error {
		return errors.New("queue full")
	}))

	att, err := svc.Upload(context.Background(), "u1", UploadInput{FileName: "a.md", ContentType: "text/markdown", Body: strings.NewReader("# a")})
	require.NoError(t, err)
	assert.Nil(t, att.ChatID)
	assert.Contains(t, db.Attachments, att.ID)
}

func TestAttachmentUploadRejects(t *testing.T) {
	db := testutil.NewMemDB()
	db.Chats["c2"] = &models.Chat{ID: "c2", UserID: "someone-else"}
	svc := NewAttachmentService(db, testutil.NewMemStorage(), "b", nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "u1", UploadInput{FileName: "x.exe", ContentType: "application/x-msdownload", Body: strings.NewReader("MZ")})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = svc.Upload(ctx, "u1", UploadInput{ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = svc.Upload(ctx, "u1", UploadInput{ChatID: "c2", FileName: "x.txt", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAttachmentStorageDisabled(t *testing.T) {
	svc := NewAttachmentService(testutil.NewMemDB(), nil, "", nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Upload(context.Background(), "u1", UploadInput{FileName: "x.txt", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrStorageDisabled)

	_, err = svc.List(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestAttachmentList(t *testing.T) {
	db := testutil.NewMemDB()
	c1 := "c1"
	db.Attachments["a1"] = &models.Attachment{ID: "a1", UserID: "u1", ChatID: &c1}
	db.Attachments["a2"] = &models.Attachment{ID: "a2", UserID: "u1"}
	db.Attachments["a3"] = &models.Attachment{ID: "a3", UserID: "u2", ChatID: &c1}
	svc := NewAttachmentService(db, testutil.NewMemStorage(), "b", nil)

	got, err := svc.List(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)

	all, err := svc.List(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := svc.List(context.Background(), "nobody", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
