package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/meddy-health/meddy/internal/core"
	objectclient "github.com/meddy-health/meddy/internal/core/object-client"
	"github.com/meddy-health/meddy/internal/models"
)

// AttachmentQueue receives attachment IDs for background ingestion.
type AttachmentQueue interface {
	Enqueue(ctx context.Context, attachmentID string) error
}

var supportedAttachmentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
	"application/rtf":                                                         true,
	"text/html":                                                               true,
	"text/plain":                                                              true,
	"text/markdown":                                                           true,
	"text/csv":                                                                true,
}

type AttachmentService struct {
	db     core.DbClient
	obj    core.ObjectClient
	bucket string
	queue  AttachmentQueue
}

// NewAttachmentService returns a service that answers ErrStorageDisabled
// for every call when obj is nil.
func NewAttachmentService(db core.DbClient, obj core.ObjectClient, bucket string, queue AttachmentQueue) *AttachmentService {
	return &AttachmentService{db: db, obj: obj, bucket: bucket, queue: queue}
}

func (s *AttachmentService) Enabled() bool { return s.obj != nil }

type UploadInput struct {
	ChatID      string
	FileName    string
	ContentType string
	Body        io.Reader
}

// Upload stores the file, records it as uploaded and schedules ingestion.
func (s *AttachmentService) Upload(ctx context.Context, userID string, in UploadInput) (*models.Attachment, error) {
	if !s.Enabled() {
		return nil, ErrStorageDisabled
	}
	if in.FileName == "" || in.Body == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidData)
	}
	mediaType, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || !supportedAttachmentTypes[mediaType] {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidData, in.ContentType)
	}

	var chatID *string
	if in.ChatID != "" {
		chat, err := s.db.GetChatByID(ctx, in.ChatID)
		if err != nil {
			return nil, fmt.Errorf("get chat: %w", err)
		}
		if chat != nil && chat.UserID != userID {
			return nil, ErrUnauthorized
		}
		chatID = &in.ChatID
	}

	id := uuid.NewString()
	key := objectclient.AttachmentKey(userID, id, in.FileName)
	url, err := s.obj.UploadFile(ctx, s.bucket, key, in.Body, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	now := time.Now().UTC()
	att := &models.Attachment{
		ID:          id,
		UserID:      userID,
		ChatID:      chatID,
		FileName:    in.FileName,
		StorageURL:  url,
		ContentType: mediaType,
		Status:      models.AttachmentUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateAttachment(ctx, att); err != nil {
		if derr := s.obj.DeleteFile(context.WithoutCancel(ctx), s.bucket, key); derr != nil {
			log.Printf("attachments: cleanup %s: %v", key, derr)
		}
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			log.Printf("attachments: enqueue %s: %v", id, err)
		}
	}
	return att, nil
}

// List returns the user's attachments, narrowed to one chat when chatID is set.
func (s *AttachmentService) List(ctx context.Context, userID, chatID string) ([]models.Attachment, error) {
	if !s.Enabled() {
		return nil, ErrStorageDisabled
	}
	out, err := s.db.ListAttachmentsByChat(ctx, userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	if out == nil {
		out = []models.Attachment{}
	}
	return out, nil
}

// RemoveObjects deletes the stored files behind the given attachments.
// Failures are logged and do not stop the remaining deletes.
func (s *AttachmentService) RemoveObjects(ctx context.Context, atts []models.Attachment) {
	if !s.Enabled() {
		return
	}
	for _, a := range atts {
		bucket, key := objectclient.ParseURL(a.StorageURL)
		if key == "" {
			continue
		}
		if bucket == "" {
			bucket = s.bucket
		}
		if err := s.obj.DeleteFile(ctx, bucket, key); err != nil {
			log.Printf("attachments: delete object %s: %v", key, err)
		}
	}
}
