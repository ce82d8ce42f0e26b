package core

import (
	"context"
	"io"
	"time"

	"github.com/meddy-health/meddy/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserInfo(ctx context.Context, userID string, name, age *string) error

	SaveChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id string) (*models.Chat, error)
	GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error)
	DeleteChatByID(ctx context.Context, id string) error
	UpdateChatVisibilityByID(ctx context.Context, id, visibility string) error

	SaveMessages(ctx context.Context, msgs []models.Message) error
	GetMessageByID(ctx context.Context, id string) (*models.Message, error)
	GetMessagesByChatID(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteMessagesByChatIDAfterTimestamp(ctx context.Context, chatID string, ts time.Time) error

	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocumentsByID(ctx context.Context, id string) ([]models.Document, error)
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	DeleteDocumentsByIDAfterTimestamp(ctx context.Context, id string, ts time.Time) error

	SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) error
	GetSuggestionsByDocumentID(ctx context.Context, documentID string) ([]models.Suggestion, error)

	GetDoctorsBySpeciality(ctx context.Context, specialities []string) ([]models.Doctor, error)

	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachmentByID(ctx context.Context, id string) (*models.Attachment, error)
	ListAttachmentsByChat(ctx context.Context, userID, chatID string) ([]models.Attachment, error)
	UpdateAttachmentStatus(ctx context.Context, id, status string) error
	InsertAttachmentChunks(ctx context.Context, chunks []models.AttachmentChunk) error
	SearchAttachmentChunks(ctx context.Context, userID, chatID string, queryVec []float32, limit int) ([]models.AttachmentChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
