package models

import (
	"encoding/json"
	"time"
)

// User represents an authenticated patient account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         *string   `db:"name" json:"name"`
	Age          *string   `db:"age" json:"age"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// UserInfo is the profile subset shared with the chat UI and the model.
type UserInfo struct {
	Name *string `json:"name"`
	Age  *string `json:"age"`
}

func (u *User) Info() *UserInfo {
	if u == nil {
		return nil
	}
	return &UserInfo{Name: u.Name, Age: u.Age}
}

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Chat is a conversation thread owned by a user.
type Chat struct {
	ID         string    `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	Title      string    `db:"title" json:"title"`
	UserID     string    `db:"user_id" json:"userId"`
	Visibility string    `db:"visibility" json:"visibility"`
}

// Message is a persisted turn. Content holds the core-message content:
// a JSON string for plain text or an array of typed parts.
type Message struct {
	ID        string          `db:"id" json:"id"`
	ChatID    string          `db:"chat_id" json:"chatId"`
	Role      string          `db:"role" json:"role"`
	Content   json.RawMessage `db:"content" json:"content"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

const (
	DocumentKindText = "text"
	DocumentKindCode = "code"
)

// Document is one revision of a generated artifact (the patient file).
// Revisions share ID and are ordered by CreatedAt.
type Document struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Title     string    `db:"title" json:"title"`
	Content   *string   `db:"content" json:"content"`
	Kind      string    `db:"kind" json:"kind"`
	UserID    string    `db:"user_id" json:"userId"`
	ChatID    *string   `db:"chat_id" json:"chatId,omitempty"`
}

func (d *Document) Text() string {
	if d == nil || d.Content == nil {
		return ""
	}
	return *d.Content
}

// Suggestion is an edit proposal attached to a document revision.
type Suggestion struct {
	ID                string    `db:"id" json:"id"`
	DocumentID        string    `db:"document_id" json:"documentId"`
	DocumentCreatedAt time.Time `db:"document_created_at" json:"documentCreatedAt"`
	OriginalText      string    `db:"original_text" json:"originalText"`
	SuggestedText     string    `db:"suggested_text" json:"suggestedText"`
	Description       *string   `db:"description" json:"description"`
	IsResolved        bool      `db:"is_resolved" json:"isResolved"`
	UserID            string    `db:"user_id" json:"userId"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// Doctor is a directory entry.
type Doctor struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Degree     string `db:"degree" json:"degree"`
	YOE        int    `db:"yoe" json:"yoe"`
	Location   string `db:"location" json:"location"`
	City       string `db:"city" json:"city"`
	Speciality string `db:"speciality" json:"speciality"`
	ConsultFee int    `db:"consult_fee" json:"consultFee"`
}

const (
	AttachmentUploaded   = "uploaded"
	AttachmentProcessing = "processing"
	AttachmentReady      = "ready"
	AttachmentFailed     = "failed"
)

// Attachment is a user-uploaded file (lab report, prescription scan, ...).
type Attachment struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	ChatID      *string   `db:"chat_id" json:"chatId,omitempty"`
	FileName    string    `db:"file_name" json:"fileName"`
	StorageURL  string    `db:"storage_url" json:"storageUrl"`
	ContentType string    `db:"content_type" json:"contentType"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// AttachmentChunk represents one embedded text chunk of an attachment.
type AttachmentChunk struct {
	ID           string    `db:"id" json:"id"`
	AttachmentID string    `db:"attachment_id" json:"attachmentId"`
	Text         string    `db:"text" json:"text"`
	Embedding    []float32 `db:"embedding" json:"-"` // pgvector column
	Position     int       `db:"position" json:"position"`
	TokenCount   int       `db:"token_count" json:"tokenCount"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
