package services

import (
	"context"
	"fmt"
	"time"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/models"
)

type DocumentService struct {
	db core.DbClient
}

func NewDocumentService(db core.DbClient) *DocumentService {
	return &DocumentService{db: db}
}

// GetRevisions returns every revision of a document, oldest first.
func (s *DocumentService) GetRevisions(ctx context.Context, userID, id string) ([]models.Document, error) {
	docs, err := s.db.GetDocumentsByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	if docs[0].UserID != userID {
		return nil, ErrUnauthorized
	}
	return docs, nil
}

type SaveDocumentInput struct {
	Title   string  `json:"title"`
	Content *string `json:"content"`
	Kind    string  `json:"kind"`
	ChatID  *string `json:"chatId,omitempty"`
}

// SaveRevision appends a revision. Documents owned by another user are rejected.
func (s *DocumentService) SaveRevision(ctx context.Context, userID, id string, in SaveDocumentInput) (*models.Document, error) {
	if id == "" || in.Title == "" {
		return nil, ErrInvalidData
	}
	switch in.Kind {
	case "":
		in.Kind = models.DocumentKindText
	case models.DocumentKindText, models.DocumentKindCode:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidData, in.Kind)
	}

	latest, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if latest != nil && latest.UserID != userID {
		return nil, ErrUnauthorized
	}

	doc := &models.Document{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     in.Title,
		Content:   in.Content,
		Kind:      in.Kind,
		UserID:    userID,
		ChatID:    in.ChatID,
	}
	if doc.ChatID == nil && latest != nil {
		doc.ChatID = latest.ChatID
	}
	if err := s.db.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// DeleteRevisionsAfter drops the revisions created after ts.
func (s *DocumentService) DeleteRevisionsAfter(ctx context.Context, userID, id string, ts time.Time) error {
	if _, err := s.GetRevisions(ctx, userID, id); err != nil {
		return err
	}
	return s.db.DeleteDocumentsByIDAfterTimestamp(ctx, id, ts)
}

func (s *DocumentService) GetSuggestions(ctx context.Context, userID, documentID string) ([]models.Suggestion, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	if doc.UserID != userID {
		return nil, ErrUnauthorized
	}
	return s.db.GetSuggestionsByDocumentID(ctx, documentID)
}
