// Package testutil provides in-memory fakes shared by service and handler tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/models"
)

var _ core.DbClient = (*MemDB)(nil)

// MemDB is an in-memory core.DbClient. Err fields force the named call to fail.
type MemDB struct {
	mu sync.Mutex

	Users       map[string]*models.User
	Chats       map[string]*models.Chat
	Messages    []models.Message
	Documents   []models.Document
	Suggestions []models.Suggestion
	Doctors     []models.Doctor
	Attachments map[string]*models.Attachment
	Chunks      []models.AttachmentChunk

	SaveMessagesErr error
	SearchResults   []models.AttachmentChunk
}

func NewMemDB() *MemDB {
	return &MemDB{
		Users:       map[string]*models.User{},
		Chats:       map[string]*models.Chat{},
		Attachments: map[string]*models.Attachment{},
	}
}

func (m *MemDB) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == user.Email {
			return fmt.Errorf("duplicate email %s", user.Email)
		}
	}
	cp := *user
	m.Users[user.ID] = &cp
	return nil
}

func (m *MemDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) UpdateUserInfo(ctx context.Context, userID string, name, age *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	if name != nil {
		u.Name = name
	}
	if age != nil {
		u.Age = age
	}
	return nil
}

func (m *MemDB) SaveChat(ctx context.Context, chat *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *chat
	if cp.Visibility == "" {
		cp.Visibility = models.VisibilityPrivate
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.Chats[chat.ID] = &cp
	return nil
}

func (m *MemDB) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Chats[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chat
	for _, c := range m.Chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) DeleteChatByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Chats, id)
	for aid, a := range m.Attachments {
		if a.ChatID != nil && *a.ChatID == id {
			delete(m.Attachments, aid)
		}
	}
	kept := m.Messages[:0]
	for _, msg := range m.Messages {
		if msg.ChatID != id {
			kept = append(kept, msg)
		}
	}
	m.Messages = kept
	return nil
}

func (m *MemDB) UpdateChatVisibilityByID(ctx context.Context, id, visibility string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Chats[id]
	if !ok {
		return fmt.Errorf("chat not found: %s", id)
	}
	c.Visibility = visibility
	return nil
}

func (m *MemDB) SaveMessages(ctx context.Context, msgs []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveMessagesErr != nil {
		return m.SaveMessagesErr
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MemDB) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.Messages {
		if msg.ID == id {
			cp := msg
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetMessagesByChatID(ctx context.Context, chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.Messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) DeleteMessagesByChatIDAfterTimestamp(ctx context.Context, chatID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Messages[:0]
	for _, msg := range m.Messages {
		if msg.ChatID == chatID && !msg.CreatedAt.Before(ts) {
			continue
		}
		kept = append(kept, msg)
	}
	m.Messages = kept
	return nil
}

func (m *MemDB) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Kind == "" {
		doc.Kind = models.DocumentKindText
	}
	m.Documents = append(m.Documents, *doc)
	return nil
}

func (m *MemDB) GetDocumentsByID(ctx context.Context, id string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.Documents {
		if d.ID == id {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	docs, _ := m.GetDocumentsByID(ctx, id)
	if len(docs) == 0 {
		return nil, nil
	}
	d := docs[len(docs)-1]
	return &d, nil
}

func (m *MemDB) DeleteDocumentsByIDAfterTimestamp(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.Documents[:0]
	for _, d := range m.Documents {
		if d.ID == id && d.CreatedAt.After(ts) {
			continue
		}
		docs = append(docs, d)
	}
	m.Documents = docs

	sugs := m.Suggestions[:0]
	for _, s := range m.Suggestions {
		if s.DocumentID == id && s.DocumentCreatedAt.After(ts) {
			continue
		}
		sugs = append(sugs, s)
	}
	m.Suggestions = sugs
	return nil
}

func (m *MemDB) SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suggestions = append(m.Suggestions, suggestions...)
	return nil
}

func (m *MemDB) GetSuggestionsByDocumentID(ctx context.Context, documentID string) ([]models.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Suggestion
	for _, s := range m.Suggestions {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemDB) GetDoctorsBySpeciality(ctx context.Context, specialities []string) ([]models.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Doctor
	for _, d := range m.Doctors {
		for _, s := range specialities {
			if strings.ToLower(d.Speciality) == s {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (m *MemDB) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	if cp.Status == "" {
		cp.Status = models.AttachmentUploaded
	}
	m.Attachments[a.ID] = &cp
	return nil
}

func (m *MemDB) GetAttachmentByID(ctx context.Context, id string) (*models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.Attachments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListAttachmentsByChat(ctx context.Context, userID, chatID string) ([]models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Attachment
	for _, a := range m.Attachments {
		if a.UserID != userID {
			continue
		}
		if chatID != "" && (a.ChatID == nil || *a.ChatID != chatID) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemDB) UpdateAttachmentStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attachments[id]
	if !ok {
		return fmt.Errorf("attachment not found: %s", id)
	}
	a.Status = status
	return nil
}

func (m *MemDB) InsertAttachmentChunks(ctx context.Context, chunks []models.AttachmentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chunks = append(m.Chunks, chunks...)
	return nil
}

// SearchAttachmentChunks returns SearchResults when set, otherwise the stored chunks.
func (m *MemDB) SearchAttachmentChunks(ctx context.Context, userID, chatID string, queryVec []float32, limit int) ([]models.AttachmentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.SearchResults
	if src == nil {
		src = m.Chunks
	}
	if len(src) > limit {
		src = src[:limit]
	}
	return append([]models.AttachmentChunk(nil), src...), nil
}

func (m *MemDB) Close() error { return nil }
