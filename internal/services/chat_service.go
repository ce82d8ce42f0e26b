package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/core/agent"
	"github.com/meddy-health/meddy/internal/core/datastream"
	"github.com/meddy-health/meddy/internal/core/llm"
	"github.com/meddy-health/meddy/internal/core/prompts"
	"github.com/meddy-health/meddy/internal/models"
)

const (
	maxTitleLen = 80
	turnTimeout = 60 * time.Second
)

type ChatService struct {
	db       core.DbClient
	llm      core.LLMProvider
	runner   *agent.Runner
	toolbox  *Toolbox
	maxSteps int
	files    ChatFiles
}

// ChatFiles removes the stored objects behind a chat's attachments.
type ChatFiles interface {
	RemoveObjects(ctx context.Context, atts []models.Attachment)
}

func NewChatService(db core.DbClient, provider core.LLMProvider, toolbox *Toolbox, maxSteps int) *ChatService {
	return &ChatService{
		db:       db,
		llm:      provider,
		runner:   agent.NewRunner(provider),
		toolbox:  toolbox,
		maxSteps: maxSteps,
	}
}

// UseChatFiles makes DeleteChat also remove attachment files from storage.
func (s *ChatService) UseChatFiles(f ChatFiles) { s.files = f }

type ChatRequest struct {
	ID       string      `json:"id"`
	Messages []UIMessage `json:"messages"`
	ModelID  string      `json:"modelId"`
}

// StreamTurn validates and persists the user's message, then streams the
// assistant's reply. open is called once, only after validation passed, and
// returns the writer for the response stream.
func (s *ChatService) StreamTurn(ctx context.Context, userID string, req ChatRequest, open func() *datastream.Writer) error {
	if req.ID == "" {
		return fmt.Errorf("%w: chat id", ErrInvalidData)
	}
	model, ok := llm.FindModel(req.ModelID)
	if !ok {
		return ErrModelNotFound
	}

	coreMessages := ConvertToCoreMessages(req.Messages)
	userMessage := MostRecentUserMessage(coreMessages)
	if userMessage == nil {
		return ErrNoUserMessage
	}

	if len(coreMessages) == 1 {
		user, err := s.db.GetUserByID(ctx, userID)
		if err != nil {
			log.Printf("chat %s: load user info: %v", req.ID, err)
		}
		userMessage.Content += userInfoSuffix(user)
	}

	chat, err := s.db.GetChatByID(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		title := s.GenerateTitle(ctx, model.APIIdentifier, userMessage.Content)
		chat = &models.Chat{
			ID:         req.ID,
			CreatedAt:  time.Now().UTC(),
			Title:      title,
			UserID:     userID,
			Visibility: models.VisibilityPrivate,
		}
		if err := s.db.SaveChat(ctx, chat); err != nil {
			return fmt.Errorf("save chat: %w", err)
		}
	} else if chat.UserID != userID {
		return ErrUnauthorized
	}

	userMessageID := uuid.NewString()
	content, err := EncodeContent(*userMessage)
	if err != nil {
		return err
	}
	if err := s.db.SaveMessages(ctx, []models.Message{{
		ID:        userMessageID,
		ChatID:    req.ID,
		Role:      string(core.RoleUser),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}}); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	w := open()
	system := prompts.SystemPrompt(s.toolbox.AttachmentsEnabled())
	_ = w.Data(dataPart{Type: "user-message-id", Content: userMessageID})
	_ = w.Data(dataPart{Type: "debug", Content: debugPrompts(system, coreMessages)})

	turn := &turnContext{
		userID:  userID,
		chatID:  req.ID,
		model:   model.APIIdentifier,
		stream:  w,
		history: coreMessages,
	}
	// Generation and persistence outlive a disconnected client.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnTimeout)
	defer cancel()

	_, err = s.runner.Run(runCtx, w, agent.RunRequest{
		Model:    model.APIIdentifier,
		System:   system,
		Messages: coreMessages,
		Tools:    s.toolbox.tools(turn),
		MaxSteps: s.maxSteps,
		OnFinish: func(ctx context.Context, res *agent.RunResult) error {
			return s.saveResponse(ctx, req.ID, w, res.ResponseMessages)
		},
	})
	if werr := w.Err(); werr != nil {
		log.Printf("chat %s: client went away: %v", req.ID, werr)
	}
	return err
}

func userInfoSuffix(u *models.User) string {
	if u == nil || (u.Name == nil && u.Age == nil) {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nUser Info:\n")
	if u.Name != nil && *u.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", *u.Name)
	}
	if u.Age != nil && *u.Age != "" {
		fmt.Fprintf(&b, "Age: %s", *u.Age)
	}
	return b.String()
}

func debugPrompts(system string, msgs []core.Message) string {
	type debugMessage struct {
		Role    core.Role `json:"role"`
		Content string    `json:"content"`
	}
	out := struct {
		Type     string         `json:"type"`
		System   string         `json:"system"`
		Messages []debugMessage `json:"messages"`
	}{Type: "prompts", System: system}
	for _, m := range msgs {
		content := m.Content
		if !isPlain(m) {
			raw, err := EncodeContent(m)
			if err == nil {
				content = string(raw)
			}
		}
		out.Messages = append(out.Messages, debugMessage{Role: m.Role, Content: content})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// saveResponse persists the response messages that are meant for the user
// and announces the stored IDs of assistant messages.
func (s *ChatService) saveResponse(ctx context.Context, chatID string, w *datastream.Writer, msgs []core.Message) error {
	msgs = FilterInternalMessages(SanitizeResponseMessages(msgs))
	if len(msgs) == 0 {
		return nil
	}

	base := time.Now().UTC()
	rows := make([]models.Message, 0, len(msgs))
	for i, m := range msgs {
		content, err := EncodeContent(m)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		if m.Role == core.RoleAssistant {
			_ = w.Annotations(map[string]string{"messageIdFromServer": id})
		}
		rows = append(rows, models.Message{
			ID:        id,
			ChatID:    chatID,
			Role:      string(m.Role),
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if err := s.db.SaveMessages(ctx, rows); err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chatID, err)
	}
	return nil
}

// GenerateTitle summarizes the first message; it falls back to the message
// itself when the model is unavailable.
func (s *ChatService) GenerateTitle(ctx context.Context, model, message string) string {
	title, err := s.llm.Generate(ctx, core.PromptRequest(model, prompts.TitlePrompt, message))
	if err != nil {
		log.Printf("chat: title generation failed: %v", err)
		title = ""
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		title = strings.TrimSpace(message)
		if i := strings.Index(title, "\n"); i >= 0 {
			title = title[:i]
		}
	}
	if title == "" {
		title = "New chat"
	}
	return truncateRunes(title, maxTitleLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *ChatService) ownedChat(ctx context.Context, userID, id string) (*models.Chat, error) {
	chat, err := s.db.GetChatByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return nil, ErrNotFound
	}
	if chat.UserID != userID {
		return nil, ErrUnauthorized
	}
	return chat, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, userID, id string) error {
	if _, err := s.ownedChat(ctx, userID, id); err != nil {
		return err
	}

	var atts []models.Attachment
	if s.files != nil {
		list, err := s.db.ListAttachmentsByChat(ctx, userID, id)
		if err != nil {
			return fmt.Errorf("list attachments: %w", err)
		}
		atts = list
	}
	if err := s.db.DeleteChatByID(ctx, id); err != nil {
		return err
	}
	if len(atts) > 0 {
		s.files.RemoveObjects(context.WithoutCancel(ctx), atts)
	}
	return nil
}

type ChatView struct {
	Chat            *models.Chat     `json:"chat"`
	Messages        []UIMessage      `json:"messages"`
	UserInfo        *models.UserInfo `json:"userInfo,omitempty"`
	SelectedModelID string           `json:"selectedModelId"`
	Readonly        bool             `json:"isReadonly"`
}

// GetChat loads a chat for display. Private chats of other users are
// reported as missing.
func (s *ChatService) GetChat(ctx context.Context, userID, id, modelCookie string) (*ChatView, error) {
	chat, err := s.db.GetChatByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if chat == nil || (chat.Visibility == models.VisibilityPrivate && chat.UserID != userID) {
		return nil, ErrNotFound
	}

	var (
		stored []models.Message
		user   *models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stored, err = s.db.GetMessagesByChatID(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = s.db.GetUserByID(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}

	ui, err := ConvertToUIMessages(stored)
	if err != nil {
		return nil, err
	}

	selected := llm.DefaultModelName
	if m, ok := llm.FindModel(modelCookie); ok {
		selected = m.ID
	}
	return &ChatView{
		Chat:            chat,
		Messages:        ui,
		UserInfo:        user.Info(),
		SelectedModelID: selected,
		Readonly:        chat.UserID != userID,
	}, nil
}

func (s *ChatService) ListHistory(ctx context.Context, userID string) ([]models.Chat, error) {
	chats, err := s.db.GetChatsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return chats, nil
}

func (s *ChatService) UpdateVisibility(ctx context.Context, userID, id, visibility string) error {
	if visibility != models.VisibilityPrivate && visibility != models.VisibilityPublic {
		return fmt.Errorf("%w: visibility %q", ErrInvalidData, visibility)
	}
	if _, err := s.ownedChat(ctx, userID, id); err != nil {
		return err
	}
	return s.db.UpdateChatVisibilityByID(ctx, id, visibility)
}

// DeleteTrailingMessages removes the message and everything after it in its chat.
func (s *ChatService) DeleteTrailingMessages(ctx context.Context, userID, messageID string) error {
	msg, err := s.db.GetMessageByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return ErrNotFound
	}
	if _, err := s.ownedChat(ctx, userID, msg.ChatID); err != nil {
		return err
	}
	return s.db.DeleteMessagesByChatIDAfterTimestamp(ctx, msg.ChatID, msg.CreatedAt)
}
