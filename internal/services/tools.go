package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/core/agent"
	"github.com/meddy-health/meddy/internal/core/datastream"
	"github.com/meddy-health/meddy/internal/core/prompts"
	"github.com/meddy-health/meddy/internal/models"
)

const (
	maxSuggestions     = 5
	diagnosisChunkSize = 10
	attachmentHits     = 5
)

type Diagnoser interface {
	Diagnose(ctx context.Context, prompt string) (string, error)
}

type Forecaster interface {
	Forecast(ctx context.Context, latitude, longitude float64) (json.RawMessage, error)
}

// Toolbox builds the tools offered to the model on every chat turn.
// Diagnoser, Weather and Embedder are optional.
type Toolbox struct {
	DB        core.DbClient
	LLM       core.LLMProvider
	Doctors   *DoctorService
	Diagnoser Diagnoser
	Weather   Forecaster
	Embedder  core.EmbeddingProvider
}

func (tb *Toolbox) AttachmentsEnabled() bool { return tb.Embedder != nil }

// turnContext is what a tool knows about the turn it runs in.
type turnContext struct {
	userID  string
	chatID  string
	model   string
	stream  *datastream.Writer
	history []core.Message
}

type dataPart struct {
	Type         string `json:"type"`
	Content      any    `json:"content"`
	InternalOnly bool   `json:"internalOnly,omitempty"`
}

func (t *turnContext) emit(parts ...dataPart) {
	for _, p := range parts {
		if err := t.stream.Data(p); err != nil {
			log.Printf("chat %s: write data part %s: %v", t.chatID, p.Type, err)
			return
		}
	}
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

// tools returns the tool set for one turn.
func (tb *Toolbox) tools(t *turnContext) []agent.Tool {
	out := []agent.Tool{
		tb.createDocument(t),
		tb.updateDocument(t),
		tb.getDocument(t),
		tb.requestSuggestions(t),
		tb.getDoctorBySpeciality(t),
		tb.validatePatientFile(t),
		tb.updateUserInfo(t),
		tb.diagnoseIssue(t),
	}
	if tb.Weather != nil {
		out = append(out, tb.getWeather())
	}
	if tb.Embedder != nil {
		out = append(out, tb.searchAttachments(t))
	}
	return out
}

// streamDraft generates text with the turn's model and mirrors each delta as
// a text-delta data part, followed by a finish part.
func (tb *Toolbox) streamDraft(ctx context.Context, t *turnContext, system, prompt string, internal bool) (string, error) {
	res, err := tb.LLM.Stream(ctx, core.PromptRequest(t.model, system, prompt), func(delta string) error {
		return t.stream.Data(dataPart{Type: "text-delta", Content: delta, InternalOnly: internal})
	})
	if err != nil {
		return "", err
	}
	if !internal {
		t.emit(dataPart{Type: "finish", Content: ""})
	}
	return res.Text, nil
}

// ownDocument returns the latest revision when it belongs to the turn's user.
func (tb *Toolbox) ownDocument(ctx context.Context, t *turnContext, id string) (*models.Document, error) {
	doc, err := tb.DB.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != t.userID {
		return nil, nil
	}
	return doc, nil
}

func (tb *Toolbox) saveRevision(ctx context.Context, t *turnContext, doc *models.Document, content string) error {
	chatID := t.chatID
	return tb.DB.SaveDocument(ctx, &models.Document{
		ID:        doc.ID,
		CreatedAt: time.Now().UTC(),
		Title:     doc.Title,
		Content:   &content,
		Kind:      doc.Kind,
		UserID:    t.userID,
		ChatID:    &chatID,
	})
}

type documentResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// notFound builds the not-found result; kv holds extra key/value pairs.
func notFound(kv ...string) map[string]any {
	out := map[string]any{"error": "Document not found"}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func (tb *Toolbox) createDocument(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "createDocument",
		Description: "Create a patient file or other medical document",
		Parameters: core.Object(map[string]*core.Schema{
			"title": core.String("Title of the document"),
			"kind":  core.Enum("Kind of document", models.DocumentKindText, models.DocumentKindCode),
		}, "title", "kind"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				Title string `json:"title"`
				Kind  string `json:"kind"`
			}](raw)
			if err != nil {
				return nil, err
			}
			if args.Kind != models.DocumentKindCode {
				args.Kind = models.DocumentKindText
			}

			id := uuid.NewString()
			t.emit(
				dataPart{Type: "id", Content: id},
				dataPart{Type: "title", Content: args.Title},
				dataPart{Type: "kind", Content: args.Kind},
				dataPart{Type: "clear", Content: ""},
			)

			system := prompts.CreateDocumentPrompt
			if args.Kind == models.DocumentKindCode {
				system = prompts.CodePrompt
			}
			draft, err := tb.streamDraft(ctx, t, system, args.Title, false)
			if err != nil {
				return nil, fmt.Errorf("generate document: %w", err)
			}

			doc := &models.Document{ID: id, Title: args.Title, Kind: args.Kind}
			if err := tb.saveRevision(ctx, t, doc, draft); err != nil {
				return nil, fmt.Errorf("save document: %w", err)
			}
			return documentResult{
				ID:      id,
				Title:   args.Title,
				Kind:    args.Kind,
				Content: "A patient file was created and is now visible to the user.",
			}, nil
		},
	}
}

func (tb *Toolbox) updateDocument(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "updateDocument",
		Description: "Update the patient file or medical document with new information",
		Parameters: core.Object(map[string]*core.Schema{
			"id":          core.String("The ID of the document to update"),
			"description": core.String("The description of changes that need to be made"),
		}, "id", "description"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			}](raw)
			if err != nil {
				return nil, err
			}
			doc, err := tb.ownDocument(ctx, t, args.ID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return notFound(), nil
			}

			t.emit(dataPart{Type: "clear", Content: doc.Title})
			draft, err := tb.streamDraft(ctx, t, prompts.UpdateDocumentPrompt(doc.Text(), doc.Kind), args.Description, false)
			if err != nil {
				return nil, fmt.Errorf("rewrite document: %w", err)
			}
			if err := tb.saveRevision(ctx, t, doc, draft); err != nil {
				return nil, fmt.Errorf("save document: %w", err)
			}
			return documentResult{
				ID:      doc.ID,
				Title:   doc.Title,
				Kind:    doc.Kind,
				Content: "The patient file has been updated successfully.",
			}, nil
		},
	}
}

func (tb *Toolbox) getDocument(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "getDocument",
		Description: "Retrieve the latest version of a document by its ID",
		Parameters: core.Object(map[string]*core.Schema{
			"id": core.String("The ID of the document"),
		}, "id"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				ID string `json:"id"`
			}](raw)
			if err != nil {
				return nil, err
			}
			doc, err := tb.ownDocument(ctx, t, args.ID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return notFound("id", args.ID), nil
			}
			return documentResult{ID: doc.ID, Title: doc.Title, Kind: doc.Kind, Content: doc.Text()}, nil
		},
	}
}

var suggestionSchema = core.Object(map[string]*core.Schema{
	"suggestions": core.ArrayOf("Edit suggestions", core.Object(map[string]*core.Schema{
		"originalSentence":  core.String("The original sentence"),
		"suggestedSentence": core.String("The suggested sentence"),
		"description":       core.String("The description of the suggestion"),
	}, "originalSentence", "suggestedSentence", "description")),
}, "suggestions")

type suggestionElement struct {
	OriginalSentence  string `json:"originalSentence"`
	SuggestedSentence string `json:"suggestedSentence"`
	Description       string `json:"description"`
}

// parseSuggestions accepts {"suggestions":[...]} or a bare array.
func parseSuggestions(text string) ([]suggestionElement, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var wrapped struct {
		Suggestions []suggestionElement `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Suggestions != nil {
		return wrapped.Suggestions, nil
	}
	var bare []suggestionElement
	if err := json.Unmarshal([]byte(text), &bare); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}
	return bare, nil
}

func (tb *Toolbox) requestSuggestions(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "requestSuggestions",
		Description: "Request suggestions for a document",
		Parameters: core.Object(map[string]*core.Schema{
			"documentId": core.String("The ID of the document to request edits"),
		}, "documentId"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				DocumentID string `json:"documentId"`
			}](raw)
			if err != nil {
				return nil, err
			}
			doc, err := tb.ownDocument(ctx, t, args.DocumentID)
			if err != nil {
				return nil, err
			}
			if doc == nil || doc.Text() == "" {
				return notFound(), nil
			}

			req := core.PromptRequest(t.model, prompts.SuggestionsPrompt, doc.Text())
			req.ResponseSchema = suggestionSchema
			out, err := tb.LLM.Generate(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("generate suggestions: %w", err)
			}
			elems, err := parseSuggestions(out)
			if err != nil {
				return nil, err
			}
			if len(elems) > maxSuggestions {
				elems = elems[:maxSuggestions]
			}

			now := time.Now().UTC()
			saved := make([]models.Suggestion, 0, len(elems))
			for _, e := range elems {
				desc := e.Description
				s := models.Suggestion{
					ID:                uuid.NewString(),
					DocumentID:        doc.ID,
					DocumentCreatedAt: doc.CreatedAt,
					OriginalText:      e.OriginalSentence,
					SuggestedText:     e.SuggestedSentence,
					Description:       &desc,
					UserID:            t.userID,
					CreatedAt:         now,
				}
				t.emit(dataPart{Type: "suggestion", Content: s})
				saved = append(saved, s)
			}
			if err := tb.DB.SaveSuggestions(ctx, saved); err != nil {
				return nil, fmt.Errorf("save suggestions: %w", err)
			}
			return documentResult{
				ID:      doc.ID,
				Title:   doc.Title,
				Kind:    doc.Kind,
				Message: "Suggestions have been added to the document",
			}, nil
		},
	}
}

type doctorInfo struct {
	Name       string `json:"name"`
	Degree     string `json:"degree"`
	YOE        int    `json:"yoe"`
	Location   string `json:"location"`
	City       string `json:"city"`
	Speciality string `json:"speciality"`
	ConsultFee int    `json:"consultFee"`
}

type doctorResult struct {
	Message      string       `json:"message"`
	DoctorData   []doctorInfo `json:"doctorData"`
	InternalOnly bool         `json:"internalOnly"`
}

func (tb *Toolbox) getDoctorBySpeciality(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "getDoctorBySpeciality",
		Description: "Query doctors database by medical specialty and optionally filter by city",
		Parameters: core.Object(map[string]*core.Schema{
			"speciality": core.String("The medical specialty to search for"),
			"city":       core.String("Optional city to filter doctors"),
		}, "speciality"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				Speciality string `json:"speciality"`
				City       string `json:"city"`
			}](raw)
			if err != nil {
				return nil, err
			}
			doctors, err := tb.Doctors.FindBySpeciality(ctx, args.Speciality)
			if err != nil {
				return nil, fmt.Errorf("find doctors: %w", err)
			}
			if len(doctors) == 0 {
				return map[string]any{
					"error":        "No doctors found for this specialty",
					"speciality":   args.Speciality,
					"internalOnly": true,
				}, nil
			}

			picked := tb.Doctors.Pick(doctors, args.City)
			infos := make([]doctorInfo, 0, len(picked))
			for _, d := range picked {
				infos = append(infos, doctorInfo{
					Name:       d.Name,
					Degree:     d.Degree,
					YOE:        d.YOE,
					Location:   d.Location,
					City:       d.City,
					Speciality: args.Speciality,
					ConsultFee: d.ConsultFee,
				})
			}
			res := doctorResult{
				Message:      fmt.Sprintf("Found %d doctor(s) specializing in %s", len(doctors), args.Speciality),
				DoctorData:   infos,
				InternalOnly: true,
			}
			if b, err := json.Marshal(res); err == nil {
				t.emit(dataPart{Type: "internal-tool-response", Content: string(b)})
			}
			return res, nil
		},
	}
}

type fact struct {
	MessageNum int    `json:"messageNum"`
	Content    string `json:"content"`
}

func (tb *Toolbox) validatePatientFile(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "validatePatientFile",
		Description: "Validate patient file content against chat history",
		Parameters: core.Object(map[string]*core.Schema{
			"documentId":    core.String("The ID of the document to validate"),
			"messageNumber": core.Number("Current message number in the chat"),
		}, "documentId", "messageNumber"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				DocumentID    string  `json:"documentId"`
				MessageNumber float64 `json:"messageNumber"`
			}](raw)
			if err != nil {
				return nil, err
			}
			doc, err := tb.ownDocument(ctx, t, args.DocumentID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return notFound("documentId", args.DocumentID), nil
			}

			var facts []fact
			for i, m := range t.history {
				if m.Role == core.RoleUser {
					facts = append(facts, fact{MessageNum: i + 1, Content: m.Content})
				}
			}
			prompt, err := json.Marshal(map[string]any{
				"currentContent": doc.Content,
				"facts":          facts,
				"messageNumber":  args.MessageNumber,
			})
			if err != nil {
				return nil, err
			}

			t.emit(dataPart{Type: "clear", Content: doc.Title})
			draft, err := tb.streamDraft(ctx, t, prompts.ValidatePatientFilePrompt, string(prompt), false)
			if err != nil {
				return nil, fmt.Errorf("validate document: %w", err)
			}
			if err := tb.saveRevision(ctx, t, doc, draft); err != nil {
				return nil, fmt.Errorf("save document: %w", err)
			}
			return documentResult{
				ID:      doc.ID,
				Title:   doc.Title,
				Kind:    doc.Kind,
				Content: "The patient file has been validated and updated with references.",
			}, nil
		},
	}
}

func (tb *Toolbox) updateUserInfo(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "updateUserInfo",
		Description: "Update user profile with name and age",
		Parameters: core.Object(map[string]*core.Schema{
			"name": core.String("The patient's name"),
			"age":  core.String("The patient's age"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				Name *string `json:"name"`
				Age  *string `json:"age"`
			}](raw)
			if err != nil {
				return nil, err
			}
			if err := tb.DB.UpdateUserInfo(ctx, t.userID, args.Name, args.Age); err != nil {
				log.Printf("chat %s: update user info: %v", t.chatID, err)
				return map[string]any{"error": "Failed to update user information", "internalOnly": true}, nil
			}

			res := map[string]any{
				"message":      "User information updated successfully",
				"updates":      models.UserInfo{Name: args.Name, Age: args.Age},
				"internalOnly": true,
			}
			if b, err := json.Marshal(res); err == nil {
				t.emit(dataPart{Type: "internal-tool-response", Content: string(b)})
			}
			return res, nil
		},
	}
}

type diagnosisResult struct {
	Analysis     string `json:"analysis"`
	Disclaimer   string `json:"disclaimer"`
	InternalOnly bool   `json:"internalOnly"`
}

func chunkRunes(s string, size int) []string {
	r := []rune(s)
	var out []string
	for i := 0; i < len(r); i += size {
		end := min(i+size, len(r))
		out = append(out, string(r[i:end]))
	}
	return out
}

func (tb *Toolbox) diagnoseIssue(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "diagnoseIssue",
		Description: "Analyze symptoms and provide a preliminary diagnosis.",
		Parameters: core.Object(map[string]*core.Schema{
			"symptoms":           core.ArrayOf("List of symptoms reported by the patient", core.String("")),
			"duration":           core.String("Duration of symptoms"),
			"severity":           core.String("Severity of symptoms"),
			"age":                core.String("Patient age"),
			"gender":             core.String("Patient gender"),
			"medicalHistory":     core.ArrayOf("Relevant medical history", core.String("")),
			"currentMedications": core.ArrayOf("Current medications", core.String("")),
		}, "symptoms"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			in, err := decodeArgs[prompts.DiagnosisInput](raw)
			if err != nil {
				return nil, err
			}

			analysis, err := tb.diagnoseRemote(ctx, t, in)
			if err != nil {
				log.Printf("chat %s: medllama diagnosis failed, falling back to %s: %v", t.chatID, t.model, err)
				payload, mErr := json.Marshal(in)
				if mErr != nil {
					return nil, mErr
				}
				analysis, err = tb.streamDraft(ctx, t, prompts.DiagnosisFallbackPrompt, string(payload), true)
				if err != nil {
					return nil, fmt.Errorf("fallback diagnosis: %w", err)
				}
			}
			return diagnosisResult{
				Analysis:     analysis,
				Disclaimer:   prompts.DiagnosisDisclaimer,
				InternalOnly: true,
			}, nil
		},
	}
}

// diagnoseRemote asks the medical model and replays its answer as text deltas.
func (tb *Toolbox) diagnoseRemote(ctx context.Context, t *turnContext, in prompts.DiagnosisInput) (string, error) {
	if tb.Diagnoser == nil {
		return "", errors.New("diagnosis model not configured")
	}
	text, err := tb.Diagnoser.Diagnose(ctx, prompts.DiagnosisPrompt(in))
	if err != nil {
		return "", err
	}
	t.emit(dataPart{
		Type: "internal-tool-response",
		Content: map[string]any{
			"rawResponse":  []map[string]string{{"generated_text": text}},
			"internalOnly": true,
		},
	})
	for _, chunk := range chunkRunes(text, diagnosisChunkSize) {
		t.emit(dataPart{Type: "text-delta", Content: chunk, InternalOnly: true})
	}
	return text, nil
}

func (tb *Toolbox) getWeather() agent.Tool {
	return agent.Tool{
		Name:        "getWeather",
		Description: "Get the current weather at a location",
		Parameters: core.Object(map[string]*core.Schema{
			"latitude":  core.Number("Latitude"),
			"longitude": core.Number("Longitude"),
		}, "latitude", "longitude"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}](raw)
			if err != nil {
				return nil, err
			}
			forecast, err := tb.Weather.Forecast(ctx, args.Latitude, args.Longitude)
			if err != nil {
				return nil, err
			}
			return forecast, nil
		},
	}
}

type passage struct {
	AttachmentID string `json:"attachmentId"`
	Position     int    `json:"position"`
	Text         string `json:"text"`
}

func (tb *Toolbox) searchAttachments(t *turnContext) agent.Tool {
	return agent.Tool{
		Name:        "searchAttachments",
		Description: "Search the lab reports and files the patient uploaded to this chat",
		Parameters: core.Object(map[string]*core.Schema{
			"query": core.String("What to look for in the uploaded files"),
		}, "query"),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[struct {
				Query string `json:"query"`
			}](raw)
			if err != nil {
				return nil, err
			}
			vecs, err := tb.Embedder.EmbedTexts(ctx, []string{args.Query})
			if err != nil {
				return nil, fmt.Errorf("embed query: %w", err)
			}
			if len(vecs) == 0 {
				return nil, errors.New("embed query: no vector returned")
			}
			chunks, err := tb.DB.SearchAttachmentChunks(ctx, t.userID, t.chatID, vecs[0], attachmentHits)
			if err != nil {
				return nil, fmt.Errorf("search attachments: %w", err)
			}
			out := make([]passage, 0, len(chunks))
			for _, c := range chunks {
				out = append(out, passage{AttachmentID: c.AttachmentID, Position: c.Position, Text: c.Text})
			}
			if len(out) == 0 {
				return map[string]any{"passages": out, "message": "No uploaded files matched the query"}, nil
			}
			return map[string]any{"passages": out}, nil
		},
	}
}
