package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meddy-health/meddy/internal/core/datastream"
	"github.com/meddy-health/meddy/internal/core/llm"
	"github.com/meddy-health/meddy/internal/services"
)

// ModelCookie holds the model the user last picked in the UI.
const ModelCookie = "model-id"

type ChatHandler struct {
	chats *services.ChatService
}

func NewChatHandler(chats *services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// StreamChat answers with a data stream once the request passed validation.
// Errors after that point are reported inside the stream.
func (h *ChatHandler) StreamChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req services.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	opened := false
	err := h.chats.StreamTurn(r.Context(), userID, req, func() *datastream.Writer {
		opened = true
		datastream.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		return datastream.NewWriter(w)
	})
	if err == nil {
		return
	}
	if !opened {
		writeError(w, r, err)
		return
	}
	log.Printf("chat %s: stream ended with error: %v", req.ID, err)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err := h.chats.DeleteChat(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	http.Error(w, "Chat deleted", http.StatusOK)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var modelID string
	if c, err := r.Cookie(ModelCookie); err == nil {
		modelID = c.Value
	}
	view, err := h.chats.GetChat(r.Context(), userID, chi.URLParam(r, "id"), modelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type visibilityRequest struct {
	Visibility string `json:"visibility"`
}

func (h *ChatHandler) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.chats.UpdateVisibility(r.Context(), userID, chi.URLParam(r, "id"), req.Visibility); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chats, err := h.chats.ListHistory(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) DeleteTrailingMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.chats.DeleteTrailingMessages(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modelsResponse struct {
	Models  []llm.Model `json:"models"`
	Default string      `json:"defaultModelId"`
}

func (h *ChatHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{Models: llm.Models, Default: llm.DefaultModelName})
}
