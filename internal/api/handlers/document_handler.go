package handlers

import (
	"net/http"
	"time"

	"github.com/meddy-health/meddy/internal/services"
)

type DocumentHandler struct {
	docs *services.DocumentService
}

func NewDocumentHandler(docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}
	docs, err := h.docs.GetRevisions(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}
	var in services.SaveDocumentInput
	if !decodeBody(w, r, &in) {
		return
	}
	doc, err := h.docs.SaveRevision(r.Context(), userID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type deleteRevisionsRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

// DeleteRevisions drops the revisions created after the given timestamp.
func (h *DocumentHandler) DeleteRevisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}
	var req deleteRevisionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.docs.DeleteRevisionsAfter(r.Context(), userID, id, req.Timestamp); err != nil {
		writeError(w, r, err)
		return
	}
	http.Error(w, "Deleted", http.StatusOK)
}

func (h *DocumentHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID := r.URL.Query().Get("documentId")
	if documentID == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	suggestions, err := h.docs.GetSuggestions(r.Context(), userID, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if suggestions == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}
