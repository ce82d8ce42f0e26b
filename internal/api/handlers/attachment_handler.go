package handlers

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/meddy-health/meddy/internal/services"
)

const maxUploadBytes = 10 << 20

type AttachmentHandler struct {
	attachments *services.AttachmentService
}

func NewAttachmentHandler(attachments *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload stores a multipart "file" and schedules it for ingestion.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.attachments.Enabled() {
		writeError(w, r, services.ErrStorageDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "File size should be less than 10MB", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			contentType = byExt
		}
	}

	att, err := h.attachments.Upload(r.Context(), userID, services.UploadInput{
		ChatID:      r.FormValue("chatId"),
		FileName:    name,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.attachments.List(r.Context(), userID, r.URL.Query().Get("chatId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
